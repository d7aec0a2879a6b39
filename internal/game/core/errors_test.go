package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapCommandError(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		err      error
		expected string
		isNil    bool
	}{
		{
			name:  "nil error returns nil",
			cmd:   &DigCommand{Seat: 1, Target: Coordinate{X: 0, Y: 0}},
			err:   nil,
			isNil: true,
		},
		{
			name:     "dig with coordinates",
			cmd:      &DigCommand{Seat: 1, Target: Coordinate{X: 5, Y: 3}},
			err:      ErrNotDiggable,
			expected: "seat 1: dig (5,3): tile is not diggable",
		},
		{
			name:     "claim with coordinates",
			cmd:      &ClaimCommand{Seat: 2, Target: Coordinate{X: 1, Y: 4}},
			err:      ErrNotClaimable,
			expected: "seat 2: claim (1,4): tile is not claimable",
		},
		{
			name:     "ack sync",
			cmd:      &AckSyncCommand{Seat: 3, Sequence: 9},
			err:      ErrSessionEnded,
			expected: "seat 3: ack sync 9: session has ended",
		},
		{
			name:     "generic fallback",
			cmd:      nil,
			err:      ErrSessionEnded,
			expected: "seat command: session has ended",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WrapCommandError(tt.cmd, tt.err)
			if tt.isNil {
				assert.Nil(t, wrapped)
				return
			}
			require.NotNil(t, wrapped)
			assert.Equal(t, tt.expected, wrapped.Error())
			assert.True(t, errors.Is(wrapped, tt.err))
		})
	}
}

func TestErrorKinds(t *testing.T) {
	assert.Nil(t, NewError(KindRule, "dig", nil))

	err := NewError(KindProtocol, "decode", ErrInvalidCoordinates)
	assert.Equal(t, "protocol: decode: invalid coordinates", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidCoordinates))
	assert.True(t, IsKind(err, KindProtocol))
	assert.False(t, IsKind(err, KindFormat))

	wrapped := fmt.Errorf("connection 4: %w", err)
	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindProtocol, kind)

	_, ok = KindOf(ErrNotDiggable)
	assert.False(t, ok)

	assert.Equal(t, "rule: x", (&Error{Kind: KindRule, Err: errors.New("x")}).Error())
}

func TestCommand_Validate(t *testing.T) {
	board := NewBoard(4, 4)
	assert.NoError(t, (&DigCommand{Target: Coordinate{X: 3, Y: 3}}).Validate(board))
	assert.ErrorIs(t, (&ClaimCommand{Target: Coordinate{X: 4, Y: 0}}).Validate(board), ErrInvalidCoordinates)
	assert.ErrorIs(t, (&ToggleFullnessCommand{Target: Coordinate{X: 0, Y: -1}}).Validate(board), ErrInvalidCoordinates)
	assert.Equal(t, "set_research_tree", (&SetResearchTreeCommand{}).GetType().String())
}
