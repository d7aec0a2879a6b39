package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidFullness    = errors.New("fullness out of range")
	ErrInvalidClaim       = errors.New("claimed percentage out of range")
	ErrInvalidTileType    = errors.New("unknown tile type")
	ErrInvalidSeat        = errors.New("invalid seat ID")
	ErrSeatSlotOverflow   = errors.New("seat slot exceeds dirty bitfield")
	ErrNotDiggable        = errors.New("tile is not diggable")
	ErrNotClaimable       = errors.New("tile is not claimable")
	ErrSessionEnded       = errors.New("session has ended")
)

// ErrorKind classifies failures so callers can decide between tearing down,
// aborting, ignoring or rejecting.
type ErrorKind int

const (
	// KindProtocol is a malformed or out-of-range wire message. Fatal to the connection.
	KindProtocol ErrorKind = iota
	// KindFormat is a save file that cannot be parsed. The whole load aborts.
	KindFormat
	// KindInvariant is a data or configuration bug caught at runtime. Degrade to a no-op.
	KindInvariant
	// KindRule is a gameplay rule rejection. No state was changed.
	KindRule
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindFormat:
		return "format"
	case KindInvariant:
		return "invariant"
	case KindRule:
		return "rule"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error carries an ErrorKind alongside the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind. A nil err yields nil.
func NewError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// WrapCommandError adds seat and target context to a command failure.
func WrapCommandError(cmd Command, err error) error {
	if err == nil {
		return nil
	}
	switch c := cmd.(type) {
	case *DigCommand:
		return fmt.Errorf("seat %d: dig %s: %w", c.Seat, c.Target, err)
	case *ClaimCommand:
		return fmt.Errorf("seat %d: claim %s: %w", c.Seat, c.Target, err)
	case *ToggleFullnessCommand:
		return fmt.Errorf("seat %d: toggle fullness %s: %w", c.Seat, c.Target, err)
	case *SetResearchTreeCommand:
		return fmt.Errorf("seat %d: set research tree: %w", c.Seat, err)
	case *AckSyncCommand:
		return fmt.Errorf("seat %d: ack sync %d: %w", c.Seat, c.Sequence, err)
	default:
		return fmt.Errorf("seat command: %w", err)
	}
}

// WrapTickError adds tick context to a failure inside the engine loop.
func WrapTickError(tick uint64, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("tick %d: %s: %w", tick, op, err)
}
