package netsync

import (
	"fmt"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
)

// EncodeSeat writes the seat record in field order: id, team, player type,
// faction, start position, color, gold, mana, mana delta, claimed tiles,
// goals changed, treasuries, then the available team ids.
func EncodeSeat(s *seat.Seat) []byte {
	w := NewWriter(96 + len(s.Faction) + len(s.ColorID))
	w.PutInt32(int32(s.ID))
	w.PutInt(s.TeamID)
	w.PutString(s.PlayerType.String())
	w.PutString(s.Faction)
	w.PutInt(s.StartX)
	w.PutInt(s.StartY)
	w.PutString(s.ColorID)
	w.PutInt(s.Gold)
	w.PutFloat64(s.Mana)
	w.PutFloat64(s.ManaDelta)
	w.PutInt(s.ClaimedTiles)
	w.PutBool(s.GoalsChanged)
	w.PutInt(s.TreasuryCount)
	w.PutUint32(uint32(len(s.AvailableTeamIDs)))
	for _, team := range s.AvailableTeamIDs {
		w.PutInt(team)
	}
	return w.Bytes()
}

// DecodeSeat parses a seat record into a fresh seat. Research state travels
// in its own messages.
func DecodeSeat(payload []byte, catalog *research.Catalog) (*seat.Seat, error) {
	r := NewReader(payload)
	s := seat.New(core.SeatID(r.Int32()), catalog)
	s.TeamID = r.Int()
	playerType := r.Str()
	s.Faction = r.Str()
	s.StartX = r.Int()
	s.StartY = r.Int()
	s.ColorID = r.Str()
	s.Gold = r.Int()
	s.Mana = r.Float64()
	s.ManaDelta = r.Float64()
	s.ClaimedTiles = r.Int()
	s.GoalsChanged = r.Bool()
	s.TreasuryCount = r.Int()
	n := r.Count(4)
	s.AvailableTeamIDs = make([]int, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		s.AvailableTeamIDs = append(s.AvailableTeamIDs, r.Int())
	}
	if err := r.Done(); err != nil {
		return nil, err
	}

	pt, err := seat.ParsePlayerType(playerType)
	if err != nil {
		return nil, protocolError("decode seat", fmt.Errorf("seat %d: %w", s.ID, err))
	}
	s.PlayerType = pt
	return s, nil
}
