package research

import "fmt"

// ResearchType identifies an unlockable capability. Ordinals are part of the
// wire format; names are used in save files and the catalog.
type ResearchType uint32

const (
	NullResearchType ResearchType = iota
	SpellSummonWorker
	SpellCallToWar
	RoomTreasury
	RoomDormitory
	RoomHatchery
	RoomTrainingHall
	RoomLibrary
	RoomForge
	RoomCrypt
	TrapBoulder
	TrapCannon
	TrapSpike
	CountResearch
)

var researchTypeNames = [CountResearch]string{
	"nullResearchType",
	"spellSummonWorker",
	"spellCallToWar",
	"roomTreasury",
	"roomDormitory",
	"roomHatchery",
	"roomTrainingHall",
	"roomLibrary",
	"roomForge",
	"roomCrypt",
	"trapBoulder",
	"trapCannon",
	"trapSpike",
}

func (r ResearchType) String() string {
	if r >= CountResearch {
		return fmt.Sprintf("ResearchType(%d)", uint32(r))
	}
	return researchTypeNames[r]
}

// Valid reports whether r names a real research.
func (r ResearchType) Valid() bool {
	return r > NullResearchType && r < CountResearch
}

// MarshalText encodes the save file name, so JSON views show names instead of ordinals.
func (r ResearchType) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ResearchType) UnmarshalText(b []byte) error {
	rt, err := ParseResearchType(string(b))
	if err != nil {
		return err
	}
	*r = rt
	return nil
}

// ParseResearchType maps a save file name back to its type.
func ParseResearchType(name string) (ResearchType, error) {
	for i := NullResearchType + 1; i < CountResearch; i++ {
		if researchTypeNames[i] == name {
			return i, nil
		}
	}
	return NullResearchType, fmt.Errorf("%w: %q", ErrUnknownResearch, name)
}

// RoomType, TrapType and SpellType are the buildables gated by research.
type RoomType uint32

const (
	RoomNull RoomType = iota
	RoomTypeTreasury
	RoomTypeDormitory
	RoomTypeHatchery
	RoomTypeTrainingHall
	RoomTypeLibrary
	RoomTypeForge
	RoomTypeCrypt
)

type TrapType uint32

const (
	TrapNull TrapType = iota
	TrapTypeBoulder
	TrapTypeCannon
	TrapTypeSpike
)

type SpellType uint32

const (
	SpellNull SpellType = iota
	SpellTypeSummonWorker
	SpellTypeCallToWar
)

var roomResearch = map[RoomType]ResearchType{
	RoomTypeTreasury:     RoomTreasury,
	RoomTypeDormitory:    RoomDormitory,
	RoomTypeHatchery:     RoomHatchery,
	RoomTypeTrainingHall: RoomTrainingHall,
	RoomTypeLibrary:      RoomLibrary,
	RoomTypeForge:        RoomForge,
	RoomTypeCrypt:        RoomCrypt,
}

var trapResearch = map[TrapType]ResearchType{
	TrapTypeBoulder: TrapBoulder,
	TrapTypeCannon:  TrapCannon,
	TrapTypeSpike:   TrapSpike,
}

var spellResearch = map[SpellType]ResearchType{
	SpellTypeSummonWorker: SpellSummonWorker,
	SpellTypeCallToWar:    SpellCallToWar,
}
