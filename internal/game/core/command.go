package core

// CommandType identifies the kind of an inbound seat command.
type CommandType int

const (
	CommandDig CommandType = iota
	CommandClaim
	CommandToggleFullness
	CommandSetResearchTree
	CommandAckSync
)

func (c CommandType) String() string {
	switch c {
	case CommandDig:
		return "dig"
	case CommandClaim:
		return "claim"
	case CommandToggleFullness:
		return "toggle_fullness"
	case CommandSetResearchTree:
		return "set_research_tree"
	case CommandAckSync:
		return "ack_sync"
	default:
		return "unknown"
	}
}

// Command is a request decoded from a connection and applied by the tick.
// The set of implementations is closed.
type Command interface {
	GetSeatID() SeatID
	GetType() CommandType
	Validate(b *Board) error
	command()
}

// DigCommand applies one unit of dig work to a tile.
type DigCommand struct {
	Seat   SeatID
	Target Coordinate
}

func (c *DigCommand) GetSeatID() SeatID    { return c.Seat }
func (c *DigCommand) GetType() CommandType { return CommandDig }
func (c *DigCommand) command()             {}

func (c *DigCommand) Validate(b *Board) error {
	return validateTarget(b, c.Target)
}

// ClaimCommand applies one unit of claim work to a tile.
type ClaimCommand struct {
	Seat   SeatID
	Target Coordinate
}

func (c *ClaimCommand) GetSeatID() SeatID    { return c.Seat }
func (c *ClaimCommand) GetType() CommandType { return CommandClaim }
func (c *ClaimCommand) command()             {}

func (c *ClaimCommand) Validate(b *Board) error {
	return validateTarget(b, c.Target)
}

// ToggleFullnessCommand cycles a tile's fullness in editor sessions.
type ToggleFullnessCommand struct {
	Seat   SeatID
	Target Coordinate
}

func (c *ToggleFullnessCommand) GetSeatID() SeatID    { return c.Seat }
func (c *ToggleFullnessCommand) GetType() CommandType { return CommandToggleFullness }
func (c *ToggleFullnessCommand) command()             {}

func (c *ToggleFullnessCommand) Validate(b *Board) error {
	return validateTarget(b, c.Target)
}

// SetResearchTreeCommand replaces the seat's pending research list. Research
// identifiers are catalog ordinals.
type SetResearchTreeCommand struct {
	Seat    SeatID
	Pending []uint32
}

func (c *SetResearchTreeCommand) GetSeatID() SeatID       { return c.Seat }
func (c *SetResearchTreeCommand) GetType() CommandType    { return CommandSetResearchTree }
func (c *SetResearchTreeCommand) Validate(b *Board) error { return nil }
func (c *SetResearchTreeCommand) command()                {}

// AckSyncCommand acknowledges every outbound message up to Sequence.
type AckSyncCommand struct {
	Seat     SeatID
	Sequence uint32
}

func (c *AckSyncCommand) GetSeatID() SeatID       { return c.Seat }
func (c *AckSyncCommand) GetType() CommandType    { return CommandAckSync }
func (c *AckSyncCommand) Validate(b *Board) error { return nil }
func (c *AckSyncCommand) command()                {}

func validateTarget(b *Board, c Coordinate) error {
	if !c.IsValid(b.W, b.H) {
		return ErrInvalidCoordinates
	}
	return nil
}
