package game

import "time"

// Defaults applied by the initializer to zero-valued GameConfig fields. The
// server overrides them from configuration.
const (
	DefaultTickInterval          = 100 * time.Millisecond
	DefaultVisionRadius          = 5
	DefaultDigRate               = 20.0
	DefaultClaimRate             = 0.25
	DefaultGoldPerFullness       = 1.0
	DefaultResearchPointsPerTick = 5
	DefaultResearchDeliveryTicks = 20
	DefaultInboxSize             = 1024
	DefaultMaxInFlight           = 64
	DefaultCompressThreshold     = 1024

	DefaultMapWidth  = 48
	DefaultMapHeight = 32
	DefaultSeats     = 2
)
