package model

import "time"

// Shared defaults used by the CLI and the engine packages.
const (
	DefaultPatternMaxLength  = 80
	DefaultTopServices       = 15
	DefaultTopPatterns       = 5
	DefaultTopGlobalPatterns = 10
	DefaultCriticalSample    = 20
	DefaultWorkers           = 4
	DefaultFetchLimit        = 100_000
	DefaultDaysBack          = 1
	DefaultQueryTimeout      = 5 * time.Minute
)
