package server

import "time"

// Config carries the room timer settings. Zero fields fall back to the
// contract constants; tests shrink them to keep runs fast.
type Config struct {
	TickInterval      time.Duration
	AutoSaveInterval  time.Duration
	IdleCheckInterval time.Duration
	IdleWarnAfter     time.Duration
	IdleKickAfter     time.Duration
}

// normalized returns a config with defaults applied.
func (cfg Config) normalized() Config {
	normalized := cfg
	if normalized.TickInterval <= 0 {
		normalized.TickInterval = TickInterval
	}
	if normalized.AutoSaveInterval <= 0 {
		normalized.AutoSaveInterval = AutoSaveInterval
	}
	if normalized.IdleCheckInterval <= 0 {
		normalized.IdleCheckInterval = IdleCheckInterval
	}
	if normalized.IdleWarnAfter <= 0 {
		normalized.IdleWarnAfter = IdleWarnAfter
	}
	if normalized.IdleKickAfter <= 0 {
		normalized.IdleKickAfter = IdleKickAfter
	}
	return normalized
}
