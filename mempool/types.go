package mempool

import (
	"errors"
	"time"
)

// ErrCircuitOpen is returned while the breaker is cooling down after
// repeated poll failures.
var ErrCircuitOpen = errors.New("circuit breaker is tripped")

// BreakerConfig controls when polling is suspended.
type BreakerConfig struct {
	// ErrorThreshold consecutive errors trip the breaker.
	ErrorThreshold int
	// CooldownPeriod is how long polls are refused once tripped.
	CooldownPeriod time.Duration
}

var DefaultBreakerConfig = BreakerConfig{
	ErrorThreshold: 5,
	CooldownPeriod: 30 * time.Second,
}
