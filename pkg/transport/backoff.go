package transport

import (
	"math"
	"math/rand"
	"time"

	"github.com/open-teleop/handpose/pkg/config"
)

// BackoffConfig controls the redial delay of a Dialer.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// BackoffFromBootstrap reads the reconnect settings of the stream section.
func BackoffFromBootstrap(s config.StreamBootstrap) BackoffConfig {
	return BackoffConfig{
		InitialDelay: s.ReconnectInitial(),
		MaxDelay:     s.ReconnectMax(),
		Multiplier:   s.ReconnectMultiplier,
		Jitter:       s.ReconnectJitter,
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
