package sensor

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Source yields tracking frames. ok is false when no hand is in view.
type Source interface {
	Next(ctx context.Context) (hand Hand, ok bool, err error)
}

// SimulatedSource produces a hand orbiting above the controller at a fixed
// frame rate, with a slowly rocking palm. It stands in for a real tracker.
type SimulatedSource struct {
	Rate   time.Duration
	Radius float32
	Height float32
	Period time.Duration

	start  time.Time
	ticker *time.Ticker
}

// NewSimulatedSource creates a source emitting one frame per rate.
func NewSimulatedSource(rate time.Duration) *SimulatedSource {
	return &SimulatedSource{
		Rate:   rate,
		Radius: 80,
		Height: 200,
		Period: 4 * time.Second,
	}
}

// Next blocks until the next frame is due.
func (s *SimulatedSource) Next(ctx context.Context) (Hand, bool, error) {
	if s.ticker == nil {
		if s.Rate <= 0 {
			return Hand{}, false, fmt.Errorf("frame rate must be positive, got %v", s.Rate)
		}
		s.start = time.Now()
		s.ticker = time.NewTicker(s.Rate)
	}

	select {
	case <-ctx.Done():
		s.ticker.Stop()
		return Hand{}, false, ctx.Err()
	case now := <-s.ticker.C:
		return s.HandAt(now.Sub(s.start)), true, nil
	}
}

// HandAt returns the simulated hand at elapsed time t.
func (s *SimulatedSource) HandAt(t time.Duration) Hand {
	phase := 2 * math.Pi * t.Seconds() / s.Period.Seconds()
	sin, cos := math.Sincos(phase)

	return Hand{
		PalmPosition: Vector{
			X: s.Radius * float32(cos),
			Y: s.Height,
			Z: s.Radius * float32(sin),
		},
		Direction:  unit(float32(0.3*sin), float32(0.2*cos), -1),
		PalmNormal: unit(float32(0.4*sin), -1, 0),
		Valid:      true,
		Confidence: 1,
	}
}

func unit(x, y, z float32) Vector {
	n := float32(math.Sqrt(float64(x*x + y*y + z*z)))
	return Vector{X: x / n, Y: y / n, Z: z / n}
}
