// Package sensor turns hand-tracking frames into pose records and feeds
// them to a record stream.
package sensor

import (
	"math"

	"github.com/open-teleop/handpose/pkg/handpose"
)

// roundingPlaces is the precision of every derived record field.
const roundingPlaces = 2

// Vector is a tracker-space vector in millimetres (positions) or unit length
// (directions).
type Vector struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Pitch is the angle between the negative z-axis and the vector's projection
// on the y-z plane, in radians.
func (v Vector) Pitch() float64 {
	return math.Atan2(float64(v.Y), -float64(v.Z))
}

// Yaw is the angle between the negative z-axis and the vector's projection on
// the x-z plane, in radians.
func (v Vector) Yaw() float64 {
	return math.Atan2(float64(v.X), -float64(v.Z))
}

// Roll is the angle between the negative y-axis and the vector's projection
// on the x-y plane, in radians.
func (v Vector) Roll() float64 {
	return math.Atan2(float64(v.X), -float64(v.Y))
}

// Hand is one tracked hand as reported by the controller.
type Hand struct {
	PalmPosition Vector  `json:"palm_position"`
	Direction    Vector  `json:"direction"`
	PalmNormal   Vector  `json:"palm_normal"`
	Valid        bool    `json:"valid"`
	Confidence   float32 `json:"confidence"`
}

// PoseFromHand derives the record sent to viewers. Yaw is negated to turn the
// tracker's right-handed frame into the viewer's scene frame.
func PoseFromHand(h Hand) handpose.Record {
	return handpose.Record{
		X:     round(float64(h.PalmPosition.X)),
		Y:     round(float64(h.PalmPosition.Y)),
		Z:     round(float64(h.PalmPosition.Z)),
		Pitch: round(h.Direction.Pitch()),
		Yaw:   round(-h.Direction.Yaw()),
		Roll:  round(h.PalmNormal.Roll()),
	}
}

func round(v float64) float32 {
	scale := math.Pow(10, roundingPlaces)
	return float32(math.Round(v*scale) / scale)
}
