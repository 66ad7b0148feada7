package handpose

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// RecordSize is the encoded size of a Record in bytes.
	RecordSize = 6 * fieldSize

	fieldSize = 4
)

// Record is one hand pose sample: a translation and an orientation.
// Units are whatever the producer uses; the codec never converts them.
type Record struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Z     float32 `json:"z"`
	Pitch float32 `json:"pitch"`
	Yaw   float32 `json:"yaw"`
	Roll  float32 `json:"roll"`
}

// Wire is the fixed-size encoded form of a Record. Holding a Wire instead of
// a byte slice makes a wrong-sized record impossible to construct.
type Wire [RecordSize]byte

// Fields returns the record fields in wire order.
func (r Record) Fields() [6]float32 {
	return [6]float32{r.X, r.Y, r.Z, r.Pitch, r.Yaw, r.Roll}
}

// Finite reports whether every field is a finite number.
func (r Record) Finite() bool {
	for _, f := range r.Fields() {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}

func (r Record) String() string {
	return fmt.Sprintf("pos=(%.2f, %.2f, %.2f) rot=(%.2f, %.2f, %.2f)",
		r.X, r.Y, r.Z, r.Pitch, r.Yaw, r.Roll)
}

// MarshalBinary implements encoding.BinaryMarshaler using the little-endian layout.
func (r Record) MarshalBinary() ([]byte, error) {
	return Encode(r), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using the little-endian layout.
func (r *Record) UnmarshalBinary(data []byte) error {
	rec, err := Decode(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// Codec encodes records with a specific byte order. The zero value uses
// little-endian, which is the canonical wire order.
type Codec struct {
	Order binary.ByteOrder
}

// NewCodec creates a codec for the given byte order. A nil order selects little-endian.
func NewCodec(order binary.ByteOrder) Codec {
	if order == nil {
		order = binary.LittleEndian
	}
	return Codec{Order: order}
}

func (c Codec) order() binary.ByteOrder {
	if c.Order == nil {
		return binary.LittleEndian
	}
	return c.Order
}

// Wire encodes r into its fixed-size wire form.
func (c Codec) Wire(r Record) Wire {
	var w Wire
	order := c.order()
	for i, f := range r.Fields() {
		order.PutUint32(w[i*fieldSize:], math.Float32bits(f))
	}
	return w
}

// Record decodes a fixed-size wire buffer. It cannot fail.
func (c Codec) Record(w Wire) Record {
	order := c.order()
	var f [6]float32
	for i := range f {
		f[i] = math.Float32frombits(order.Uint32(w[i*fieldSize:]))
	}
	return Record{X: f[0], Y: f[1], Z: f[2], Pitch: f[3], Yaw: f[4], Roll: f[5]}
}

// Encode returns the RecordSize-byte encoding of r.
func (c Codec) Encode(r Record) []byte {
	w := c.Wire(r)
	return w[:]
}

// Decode parses exactly RecordSize bytes into a Record.
func (c Codec) Decode(data []byte) (Record, error) {
	if len(data) != RecordSize {
		return Record{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedRecord, len(data), RecordSize)
	}
	return c.Record(Wire(data)), nil
}

var defaultCodec = Codec{Order: binary.LittleEndian}

// Encode returns the little-endian wire encoding of r.
func Encode(r Record) []byte {
	return defaultCodec.Encode(r)
}

// Decode parses a little-endian wire encoding. Any length other than
// RecordSize yields ErrMalformedRecord.
func Decode(data []byte) (Record, error) {
	return defaultCodec.Decode(data)
}

// Wire returns the little-endian wire form of r.
func (r Record) Wire() Wire {
	return defaultCodec.Wire(r)
}

// Record decodes a little-endian wire buffer.
func (w Wire) Record() Record {
	return defaultCodec.Record(w)
}

// ParseByteOrder maps a config value to a byte order.
// Accepted values are "little" (default when empty), "big" and "native".
func ParseByteOrder(name string) (binary.ByteOrder, error) {
	switch name {
	case "", "little", "little-endian":
		return binary.LittleEndian, nil
	case "big", "big-endian":
		return binary.BigEndian, nil
	case "native":
		return binary.NativeEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q", name)
	}
}
