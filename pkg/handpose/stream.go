package handpose

import (
	"errors"
	"fmt"
	"io"
)

// WriteRecord writes the encoding of r to w as a single RecordSize-byte write.
// The stream is neither opened nor closed here, and a failed write is not retried.
func (c Codec) WriteRecord(w io.Writer, r Record) error {
	wire := c.Wire(r)
	n, err := w.Write(wire[:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStreamWriteFailed, err)
	}
	if n != RecordSize {
		return fmt.Errorf("%w: %w (%d of %d bytes)", ErrStreamWriteFailed, io.ErrShortWrite, n, RecordSize)
	}
	return nil
}

// ReadRecord blocks until a full record has been read from r.
//
// A stream that ends exactly on a record boundary returns io.EOF. A stream
// that ends part way through a record returns ErrIncompleteRecord; any other
// read error is wrapped in ErrStreamReadFailed.
func (c Codec) ReadRecord(r io.Reader) (Record, error) {
	var w Wire
	n, err := io.ReadFull(r, w[:])
	switch {
	case err == nil:
		return c.Record(w), nil
	case n == 0 && errors.Is(err, io.EOF):
		return Record{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
		return Record{}, fmt.Errorf("%w: got %d of %d bytes", ErrIncompleteRecord, n, RecordSize)
	default:
		return Record{}, fmt.Errorf("%w: %w", ErrStreamReadFailed, err)
	}
}

// WriteRecord writes r to w in the canonical little-endian layout.
func WriteRecord(w io.Writer, r Record) error {
	return defaultCodec.WriteRecord(w, r)
}

// ReadRecord reads one little-endian record from r.
func ReadRecord(r io.Reader) (Record, error) {
	return defaultCodec.ReadRecord(r)
}
