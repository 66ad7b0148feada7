package handpose

import "errors"

var (
	// ErrMalformedRecord is returned when an in-memory buffer is not exactly RecordSize bytes.
	ErrMalformedRecord = errors.New("handpose: malformed record")
	// ErrIncompleteRecord is returned when a stream ends part way through a record.
	ErrIncompleteRecord = errors.New("handpose: incomplete record")
	// ErrStreamWriteFailed wraps the transport error of a failed record write.
	ErrStreamWriteFailed = errors.New("handpose: stream write failed")
	// ErrStreamReadFailed wraps the transport error of a failed record read.
	ErrStreamReadFailed = errors.New("handpose: stream read failed")
)
