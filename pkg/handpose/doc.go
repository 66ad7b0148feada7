// Package handpose implements the hand-pose wire record exchanged between a
// hand-tracking producer and a rendering consumer.
//
// # Record Format
//
// A record is six IEEE-754 single-precision floats, 24 bytes in total:
//
//	[X(4)][Y(4)][Z(4)][Pitch(4)][Yaw(4)][Roll(4)]
//
// Every field is little-endian. There is no length prefix, padding, checksum
// or sequence number, so a stream of records stays aligned only as long as
// the transport delivers every byte in order.
//
// # Usage
//
//	rec := handpose.Record{X: 12.5, Y: 180, Z: -3, Pitch: 0.1, Yaw: -0.4, Roll: 1.2}
//	if err := handpose.WriteRecord(conn, rec); err != nil {
//	    return err // errors.Is(err, handpose.ErrStreamWriteFailed)
//	}
//
//	for {
//	    rec, err := handpose.ReadRecord(conn)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err // ErrIncompleteRecord or ErrStreamReadFailed
//	    }
//	    render(rec)
//	}
//
// Field values are never validated: NaN, infinities and out-of-range angles
// pass through unchanged and are the consumer's concern.
package handpose
