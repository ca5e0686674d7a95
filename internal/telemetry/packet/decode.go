// Package packet decodes decrypted simulator telemetry frames.
//
// The frame layout is a fixed table of (name, offset, kind) entries; Decode
// and Encode both walk that table with one generic routine, so the table in
// fields.go is the single place offsets are defined. Decoding does not
// validate physical plausibility: out-of-range values are passed through for
// the extractors to interpret.
package packet

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/banshee-data/telemetry.report/internal/telemetry/cipher"
)

var le = binary.LittleEndian

// Decode reads a decrypted buffer into a Frame. The buffer must be exactly
// FRAME_SIZE bytes.
func Decode(buf []byte) (*Frame, error) {
	if len(buf) != FRAME_SIZE {
		return nil, &cipher.MalformedPacketError{Length: len(buf), Want: FRAME_SIZE}
	}
	f := &Frame{}
	for _, fd := range fieldTable {
		if err := readField(buf, fd, f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Encode writes a Frame into a new FRAME_SIZE buffer. Bytes not covered by
// the field table are zero.
func Encode(f *Frame) []byte {
	buf := make([]byte, FRAME_SIZE)
	for _, fd := range fieldTable {
		// Encode only fails on a table/type mismatch, which the table tests
		// rule out.
		_ = writeField(buf, fd, f)
	}
	return buf
}

func readField(buf []byte, fd Field, f *Frame) error {
	b := buf[fd.Offset:fd.End()]
	switch p := fd.Ref(f).(type) {
	case *uint8:
		*p = b[0]
	case *int16:
		*p = int16(le.Uint16(b))
	case *uint16:
		*p = le.Uint16(b)
	case *int32:
		*p = int32(le.Uint32(b))
	case *uint32:
		*p = le.Uint32(b)
	case *float32:
		*p = math.Float32frombits(le.Uint32(b))
	default:
		return fmt.Errorf("field %s: unsupported destination %T", fd.Name, p)
	}
	return nil
}

func writeField(buf []byte, fd Field, f *Frame) error {
	b := buf[fd.Offset:fd.End()]
	switch p := fd.Ref(f).(type) {
	case *uint8:
		b[0] = *p
	case *int16:
		le.PutUint16(b, uint16(*p))
	case *uint16:
		le.PutUint16(b, *p)
	case *int32:
		le.PutUint32(b, uint32(*p))
	case *uint32:
		le.PutUint32(b, *p)
	case *float32:
		le.PutUint32(b, math.Float32bits(*p))
	default:
		return fmt.Errorf("field %s: unsupported destination %T", fd.Name, p)
	}
	return nil
}
