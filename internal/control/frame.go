// Package control implements the wire codec for the lifecycle frames
// exchanged with out-of-process modules (spec.md §4.3): CREATE, REPLY,
// START, DESTROY. The format is a fixed binary header followed by a
// type-specific payload, all in network byte order — confirmed against
// the original source's control_message.c (FIRST_MESSAGE_BYTE 0xA1,
// SECOND_MESSAGE_BYTE 0x6C).
package control

import (
	"encoding/binary"

	"github.com/lattice-run/gatewayrt/internal/gerr"
)

// Type enumerates the control frame kinds.
type Type byte

const (
	// TypeError is never produced on the wire; Encode refuses to
	// serialize it. It is the zero value so an uninitialized Frame is
	// visibly invalid rather than silently decoding as CREATE.
	TypeError   Type = 0
	TypeCreate  Type = 1
	TypeReply   Type = 2
	TypeStart   Type = 3
	TypeDestroy Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeCreate:
		return "CREATE"
	case TypeReply:
		return "REPLY"
	case TypeStart:
		return "START"
	case TypeDestroy:
		return "DESTROY"
	default:
		return "ERROR"
	}
}

const (
	magicLow  = 0xA1
	magicHigh = 0x6C
	versionCurrent byte = 0x01

	// headerSize covers magic(2) + version(1) + type(1) + total-size(4).
	headerSize = 8

	replyPayloadSize = 1 // status byte
)

// ReplyStatus is the single status byte on a REPLY frame. Zero is success;
// any non-zero value is a specific failure code (spec.md §4.3).
type ReplyStatus byte

const (
	StatusOK ReplyStatus = 0
	// StatusRejected covers decode failures and rejected duplicate
	// CREATE attempts on the control path (spec.md §7, SPEC_FULL.md
	// Open Question 1).
	StatusRejected ReplyStatus = 1
	StatusInternal ReplyStatus = 2
	// StatusDetached marks a REPLY sent asynchronously during steady
	// state (not as a CREATE response): the remote is about to drop its
	// end of the channel, and the proxy should attempt to re-run the
	// creation handshake once a new connection arrives (spec.md §4.4
	// "Steady state").
	StatusDetached ReplyStatus = 3
)

// Frame is the decoded, structured form of a control message.
type Frame struct {
	Type Type

	// CREATE fields.
	GatewayMessageVersion byte
	URIType               byte
	URI                   string
	Args                  string

	// REPLY field.
	Status ReplyStatus
}

// Size returns the exact number of bytes Encode will produce for f, without
// allocating or writing anything. Used by callers sizing their own buffers
// and by EncodeInto when given a zero-length destination.
func Size(f Frame) (int, error) {
	switch f.Type {
	case TypeCreate:
		// version(1) + uriType(1) + uriSize(4) + uri + nul(1) + argsSize(4) + args + nul(1)
		return headerSize + 1 + 1 + 4 + len(f.URI) + 1 + 4 + len(f.Args) + 1, nil
	case TypeReply:
		return headerSize + replyPayloadSize, nil
	case TypeStart, TypeDestroy:
		return headerSize, nil
	default:
		return 0, gerr.New(gerr.InvalidArgument, "control: refuse to size frame of type %s", f.Type)
	}
}

// Encode allocates a buffer of exactly the right size and serializes f into
// it.
func Encode(f Frame) ([]byte, error) {
	n, err := Size(f)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := EncodeInto(buf, f); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto serializes f into buf. If len(buf) == 0, EncodeInto writes
// nothing and returns the required size with a nil error (spec.md §4.3:
// "asked for size with a zero-length output, it returns the required
// size"). If buf is non-empty but smaller than required, EncodeInto writes
// nothing and returns the required size with an error.
func EncodeInto(buf []byte, f Frame) (int, error) {
	n, err := Size(f)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return n, nil
	}
	if len(buf) < n {
		return n, gerr.New(gerr.InvalidArgument, "control: buffer too small: need %d, have %d", n, len(buf))
	}

	buf[0] = magicLow
	buf[1] = magicHigh
	buf[2] = versionCurrent
	buf[3] = byte(f.Type)
	binary.BigEndian.PutUint32(buf[4:8], uint32(n))

	switch f.Type {
	case TypeCreate:
		off := headerSize
		buf[off] = f.GatewayMessageVersion
		off++
		buf[off] = f.URIType
		off++
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(f.URI)+1))
		off += 4
		copy(buf[off:], f.URI)
		off += len(f.URI)
		buf[off] = 0
		off++
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(f.Args)+1))
		off += 4
		copy(buf[off:], f.Args)
		off += len(f.Args)
		buf[off] = 0
	case TypeReply:
		buf[headerSize] = byte(f.Status)
	case TypeStart, TypeDestroy:
		// no payload
	}

	return n, nil
}

// Decode parses a control frame from buf, validating every length field
// spec.md §4.3 requires a decoder to check. All decode failures return a
// *gerr.Error with Kind DecodeFailure; Decode never partially populates a
// Frame on error.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < headerSize {
		return Frame{}, gerr.New(gerr.DecodeFailure, "control: frame shorter than header (%d bytes)", len(buf))
	}
	if buf[0] != magicLow || buf[1] != magicHigh {
		return Frame{}, gerr.New(gerr.DecodeFailure, "control: bad magic %02x%02x", buf[0], buf[1])
	}
	if buf[2] != versionCurrent {
		return Frame{}, gerr.New(gerr.DecodeFailure, "control: unknown version %d", buf[2])
	}
	t := Type(buf[3])
	switch t {
	case TypeCreate, TypeReply, TypeStart, TypeDestroy:
	default:
		return Frame{}, gerr.New(gerr.DecodeFailure, "control: unknown frame type %d", buf[3])
	}

	totalSize := binary.BigEndian.Uint32(buf[4:8])
	if int(totalSize) != len(buf) {
		return Frame{}, gerr.New(gerr.DecodeFailure, "control: declared size %d disagrees with buffer length %d", totalSize, len(buf))
	}

	f := Frame{Type: t}

	switch t {
	case TypeCreate:
		min, _ := Size(Frame{Type: TypeCreate})
		if len(buf) < min {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: CREATE frame too short (%d bytes)", len(buf))
		}
		off := headerSize
		f.GatewayMessageVersion = buf[off]
		off++
		f.URIType = buf[off]
		off++
		if off+4 > len(buf) {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: CREATE frame truncated before uri size")
		}
		uriSize := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		if uriSize < 1 || off+uriSize > len(buf) {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: CREATE uri size %d exceeds frame", uriSize)
		}
		uriBytes := buf[off : off+uriSize]
		if uriBytes[uriSize-1] != 0 {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: CREATE uri not nul-terminated")
		}
		f.URI = string(uriBytes[:uriSize-1])
		off += uriSize

		if off+4 > len(buf) {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: CREATE frame truncated before args size")
		}
		argsSize := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		if argsSize < 1 || off+argsSize > len(buf) {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: CREATE args size %d exceeds frame", argsSize)
		}
		argsBytes := buf[off : off+argsSize]
		if argsBytes[argsSize-1] != 0 {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: CREATE args not nul-terminated")
		}
		f.Args = string(argsBytes[:argsSize-1])
		off += argsSize

		if off != len(buf) {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: CREATE frame has %d trailing bytes", len(buf)-off)
		}
	case TypeReply:
		want, _ := Size(Frame{Type: TypeReply})
		if len(buf) != want {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: REPLY frame wrong size: got %d want %d", len(buf), want)
		}
		f.Status = ReplyStatus(buf[headerSize])
	case TypeStart, TypeDestroy:
		if len(buf) != headerSize {
			return Frame{}, gerr.New(gerr.DecodeFailure, "control: %s frame has %d trailing bytes", t, len(buf)-headerSize)
		}
	}

	return f, nil
}
