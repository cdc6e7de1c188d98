package control

import (
	"testing"

	"github.com/lattice-run/gatewayrt/internal/gerr"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripCreate(t *testing.T) {
	f := Frame{
		Type:                  TypeCreate,
		GatewayMessageVersion: 1,
		URIType:               1,
		URI:                   "ipc://chan-1",
		Args:                  `{"x":1}`,
	}

	buf, err := Encode(f)
	require.NoError(t, err)
	require.Equal(t, byte(0xA1), buf[0])
	require.Equal(t, byte(0x6C), buf[1])
	require.Equal(t, byte(0x01), buf[2])
	require.Equal(t, byte(TypeCreate), buf[3])

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, f, decoded)
}

func TestEncodeDecodeRoundTripReply(t *testing.T) {
	f := Frame{Type: TypeReply, Status: StatusRejected}
	buf, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, f, decoded)
}

func TestEncodeDecodeRoundTripStartDestroy(t *testing.T) {
	for _, typ := range []Type{TypeStart, TypeDestroy} {
		f := Frame{Type: typ}
		buf, err := Encode(f)
		require.NoError(t, err)
		decoded, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, f, decoded)
	}
}

func TestEncodeRefusesErrorType(t *testing.T) {
	_, err := Encode(Frame{Type: TypeError})
	require.Error(t, err)
	require.True(t, gerr.Is(err, gerr.InvalidArgument))
}

func TestEncodeIntoZeroLengthReturnsSize(t *testing.T) {
	f := Frame{Type: TypeStart}
	n, err := EncodeInto(nil, f)
	require.NoError(t, err)
	require.Equal(t, headerSize, n)
}

func TestEncodeIntoBufferTooSmall(t *testing.T) {
	f := Frame{Type: TypeCreate, URI: "ipc://x", Args: "{}"}
	want, _ := Size(f)
	buf := make([]byte, want-1)
	_, err := EncodeInto(buf, f)
	require.Error(t, err)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, err := Decode([]byte{0xA1, 0x6C, 0x01})
	require.Error(t, err)
	require.True(t, gerr.Is(err, gerr.DecodeFailure))
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	f := Frame{Type: TypeStart}
	buf, _ := Encode(f)
	buf[0] = 0x00
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	f := Frame{Type: TypeStart}
	buf, _ := Encode(f)
	buf[2] = 0x09
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	f := Frame{Type: TypeStart}
	buf, _ := Encode(f)
	buf[3] = 0x09
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeRejectsSizeMismatch(t *testing.T) {
	f := Frame{Type: TypeStart}
	buf, _ := Encode(f)
	// Extra trailing byte: declared size still says headerSize, buffer is longer.
	longer := append(buf, 0x00)
	_, err := Decode(longer)
	require.Error(t, err)

	// Shorter than declared: truncate buffer but keep declared size as-is.
	shorter := buf[:len(buf)-1]
	_, err = Decode(shorter)
	require.Error(t, err)
}

func TestDecodeRejectsTrailingBytesOnCreate(t *testing.T) {
	f := Frame{Type: TypeCreate, URI: "ipc://chan", Args: "{}"}
	buf, err := Encode(f)
	require.NoError(t, err)

	// Forge a frame that claims the longer total size so the top-level
	// size check passes but CREATE's own offset walk finds trailing bytes.
	longer := append(buf, 0xAA)

	// Directly corrupt the declared total-size field to match the new length.
	longer[4] = byte(len(longer) >> 24)
	longer[5] = byte(len(longer) >> 16)
	longer[6] = byte(len(longer) >> 8)
	longer[7] = byte(len(longer))

	_, err = Decode(longer)
	require.Error(t, err)
}
