// Package transport implements the local byte-oriented socket pairs that
// carry out-of-process control/message frames. The broker's own
// publish/subscribe fan-out does not use this package; its subscribe
// sockets are buffered channels (internal/broker). The original source
// backs these with nanomsg
// NN_PAIR sockets over inproc:// and ipc-style URIs; no nanomsg binding is
// available in this module's dependency pack, so Socket is implemented on
// top of the stdlib net package — net.Pipe for in-process pairs, Unix
// domain sockets for real child-process pairs — the same package the
// teacher's own broker/client code uses for its network channel.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/lattice-run/gatewayrt/internal/gerr"
)

// Socket is a bidirectional, message-framed local channel. Send/Recv carry
// whole frames; Recv blocks until a frame arrives, the socket is closed, or
// the deadline set by SetDeadline elapses.
type Socket interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
	SetDeadline(t time.Time) error
	Close() error
}

// framedConn adapts a net.Conn into a Socket by length-prefixing every
// frame (4-byte big-endian length, then payload). This is the wire framing
// both the control channel and the message channel use.
type framedConn struct {
	conn net.Conn
	r    *bufio.Reader
}

func newFramedConn(conn net.Conn) *framedConn {
	return &framedConn{conn: conn, r: bufio.NewReader(conn)}
}

func (f *framedConn) Send(frame []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := f.conn.Write(hdr[:]); err != nil {
		return gerr.Wrap(gerr.TransportFailure, err, "transport: write frame header")
	}
	if len(frame) > 0 {
		if _, err := f.conn.Write(frame); err != nil {
			return gerr.Wrap(gerr.TransportFailure, err, "transport: write frame body")
		}
	}
	return nil
}

func (f *framedConn) Recv() ([]byte, error) {
	var hdr [4]byte
	if _, err := readFull(f.r, hdr[:]); err != nil {
		return nil, gerr.Wrap(gerr.TransportFailure, err, "transport: read frame header")
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := readFull(f.r, buf); err != nil {
		return nil, gerr.Wrap(gerr.TransportFailure, err, "transport: read frame body")
	}
	return buf, nil
}

func (f *framedConn) SetDeadline(t time.Time) error { return f.conn.SetDeadline(t) }
func (f *framedConn) Close() error                  { return f.conn.Close() }

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// NewPipePair returns two Sockets connected in-process, without touching
// the filesystem. Equivalent to the original source's inproc:// nanomsg
// pairs.
func NewPipePair() (a, b Socket) {
	ca, cb := net.Pipe()
	return newFramedConn(ca), newFramedConn(cb)
}

// URI identifies a local-IPC endpoint: "ipc://" followed by an identifier
// (spec.md §4.4). Two processes rendezvous on the same identifier by
// dialing/listening on the same filesystem path derived from it.
type URI string

// NewURI builds an ipc:// URI from a caller-supplied or generated id.
func NewURI(id string) URI {
	return URI("ipc://" + id)
}

// Path resolves a URI to the Unix-domain socket path backing it, rooted
// under the OS temp directory so concurrent gateway processes on the same
// host don't collide with unrelated sockets.
func (u URI) Path() string {
	id := string(u)
	const prefix = "ipc://"
	if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
		id = id[len(prefix):]
	}
	return fmt.Sprintf("%s/gatewayrt-%s.sock", os.TempDir(), id)
}

// Listen opens a Unix-domain listener at uri's path for the gateway side of
// an out-of-process channel to accept the remote's connection.
func Listen(uri URI) (net.Listener, error) {
	path := uri.Path()
	_ = os.Remove(path) // best-effort: stale socket file from a prior crash
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, gerr.Wrap(gerr.TransportFailure, err, "transport: listen %s", uri)
	}
	return l, nil
}

// Accept wraps a listener's next connection as a Socket.
func Accept(l net.Listener) (Socket, error) {
	conn, err := l.Accept()
	if err != nil {
		return nil, gerr.Wrap(gerr.TransportFailure, err, "transport: accept")
	}
	return newFramedConn(conn), nil
}

// Dial connects to the remote end of an out-of-process channel (used by the
// proxy gateway / hosted-module side, spec.md §4.4 "Remote side").
func Dial(uri URI, timeout time.Duration) (Socket, error) {
	conn, err := net.DialTimeout("unix", uri.Path(), timeout)
	if err != nil {
		return nil, gerr.Wrap(gerr.TransportFailure, err, "transport: dial %s", uri)
	}
	return newFramedConn(conn), nil
}
