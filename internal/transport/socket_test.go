package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipePairRoundTrip(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	done := make(chan error, 1)
	go func() {
		done <- a.Send([]byte("hello"))
	}()

	got, err := b.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
	require.NoError(t, <-done)
}

func TestPipePairCloseUnblocksRecv(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := b.Recv()
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-errc:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestURIPath(t *testing.T) {
	u := NewURI("control-1")
	require.Contains(t, u.Path(), "gatewayrt-control-1.sock")
}

func TestListenDialAccept(t *testing.T) {
	uri := NewURI("test-" + time.Now().Format("150405.000000000"))
	l, err := Listen(uri)
	require.NoError(t, err)
	defer l.Close()

	serverSock := make(chan Socket, 1)
	go func() {
		s, err := Accept(l)
		require.NoError(t, err)
		serverSock <- s
	}()

	client, err := Dial(uri, time.Second)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverSock
	defer server.Close()

	require.NoError(t, client.Send([]byte("ping")))
	got, err := server.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), got)
}
