package oop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-run/gatewayrt/internal/config"
	"github.com/lattice-run/gatewayrt/internal/idgen"
	"github.com/lattice-run/gatewayrt/internal/message"
	"github.com/lattice-run/gatewayrt/internal/module"
	"github.com/lattice-run/gatewayrt/internal/transport"
)

// TestProxyRemoteRoundTrip runs a proxy (gateway side) against a
// RemoteRuntime (module side) over real Unix-domain sockets, exercising
// the full CREATE/REPLY/START/message/DESTROY sequence with no child
// process involved.
func TestProxyRemoteRoundTrip(t *testing.T) {
	entry := &config.OOPEntry{
		Activation: config.ActivationNone,
		ControlID:  "oop-test-ctrl-" + idgen.New(),
		MessageID:  "oop-test-data-" + idgen.New(),
		Timeout:    2 * time.Second,
	}

	var received []*message.Message
	var mu sync.Mutex
	remoteHooks := module.Hooks{
		Create:  func(cfg module.Config) (module.State, error) { return cfg, nil },
		Destroy: func(module.State) {},
		Receive: func(_ module.State, msg *message.Message) {
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
		},
	}

	type createResult struct {
		state module.State
		err   error
	}
	proxyHooks := Hooks("echo-module", entry)
	createCh := make(chan createResult, 1)
	go func() {
		state, err := proxyHooks.Create(module.Config{"greeting": "hi"})
		createCh <- createResult{state, err}
	}()

	remote, err := DialRemote(transport.NewURI(entry.ControlID), transport.NewURI(entry.MessageID), entry.Timeout, remoteHooks)
	require.NoError(t, err)
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- remote.Run() }()

	res := <-createCh
	require.NoError(t, res.err)
	proxy := res.state.(*Proxy)

	require.NoError(t, proxyHooks.Start(proxy))

	msg := message.New(map[string]string{"topic": "greeting"}, []byte("hello"))
	proxyHooks.Receive(proxy, msg)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	proxyHooks.Destroy(proxy)
	require.NoError(t, <-runErrCh)
}
