package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-run/gatewayrt/internal/message"
	"github.com/lattice-run/gatewayrt/internal/module"
)

// recorder collects every message a recording instance's Receive hook gets,
// in a slice guarded by a mutex, for assertions from the test goroutine.
type recorder struct {
	mu       sync.Mutex
	received []*message.Message
}

func (r *recorder) messages() []*message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*message.Message, len(r.received))
	copy(out, r.received)
	return out
}

func newRecordingInstance(name string) (*module.Instance, *recorder) {
	rec := &recorder{}
	hooks := module.Hooks{
		Create:  func(module.Config) (module.State, error) { return nil, nil },
		Destroy: func(module.State) {},
		Receive: func(_ module.State, msg *message.Message) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.received = append(rec.received, msg)
		},
	}
	return &module.Instance{Name: name, Hooks: hooks}, rec
}

func waitForCount(t *testing.T, rec *recorder, n int) []*message.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := rec.messages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, got %d", n, len(rec.messages()))
	return nil
}

func TestSingleInProcessEcho(t *testing.T) {
	b := Create()
	a, _ := newRecordingInstance("A")
	sink, sinkRec := newRecordingInstance("B")

	require.NoError(t, b.AddModule(a))
	require.NoError(t, b.AddModule(sink))
	require.NoError(t, b.AddLink("A", "B"))

	msg := message.New(map[string]string{"k": "v"}, []byte{0x01, 0x02})
	require.NoError(t, b.Publish("A", msg))

	got := waitForCount(t, sinkRec, 1)
	require.True(t, msg.Equal(got[0]))

	require.NoError(t, b.Publish("B", message.New(nil, []byte{0x09})))
	time.Sleep(20 * time.Millisecond)
	require.Len(t, sinkRec.messages(), 1, "B must not receive its own publication")
}

func TestDuplicateModuleRejected(t *testing.T) {
	b := Create()
	a, _ := newRecordingInstance("A")
	dup, _ := newRecordingInstance("A")

	require.NoError(t, b.AddModule(a))
	err := b.AddModule(dup)
	require.Error(t, err)
}

func TestDuplicateLinkRejected(t *testing.T) {
	b := Create()
	a, _ := newRecordingInstance("A")
	s, _ := newRecordingInstance("B")
	require.NoError(t, b.AddModule(a))
	require.NoError(t, b.AddModule(s))

	require.NoError(t, b.AddLink("A", "B"))
	err := b.AddLink("A", "B")
	require.Error(t, err)
}

func TestRemoveModuleShutdownHandshake(t *testing.T) {
	b := Create()
	a, _ := newRecordingInstance("A")
	require.NoError(t, b.AddModule(a))
	require.NoError(t, b.RemoveModule("A"))
	require.False(t, b.HasModule("A"))

	err := b.RemoveModule("A")
	require.Error(t, err)
}

func TestPublishToUnknownSourceFails(t *testing.T) {
	b := Create()
	err := b.Publish("ghost", message.New(nil, nil))
	require.Error(t, err)
}

func TestWildcardFanInViaManualSubscriptions(t *testing.T) {
	// The broker only knows concrete (source, sink) links; wildcard
	// fan-in is a topology-layer concept that expands into exactly this
	// set of AddLink calls (spec.md §4.1 "Subscription model").
	b := Create()
	a, _ := newRecordingInstance("A")
	bb, _ := newRecordingInstance("B")
	c, cRec := newRecordingInstance("C")
	require.NoError(t, b.AddModule(a))
	require.NoError(t, b.AddModule(bb))
	require.NoError(t, b.AddModule(c))
	require.NoError(t, b.AddLink("A", "C"))
	require.NoError(t, b.AddLink("B", "C"))

	require.NoError(t, b.Publish("A", message.New(nil, []byte{1})))
	require.NoError(t, b.Publish("B", message.New(nil, []byte{2})))

	got := waitForCount(t, cRec, 2)
	require.Len(t, got, 2)

	require.NoError(t, b.Publish("C", message.New(nil, []byte{3})))
	time.Sleep(20 * time.Millisecond)
	require.Len(t, cRec.messages(), 2)
}

func TestRefCounting(t *testing.T) {
	b := Create()
	require.EqualValues(t, 1, b.RefCount())
	b.IncRef()
	require.EqualValues(t, 2, b.RefCount())
	b.DecRef()
	require.EqualValues(t, 1, b.RefCount())
	b.DecRef()
	require.EqualValues(t, 0, b.RefCount())
}
