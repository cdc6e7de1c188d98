package broker

import (
	"sync"

	"github.com/lattice-run/gatewayrt/internal/idgen"
	"github.com/lattice-run/gatewayrt/internal/module"
)

// inboxCapacity bounds how far a slow subscriber can lag behind the
// publish path before new frames for it are dropped. Publish never blocks
// on a slow sink (spec.md §5 "No ordering is guaranteed between... sinks");
// a full inbox only means that one sink's delivery is dropped, not that
// publish fails for the caller.
const inboxCapacity = 256

// moduleRecord is the broker's bookkeeping for one attached module: its
// reference to the module instance, its worker goroutine, its "subscribe
// socket" (here, a closable buffered channel), and its quit token
// (spec.md §3 "Broker module record").
type moduleRecord struct {
	instance *module.Instance
	identity string // hex-encoded idgen.Identity of this module's own name
	quitToken string

	// sockMu is the per-worker socket lock (spec.md §5, lock #1): it
	// guards inbox and closed so a concurrent remove can force the
	// worker's receive loop out by closing the channel, and so the
	// dispatch loop never sends on an already-closed channel.
	sockMu sync.Mutex
	inbox  chan []byte
	closed bool

	// sources is this record's subscription filter: the set of topic
	// tags (peer identities, plus this record's own quit token) its
	// subscribe socket currently accepts (spec.md §4.1 "Subscription
	// model"). Mutated only while the broker's modules lock is held.
	sources map[string]struct{}

	done chan struct{}
}

func newModuleRecord(instance *module.Instance) *moduleRecord {
	identity := idgen.IdentityOf(instance.Name).String()
	token := idgen.QuitToken()
	return &moduleRecord{
		instance:  instance,
		identity:  identity,
		quitToken: token,
		inbox:     make(chan []byte, inboxCapacity),
		sources:   map[string]struct{}{token: {}},
		done:      make(chan struct{}),
	}
}

// deliver attempts a non-blocking send of frame onto this record's
// subscribe socket. It reports whether the frame was accepted: false means
// either the socket is closed or the inbox is full and the frame was
// dropped.
func (r *moduleRecord) deliver(frame []byte) bool {
	r.sockMu.Lock()
	defer r.sockMu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.inbox <- frame:
		return true
	default:
		return false
	}
}

// close closes the subscribe socket, the shutdown handshake's fallback
// forward-progress mechanism (spec.md §4.1 step (b)). Safe to call more
// than once.
func (r *moduleRecord) close() {
	r.sockMu.Lock()
	defer r.sockMu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.inbox)
}

// subscribe adds tag to this record's filter. Caller holds the broker's
// modules lock.
func (r *moduleRecord) subscribe(tag string) {
	r.sources[tag] = struct{}{}
}

// unsubscribe removes tag from this record's filter. Caller holds the
// broker's modules lock.
func (r *moduleRecord) unsubscribe(tag string) {
	delete(r.sources, tag)
}

// accepts reports whether this record's filter currently matches tag.
func (r *moduleRecord) accepts(tag string) bool {
	_, ok := r.sources[tag]
	return ok
}
