// Package broker implements the reference-counted, thread-safe pub/sub
// core of the gateway runtime (spec.md §4.1): one worker goroutine per
// attached module, a shared publish path, per-subscription filtering by
// publisher identity, and a guaranteed-delivery shutdown handshake.
//
// Grounded on the teacher's internal/broker (Topic.Subscribers fan-out
// loop) generalized to per-module worker goroutines and quit-token
// cancellation, and on the original source's broker.c (nanomsg PUB/SUB,
// per-module receive_socket + socket_lock, quit_message_guid).
package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-run/gatewayrt/internal/gerr"
	"github.com/lattice-run/gatewayrt/internal/glog"
	"github.com/lattice-run/gatewayrt/internal/idgen"
	"github.com/lattice-run/gatewayrt/internal/message"
	"github.com/lattice-run/gatewayrt/internal/module"
	"github.com/lattice-run/gatewayrt/internal/telemetry"
)

// Broker is the pub/sub core. Zero value is not usable; build one with
// Create.
type Broker struct {
	refcount int32 // atomic

	// mu is the broker modules lock (spec.md §5, lock #2): protects the
	// module table and every subscription-filter mutation.
	mu      sync.Mutex
	modules map[string]*moduleRecord

	log zerolog.Logger
}

// Create builds a new Broker with reference count 1.
func Create() *Broker {
	return &Broker{
		refcount: 1,
		modules:  make(map[string]*moduleRecord),
		log:      glog.Component("broker"),
	}
}

// IncRef increments the broker's reference count. The owning topology
// manager holds the reference Create returns; attached module records do
// not take references of their own, so AddModule and RemoveModule leave
// the count unchanged.
func (b *Broker) IncRef() {
	atomic.AddInt32(&b.refcount, 1)
}

// DecRef releases one reference. When the count reaches zero the broker's
// resources (module table, per-module sockets) are torn down; callers must
// not use the Broker afterward.
func (b *Broker) DecRef() {
	if atomic.AddInt32(&b.refcount, -1) == 0 {
		b.mu.Lock()
		defer b.mu.Unlock()
		for name, rec := range b.modules {
			rec.close()
			<-rec.done
			delete(b.modules, name)
		}
	}
}

// RefCount returns the current reference count, chiefly for tests asserting
// spec.md §8's "broker's reference count is zero" invariant.
func (b *Broker) RefCount() int32 {
	return atomic.LoadInt32(&b.refcount)
}

// AddModule attaches instance to the broker: a worker goroutine starts
// running immediately, reading from the module's subscribe socket.
func (b *Broker) AddModule(instance *module.Instance) error {
	if instance == nil || instance.Name == "" {
		return gerr.New(gerr.InvalidArgument, "broker: module instance must have a name")
	}
	if err := instance.Hooks.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	if _, exists := b.modules[instance.Name]; exists {
		b.mu.Unlock()
		return gerr.New(gerr.Duplicate, "broker: module %q already attached", instance.Name)
	}
	rec := newModuleRecord(instance)
	b.modules[instance.Name] = rec
	b.mu.Unlock()

	go b.runWorker(rec)
	b.log.Debug().Str("module", instance.Name).Msg("module attached")
	return nil
}

// RemoveModule detaches the module, running the shutdown handshake of
// spec.md §4.1: send quit token, close the socket as a fallback, join the
// worker, tear down the record.
func (b *Broker) RemoveModule(name string) error {
	b.mu.Lock()
	rec, exists := b.modules[name]
	if !exists {
		b.mu.Unlock()
		return gerr.New(gerr.NotFound, "broker: module %q not attached", name)
	}
	delete(b.modules, name)
	// Drop every remaining subscription that names this module as a
	// source, so a late in-flight publish from some other module can no
	// longer match a record that still thinks it wants this module's
	// identity. The topology layer is responsible for link bookkeeping;
	// this is defense in depth against an inconsistent caller.
	identity := rec.identity
	for _, other := range b.modules {
		other.unsubscribe(identity)
	}
	b.mu.Unlock()

	// (a) send quit token.
	rec.deliver([]byte(rec.quitToken))
	// (b) close the socket as a fallback.
	rec.close()
	// (c) join the worker.
	<-rec.done
	// (d) tear down: destroy the instance.
	if err := module.CallDestroy(rec.instance.Hooks, rec.instance.State); err != nil {
		b.log.Warn().Err(err).Str("module", name).Msg("destroy hook failed during removal")
	}

	b.log.Debug().Str("module", name).Msg("module removed")
	return nil
}

// AddLink installs a broker-level subscription: sink's filter accepts
// frames published under source's identity. Broker links are always
// concrete (source, sink) pairs — wildcard-source fan-out is a topology
// concern (spec.md §4.1 "Subscription model").
func (b *Broker) AddLink(source, sink string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.modules[source]; !ok {
		return gerr.New(gerr.NotFound, "broker: source module %q not attached", source)
	}
	sinkRec, ok := b.modules[sink]
	if !ok {
		return gerr.New(gerr.NotFound, "broker: sink module %q not attached", sink)
	}

	tag := idgen.IdentityOf(source).String()
	if sinkRec.accepts(tag) {
		return gerr.New(gerr.Duplicate, "broker: link %s -> %s already present", source, sink)
	}
	sinkRec.subscribe(tag)
	return nil
}

// RemoveLink reverses AddLink.
func (b *Broker) RemoveLink(source, sink string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sinkRec, ok := b.modules[sink]
	if !ok {
		return gerr.New(gerr.NotFound, "broker: sink module %q not attached", sink)
	}
	tag := idgen.IdentityOf(source).String()
	if !sinkRec.accepts(tag) {
		return gerr.New(gerr.NotFound, "broker: link %s -> %s not present", source, sink)
	}
	sinkRec.unsubscribe(tag)
	return nil
}

// Publish delivers msg to every module currently subscribed to source's
// identity (spec.md §4.1 "Publish path"). The broker lock is held only
// across the filter scan and non-blocking per-sink sends, never across a
// blocking operation.
func (b *Broker) Publish(source string, msg *message.Message) error {
	ctx, span := telemetry.StartSpan(context.Background(), "broker.Publish")
	defer span.End()

	if _, err := b.requireAttached(source); err != nil {
		return err
	}
	telemetry.RecordPublish(ctx, source)

	payload, err := msg.Marshal()
	if err != nil {
		return gerr.Wrap(gerr.InvalidArgument, err, "broker: marshal message from %q", source)
	}
	tag := idgen.IdentityOf(source).String()
	frame := make([]byte, 0, idgen.IdentityTagLen+len(payload))
	frame = append(frame, []byte(tag)...)
	frame = append(frame, payload...)

	b.mu.Lock()
	defer b.mu.Unlock()
	for name, rec := range b.modules {
		if name == source {
			continue // a module never receives its own publications (spec.md §8 scenario 1)
		}
		if rec.accepts(tag) {
			if !rec.deliver(frame) {
				b.log.Warn().Str("source", source).Str("sink", name).Msg("dropped message: sink socket closed or full")
				telemetry.RecordDrop(ctx, source, name)
			}
		}
	}
	return nil
}

// PublishAndWait publishes msg from source, then blocks until every
// current subscriber has drained its inbox past this message or timeout
// elapses. It is a best-effort convenience, not part of the delivery
// guarantee spec.md §4.1 makes for Publish: a slow or wedged receive hook
// can still make this return a timeout error even though the message was
// accepted and will eventually be processed.
func (b *Broker) PublishAndWait(source string, msg *message.Message, timeout time.Duration) error {
	if err := b.Publish(source, msg); err != nil {
		return err
	}

	tag := idgen.IdentityOf(source).String()
	b.mu.Lock()
	var sinks []*moduleRecord
	for name, rec := range b.modules {
		if name == source {
			continue
		}
		if rec.accepts(tag) {
			sinks = append(sinks, rec)
		}
	}
	b.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for _, rec := range sinks {
		for len(rec.inbox) > 0 {
			if time.Now().After(deadline) {
				return gerr.New(gerr.Timeout, "broker: publish-and-wait timed out draining %q", rec.instance.Name)
			}
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}

func (b *Broker) requireAttached(name string) (*moduleRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.modules[name]
	if !ok {
		return nil, gerr.New(gerr.NotFound, "broker: module %q not attached", name)
	}
	return rec, nil
}

// ModuleNames returns a snapshot of every currently attached module name,
// in no particular order.
func (b *Broker) ModuleNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.modules))
	for name := range b.modules {
		names = append(names, name)
	}
	return names
}

// HasModule reports whether name is currently attached.
func (b *Broker) HasModule(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.modules[name]
	return ok
}

// runWorker is the per-module worker goroutine loop (spec.md §4.1 "Worker
// thread").
func (b *Broker) runWorker(rec *moduleRecord) {
	defer close(rec.done)
	for frame := range rec.inbox {
		if string(frame) == rec.quitToken {
			return
		}
		if len(frame) < idgen.IdentityTagLen {
			b.log.Warn().Str("module", rec.instance.Name).Msg("dropped malformed frame: too short for identity prefix")
			continue
		}
		payload := frame[idgen.IdentityTagLen:]
		msg, err := message.Unmarshal(payload)
		if err != nil {
			b.log.Warn().Err(err).Str("module", rec.instance.Name).Msg("dropped frame: deserialize failed")
			continue
		}
		if err := module.CallReceive(rec.instance.Hooks, rec.instance.State, msg); err != nil {
			b.log.Warn().Err(err).Str("module", rec.instance.Name).Msg("receive hook failed")
		}
	}
}
