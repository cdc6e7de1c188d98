// Package gateway is the external API of the gateway runtime (spec.md
// §6): a thin, documented wrapper over internal/topology that is the only
// package outside internal/ a caller needs to import to build, run, and
// tear down a topology.
//
// Grounded on the teacher's public/agent and public/orchestrator packages
// (a small public surface delegating to internal/ implementations), and
// on the original source's gateway.h public API (Gateway_Create,
// Gateway_Destroy, Gateway_AddModule, …) for the operation set itself.
package gateway

import (
	"time"

	"github.com/lattice-run/gatewayrt/internal/config"
	"github.com/lattice-run/gatewayrt/internal/events"
	"github.com/lattice-run/gatewayrt/internal/gerr"
	"github.com/lattice-run/gatewayrt/internal/message"
	"github.com/lattice-run/gatewayrt/internal/topology"
)

// Topology is a running gateway topology: a set of attached modules wired
// together by links, backed by one message broker.
type Topology struct {
	inner *topology.Topology
}

// ModuleHandle identifies one attached module instance.
type ModuleHandle = topology.ModuleHandle

// ModuleInfo is one topology_list_modules result entry.
type ModuleInfo = topology.ModuleInfo

// EventKind names a topology lifecycle event.
type EventKind = events.Kind

const (
	EventCreated           = events.Created
	EventDestroyed         = events.Destroyed
	EventStarted           = events.Started
	EventModuleListChanged = events.ModuleListChanged
)

// Event is the payload delivered to an event callback.
type Event = events.Event

// EventCallback receives an Event and the user-data it was registered
// with.
type EventCallback = events.Callback

// Create builds a topology from an already parsed configuration document
// (spec.md §6 topology_create). Creation is all-or-nothing.
func Create(doc *config.Document) (*Topology, error) {
	inner, err := topology.Create(doc)
	if err != nil {
		return nil, err
	}
	return &Topology{inner: inner}, nil
}

// Load reads and parses a configuration document from path (JSON or YAML
// by extension) and builds a topology from it.
func Load(path string) (*Topology, error) {
	doc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return Create(doc)
}

// Destroy tears the topology down, best-effort (spec.md §6
// topology_destroy).
func (t *Topology) Destroy() error {
	return t.inner.Destroy()
}

// AddModule attaches a new module instance described by entry (spec.md §6
// topology_add_module).
func (t *Topology) AddModule(entry config.ModuleEntry) error {
	return t.inner.AddModule(entry)
}

// RemoveModule detaches handle's module (spec.md §6
// topology_remove_module).
func (t *Topology) RemoveModule(handle ModuleHandle) error {
	return t.inner.RemoveModule(handle)
}

// RemoveModuleByName detaches the named module (spec.md §6
// topology_remove_module_by_name).
func (t *Topology) RemoveModuleByName(name string) error {
	return t.inner.RemoveModuleByName(name)
}

// AddLink installs a link from source to sink; source may be "*" (spec.md
// §6 topology_add_link).
func (t *Topology) AddLink(source, sink string) error {
	return t.inner.AddLink(source, sink)
}

// RemoveLink reverses AddLink (spec.md §6 topology_remove_link).
func (t *Topology) RemoveLink(source, sink string) error {
	return t.inner.RemoveLink(source, sink)
}

// Start runs every attached module's Start hook (spec.md §6
// topology_start).
func (t *Topology) Start() error {
	return t.inner.Start()
}

// StartModule runs a single module's Start hook (spec.md §6
// topology_start_module).
func (t *Topology) StartModule(name string) error {
	return t.inner.StartModule(name)
}

// ListModules reports every attached module (spec.md §6
// topology_list_modules).
func (t *Topology) ListModules() []ModuleInfo {
	return t.inner.ListModules()
}

// AddEventCallback registers callback to fire whenever kind is emitted
// (spec.md §6 topology_add_event_callback).
func (t *Topology) AddEventCallback(kind EventKind, callback EventCallback, userData interface{}) {
	t.inner.AddEventCallback(kind, callback, userData)
}

// PublishAndWait publishes msg from source and blocks until every current
// subscriber's worker has drained its inbox up to and including msg, or
// timeout elapses. It is a supplemented convenience (not in spec.md's
// external interface list) grounded on the teacher's
// EventBridge.PublishAndWait, useful for tests and synchronous tooling
// that can't otherwise observe delivery completion.
func (t *Topology) PublishAndWait(source string, msg *message.Message, timeout time.Duration) error {
	return t.inner.PublishAndWait(source, msg, timeout)
}

// IsNotFound reports whether err represents a not-found condition,
// exposed so callers needn't import internal/gerr.
func IsNotFound(err error) bool { return gerr.Is(err, gerr.NotFound) }

// IsDuplicate reports whether err represents a duplicate-registration
// condition.
func IsDuplicate(err error) bool { return gerr.Is(err, gerr.Duplicate) }
