// Package topology implements the topology manager (spec.md §4.2): the
// ordered collection of module instances and links attached to one
// broker, with transactional creation, best-effort teardown, and named
// lifecycle event notification.
//
// Grounded on the teacher's public/orchestrator package (Orchestrator
// holding an ordered agent list plus an EventBridge) generalized from
// agent pipelines to the spec's module/link model, and on the original
// source's module_info_list / gateway creation/destruction sequence for
// the transactional-create, best-effort-destroy split.
package topology

import (
	"github.com/rs/zerolog"

	"github.com/lattice-run/gatewayrt/internal/broker"
	"github.com/lattice-run/gatewayrt/internal/config"
	"github.com/lattice-run/gatewayrt/internal/events"
	"github.com/lattice-run/gatewayrt/internal/gerr"
	"github.com/lattice-run/gatewayrt/internal/glog"
	"github.com/lattice-run/gatewayrt/internal/message"
	"github.com/lattice-run/gatewayrt/internal/module"
	"github.com/lattice-run/gatewayrt/internal/oop"
)

// LifecycleState is the supplemented per-module state topology_list_modules
// reports beyond what spec.md §6 requires (attached vs. started), grounded
// on the original source's MODULE_CREATED/MODULE_STARTED transitions it
// tracks internally but never otherwise surfaces.
type LifecycleState string

const (
	StateCreated LifecycleState = "created"
	StateStarted LifecycleState = "started"
)

// ModuleHandle identifies one attached module instance. The concrete type
// is *module.Instance; callers treat it opaquely, as spec.md §3 requires.
type ModuleHandle = *module.Instance

// ModuleInfo is one entry of topology_list_modules' result.
type ModuleInfo struct {
	Name string
	// Sources is the ordered list of concrete module names feeding this
	// module, or nil if this module is the sink of a wildcard-source link
	// (spec.md §4.2 "a module fed by '*' reports no enumerable source
	// list").
	Sources []string
	State   LifecycleState
	Loader  string
}

type linkRecord struct {
	source string // "*" or a concrete module name
	sink   string
}

type moduleRecord struct {
	instance   *module.Instance
	library    module.Library // non-nil only for native-dynamic modules
	loaderName string
	state      LifecycleState
}

// Topology owns one broker and the ordered modules/links attached to it.
// Topology holds no lock of its own (spec.md §5: the topology manager
// relies on single-threaded callers and the broker's own lock); concurrent
// calls into the same Topology from multiple goroutines are undefined
// behavior, same as the original source's single-threaded gateway API.
type Topology struct {
	broker *broker.Broker

	order   []string
	modules map[string]*moduleRecord
	links   []linkRecord
	loaders map[string]config.LoaderEntry

	events *events.Bus
	log    zerolog.Logger
}

// Create builds a new Topology from a parsed configuration document,
// attaching every module and installing every link. Creation is
// transactional: if any step fails, every module and link already
// installed in this call is rolled back and the error is returned,
// leaving no broker behind (spec.md §4.2 "Create").
func Create(doc *config.Document) (*Topology, error) {
	t := &Topology{
		broker:  broker.Create(),
		modules: make(map[string]*moduleRecord),
		loaders: make(map[string]config.LoaderEntry, len(doc.Loaders)),
		events:  events.NewBus(),
		log:     glog.Component("topology"),
	}
	for _, l := range doc.Loaders {
		t.loaders[l.Name] = l
	}

	rollback := func(cause error) (*Topology, error) {
		for i := len(t.order) - 1; i >= 0; i-- {
			_ = t.removeModuleByName(t.order[i])
		}
		t.broker.DecRef()
		return nil, cause
	}

	for _, m := range doc.Modules {
		if err := t.AddModule(m); err != nil {
			return rollback(err)
		}
	}
	for _, l := range doc.Links {
		if err := t.AddLink(l.Source, l.Sink); err != nil {
			return rollback(err)
		}
	}

	t.events.Emit(events.Created, "")
	return t, nil
}

// AddModule instantiates entry via its configured loader and attaches it
// to the broker. If the topology already has a wildcard-source link
// targeting some other module, the new module is automatically fanned in
// as a source of that link (spec.md §4.2 "a wildcard link also captures
// modules added after it was created").
func (t *Topology) AddModule(entry config.ModuleEntry) error {
	if entry.Name == "*" {
		return gerr.New(gerr.InvalidArgument, "topology: %q is a reserved module name", entry.Name)
	}
	if _, exists := t.modules[entry.Name]; exists {
		return gerr.New(gerr.Duplicate, "topology: module %q already exists", entry.Name)
	}
	loader, ok := t.loaders[entry.Loader]
	if !ok {
		return gerr.New(gerr.NotFound, "topology: loader %q not declared", entry.Loader)
	}

	instance, lib, err := t.instantiate(entry, loader)
	if err != nil {
		return err
	}

	if err := t.broker.AddModule(instance); err != nil {
		_ = module.CallDestroy(instance.Hooks, instance.State)
		if lib != nil {
			_ = lib.Unload()
		}
		return err
	}

	if proxy, ok := instance.State.(*oop.Proxy); ok {
		name := instance.Name
		proxy.BeginForwarding(func(msg *message.Message) error {
			return t.broker.Publish(name, msg)
		})
	}

	t.modules[entry.Name] = &moduleRecord{
		instance:   instance,
		library:    lib,
		loaderName: entry.Loader,
		state:      StateCreated,
	}
	t.order = append(t.order, entry.Name)

	for _, l := range t.links {
		if l.source == "*" && l.sink != entry.Name {
			_ = t.broker.AddLink(entry.Name, l.sink)
		}
	}

	t.events.Emit(events.ModuleListChanged, entry.Name)
	return nil
}
