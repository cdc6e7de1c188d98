// Package module defines the capability-bearing value every module
// instance carries (spec.md §3 "Module instance", §9 "Lifecycle hook
// table of nullable function pointers" — expressed here as a struct of
// optional/required fields rather than a table of raw function pointers).
package module

import (
	"fmt"

	"github.com/lattice-run/gatewayrt/internal/gerr"
	"github.com/lattice-run/gatewayrt/internal/message"
)

// Config is the opaque per-module configuration blob forwarded verbatim
// from a configuration document's module entry (spec.md §6).
type Config map[string]interface{}

// Hooks is a module type's capability table. Create, Destroy, and Receive
// are required; ParseConfiguration, FreeConfiguration, and Start are
// optional and may be left nil.
type Hooks struct {
	// Create builds a new instance's opaque state from its configuration.
	Create func(cfg Config) (State, error)

	// Destroy releases an instance's state. Called on removal or topology
	// teardown.
	Destroy func(State)

	// Receive is invoked synchronously, once per delivered message, on the
	// owning broker worker thread.
	Receive func(State, *message.Message)

	// ParseConfiguration optionally transforms a raw config blob before
	// Create sees it (e.g. validating required keys).
	ParseConfiguration func(raw Config) (Config, error)

	// FreeConfiguration optionally releases resources ParseConfiguration
	// allocated, independent of the instance's own State.
	FreeConfiguration func(Config)

	// Start optionally runs once the topology is told to start.
	Start func(State) error
}

// State is a module instance's opaque per-instance handle.
type State interface{}

// Validate checks that every required hook is present.
func (h Hooks) Validate() error {
	if h.Create == nil {
		return gerr.New(gerr.InvalidArgument, "module: Create hook is required")
	}
	if h.Destroy == nil {
		return gerr.New(gerr.InvalidArgument, "module: Destroy hook is required")
	}
	if h.Receive == nil {
		return gerr.New(gerr.InvalidArgument, "module: Receive hook is required")
	}
	return nil
}

// Instance is a process-wide, uniquely named logic unit attached to a
// topology (spec.md §3).
type Instance struct {
	Name    string
	Hooks   Hooks
	State   State
	Library string // identifier of the library/loader that produced this instance
}

// CallCreate invokes hooks.Create, converting a panic into an internal
// error so a misbehaving module can't take down its caller (spec.md §9
// "Exceptions vs. error returns").
func CallCreate(hooks Hooks, cfg Config) (state State, err error) {
	defer recoverInto(&err, "create")
	return hooks.Create(cfg)
}

// CallDestroy invokes hooks.Destroy, recovering any panic.
func CallDestroy(hooks Hooks, state State) (err error) {
	defer recoverInto(&err, "destroy")
	hooks.Destroy(state)
	return nil
}

// CallReceive invokes hooks.Receive, recovering any panic. A panicking
// receive hook does not terminate the owning worker — the broker logs the
// failure and continues serving the next message (spec.md §7: worker
// failures after creation are not surfaced to the caller).
func CallReceive(hooks Hooks, state State, msg *message.Message) (err error) {
	defer recoverInto(&err, "receive")
	hooks.Receive(state, msg)
	return nil
}

// CallStart invokes hooks.Start if present, recovering any panic.
func CallStart(hooks Hooks, state State) (err error) {
	if hooks.Start == nil {
		return nil
	}
	defer recoverInto(&err, "start")
	return hooks.Start(state)
}

func recoverInto(err *error, hook string) {
	if r := recover(); r != nil {
		*err = gerr.New(gerr.Internal, "module: %s hook panicked: %v", hook, r)
	}
}

// String aids log lines and test failure output.
func (i *Instance) String() string {
	return fmt.Sprintf("module(%s)", i.Name)
}
