package topology

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lattice-run/gatewayrt/internal/config"
	"github.com/lattice-run/gatewayrt/internal/events"
	"github.com/lattice-run/gatewayrt/internal/module"
)

func TestListModulesReportsWildcardSourcesAsNil(t *testing.T) {
	doc := &config.Document{
		Loaders: []config.LoaderEntry{{Name: "noop", Type: config.LoaderOutOfProcess}},
	}
	_ = doc
	// Out-of-process loaders require a live handshake; exercised end to
	// end in internal/oop. Here ListModules' source-reporting rule is
	// tested directly against topology state via the public operations
	// that do not require a real module backend.
	ty := &Topology{
		modules: map[string]*moduleRecord{
			"a": {instance: &module.Instance{Name: "a"}, state: StateCreated, loaderName: "noop"},
			"b": {instance: &module.Instance{Name: "b"}, state: StateCreated, loaderName: "noop"},
			"c": {instance: &module.Instance{Name: "c"}, state: StateCreated, loaderName: "noop"},
		},
		order:  []string{"a", "b", "c"},
		links:  []linkRecord{{source: "a", sink: "b"}, {source: "*", sink: "c"}},
		events: events.NewBus(),
	}

	infos := ty.ListModules()
	require.Len(t, infos, 3)
	byName := map[string]ModuleInfo{}
	for _, i := range infos {
		byName[i.Name] = i
	}
	require.Equal(t, []string{"a"}, byName["b"].Sources)
	require.Nil(t, byName["c"].Sources)
	require.Nil(t, byName["a"].Sources)
}

func TestAddLinkRejectsWildcardSink(t *testing.T) {
	ty := &Topology{
		modules: map[string]*moduleRecord{"a": {instance: &module.Instance{Name: "a"}}},
		order:   []string{"a"},
		events:  events.NewBus(),
	}
	err := ty.AddLink("a", "*")
	require.Error(t, err)
}

func TestAddLinkRejectsUnknownSink(t *testing.T) {
	ty := &Topology{
		modules: map[string]*moduleRecord{},
		events:  events.NewBus(),
	}
	err := ty.AddLink("a", "b")
	require.Error(t, err)
}

func TestAddLinkRejectsDuplicate(t *testing.T) {
	ty := &Topology{
		modules: map[string]*moduleRecord{"a": {}, "b": {}},
		order:   []string{"a", "b"},
		links:   []linkRecord{{source: "a", sink: "b"}},
		events:  events.NewBus(),
	}
	err := ty.AddLink("a", "b")
	require.Error(t, err)
}

func TestAddEventCallbackReceivesModuleListChanged(t *testing.T) {
	bus := events.NewBus()
	ty := &Topology{modules: map[string]*moduleRecord{}, events: bus}

	var fired []events.Kind
	ty.AddEventCallback(events.ModuleListChanged, func(ev events.Event, _ interface{}) {
		fired = append(fired, ev.Kind)
	}, nil)

	bus.Emit(events.ModuleListChanged, "x")
	require.Equal(t, []events.Kind{events.ModuleListChanged}, fired)
}
