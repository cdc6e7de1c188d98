package topology

import (
	"github.com/lattice-run/gatewayrt/internal/config"
	"github.com/lattice-run/gatewayrt/internal/gerr"
	"github.com/lattice-run/gatewayrt/internal/module"
	"github.com/lattice-run/gatewayrt/internal/oop"
)

// instantiate builds a module.Instance for entry according to loader's
// kind, running the Create hook (and ParseConfiguration, if present)
// before the instance is ever handed to the broker.
func (t *Topology) instantiate(entry config.ModuleEntry, loader config.LoaderEntry) (*module.Instance, module.Library, error) {
	switch loader.Type {
	case config.LoaderNativeDynamic:
		hooks, lib, err := module.LoadNativeDynamic(entry.Entrypoint)
		if err != nil {
			return nil, nil, err
		}
		state, err := t.create(hooks, entry.Config)
		if err != nil {
			_ = lib.Unload()
			return nil, nil, err
		}
		return &module.Instance{Name: entry.Name, Hooks: hooks, State: state, Library: loader.Name}, lib, nil

	case config.LoaderOutOfProcess:
		oopEntry, err := config.ParseOOPEntry(entry.Config)
		if err != nil {
			return nil, nil, err
		}
		hooks := oop.Hooks(entry.Name, oopEntry)
		state, err := t.create(hooks, entry.Config)
		if err != nil {
			return nil, nil, err
		}
		return &module.Instance{Name: entry.Name, Hooks: hooks, State: state, Library: loader.Name}, nil, nil

	default:
		return nil, nil, gerr.New(gerr.InvalidArgument, "topology: unknown loader type %q", loader.Type)
	}
}

func (t *Topology) create(hooks module.Hooks, raw module.Config) (module.State, error) {
	cfg := raw
	if hooks.ParseConfiguration != nil {
		parsed, err := hooks.ParseConfiguration(raw)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}
	state, err := module.CallCreate(hooks, cfg)
	if hooks.FreeConfiguration != nil {
		hooks.FreeConfiguration(cfg)
	}
	return state, err
}
