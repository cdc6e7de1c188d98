//go:build unix

package module

import (
	"plugin"

	"github.com/lattice-run/gatewayrt/internal/gerr"
)

// LoadNativeDynamic loads a module type from a compiled Go plugin (.so),
// the native-dynamic loader kind of spec.md §6. The plugin must export a
// package-level symbol named "ModuleHooks" of type *Hooks.
//
// Go's plugin package is the only way the standard toolchain loads shared
// objects at runtime; no dependency in the retrieved pack wraps dynamic
// library loading, so this stays on the standard library by necessity
// (see DESIGN.md).
func LoadNativeDynamic(path string) (Hooks, Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return Hooks{}, nil, gerr.Wrap(gerr.InvalidArgument, err, "module: open plugin %s", path)
	}
	sym, err := p.Lookup("ModuleHooks")
	if err != nil {
		return Hooks{}, nil, gerr.Wrap(gerr.InvalidArgument, err, "module: plugin %s missing ModuleHooks symbol", path)
	}
	hooks, ok := sym.(*Hooks)
	if !ok {
		return Hooks{}, nil, gerr.New(gerr.InvalidArgument, "module: plugin %s ModuleHooks has wrong type", path)
	}
	if err := hooks.Validate(); err != nil {
		return Hooks{}, nil, err
	}
	// plugin.Plugin offers no Close/unload; the process keeps the shared
	// object mapped for its lifetime, same as the C dlopen/dlclose
	// asymmetry the original source works around by never actually
	// calling dlclose on a still-referenced module.
	return *hooks, noopLibrary{path: path}, nil
}

// Library is the handle a loader returns alongside a module's Hooks; it
// represents "the library handle that produced it" (spec.md §3) and is
// released when the module is removed.
type Library interface {
	Unload() error
	Name() string
}

type noopLibrary struct{ path string }

func (n noopLibrary) Unload() error { return nil }
func (n noopLibrary) Name() string  { return n.path }
