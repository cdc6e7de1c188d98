package topology

import (
	"time"

	"github.com/lattice-run/gatewayrt/internal/events"
	"github.com/lattice-run/gatewayrt/internal/gerr"
	"github.com/lattice-run/gatewayrt/internal/message"
	"github.com/lattice-run/gatewayrt/internal/module"
)

// PublishAndWait is the supplemented convenience operation backing
// gateway.Topology.PublishAndWait.
func (t *Topology) PublishAndWait(source string, msg *message.Message, timeout time.Duration) error {
	return t.broker.PublishAndWait(source, msg, timeout)
}

// RemoveModule detaches handle's module (spec.md §6 topology_remove_module).
func (t *Topology) RemoveModule(handle ModuleHandle) error {
	if handle == nil {
		return gerr.New(gerr.InvalidArgument, "topology: nil module handle")
	}
	return t.removeModuleByName(handle.Name)
}

// RemoveModuleByName detaches the named module (spec.md §6
// topology_remove_module_by_name).
func (t *Topology) RemoveModuleByName(name string) error {
	return t.removeModuleByName(name)
}

func (t *Topology) removeModuleByName(name string) error {
	rec, exists := t.modules[name]
	if !exists {
		return gerr.New(gerr.NotFound, "topology: module %q not attached", name)
	}

	err := t.broker.RemoveModule(name)
	if rec.library != nil {
		if uerr := rec.library.Unload(); uerr != nil {
			t.log.Warn().Err(uerr).Str("module", name).Msg("failed to unload module library")
		}
	}

	delete(t.modules, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	kept := t.links[:0]
	for _, l := range t.links {
		if l.sink == name || l.source == name {
			continue
		}
		kept = append(kept, l)
	}
	t.links = kept

	t.events.Emit(events.ModuleListChanged, name)
	return err
}

// AddLink installs a link (spec.md §6 topology_add_link). Source may be
// "*" to subscribe the sink to every other module currently and
// subsequently attached; sink must be a concrete module name.
func (t *Topology) AddLink(source, sink string) error {
	if sink == "*" {
		return gerr.New(gerr.InvalidArgument, "topology: \"*\" is not a valid link sink")
	}
	if _, ok := t.modules[sink]; !ok {
		return gerr.New(gerr.NotFound, "topology: sink module %q not attached", sink)
	}
	for _, l := range t.links {
		if l.source == source && l.sink == sink {
			return gerr.New(gerr.Duplicate, "topology: link %s -> %s already exists", source, sink)
		}
	}

	if source == "*" {
		for _, name := range t.order {
			if name == sink {
				continue
			}
			if err := t.broker.AddLink(name, sink); err != nil && gerr.KindOf(err) != gerr.Duplicate {
				t.rollbackWildcardLink(sink, name)
				return err
			}
		}
	} else {
		if _, ok := t.modules[source]; !ok {
			return gerr.New(gerr.NotFound, "topology: source module %q not attached", source)
		}
		if err := t.broker.AddLink(source, sink); err != nil {
			return err
		}
	}

	t.links = append(t.links, linkRecord{source: source, sink: sink})
	t.events.Emit(events.ModuleListChanged, source+" -> "+sink)
	return nil
}

// rollbackWildcardLink undoes the partial broker subscriptions installed
// before a wildcard AddLink failed partway through the existing module
// list, up to and excluding failedAt.
func (t *Topology) rollbackWildcardLink(sink, failedAt string) {
	for _, name := range t.order {
		if name == failedAt {
			return
		}
		if name == sink {
			continue
		}
		_ = t.broker.RemoveLink(name, sink)
	}
}

// RemoveLink reverses AddLink (spec.md §6 topology_remove_link).
func (t *Topology) RemoveLink(source, sink string) error {
	idx := -1
	for i, l := range t.links {
		if l.source == source && l.sink == sink {
			idx = i
			break
		}
	}
	if idx == -1 {
		return gerr.New(gerr.NotFound, "topology: link %s -> %s not present", source, sink)
	}

	if source == "*" {
		for _, name := range t.order {
			if name == sink {
				continue
			}
			_ = t.broker.RemoveLink(name, sink)
		}
	} else if err := t.broker.RemoveLink(source, sink); err != nil {
		return err
	}

	t.links = append(t.links[:idx], t.links[idx+1:]...)
	t.events.Emit(events.ModuleListChanged, source+" -> "+sink)
	return nil
}

// Start runs the Start hook of every attached module that hasn't already
// been started (spec.md §6 topology_start).
func (t *Topology) Start() error {
	for _, name := range t.order {
		if err := t.startModule(name); err != nil {
			return err
		}
	}
	t.events.Emit(events.Started, "")
	return nil
}

// StartModule runs a single module's Start hook (spec.md §6
// topology_start_module).
func (t *Topology) StartModule(name string) error {
	if err := t.startModule(name); err != nil {
		return err
	}
	t.events.Emit(events.Started, name)
	return nil
}

func (t *Topology) startModule(name string) error {
	rec, ok := t.modules[name]
	if !ok {
		return gerr.New(gerr.NotFound, "topology: module %q not attached", name)
	}
	if rec.state == StateStarted {
		return nil
	}
	if err := module.CallStart(rec.instance.Hooks, rec.instance.State); err != nil {
		return err
	}
	rec.state = StateStarted
	return nil
}

// ListModules reports every attached module and its feeding sources
// (spec.md §6 topology_list_modules).
func (t *Topology) ListModules() []ModuleInfo {
	infos := make([]ModuleInfo, 0, len(t.order))
	for _, name := range t.order {
		rec := t.modules[name]
		info := ModuleInfo{Name: name, State: rec.state, Loader: rec.loaderName}

		wildcard := false
		var sources []string
		for _, l := range t.links {
			if l.sink != name {
				continue
			}
			if l.source == "*" {
				wildcard = true
				break
			}
			sources = append(sources, l.source)
		}
		if !wildcard {
			info.Sources = sources
		}
		infos = append(infos, info)
	}
	return infos
}

// AddEventCallback registers callback for kind (spec.md §6
// topology_add_event_callback).
func (t *Topology) AddEventCallback(kind events.Kind, callback events.Callback, userData interface{}) {
	t.events.AddCallback(kind, callback, userData)
}

// Destroy tears down every module and the broker itself, best-effort:
// individual module teardown failures are logged and do not stop the
// rest of the teardown (spec.md §6 topology_destroy).
func (t *Topology) Destroy() error {
	var firstErr error
	names := append([]string(nil), t.order...)
	for i := len(names) - 1; i >= 0; i-- {
		if err := t.removeModuleByName(names[i]); err != nil {
			t.log.Warn().Err(err).Str("module", names[i]).Msg("error during topology teardown")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	t.broker.DecRef()
	t.events.Emit(events.Destroyed, "")
	t.events.Close()
	return firstErr
}
