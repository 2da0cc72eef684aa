package loader

import (
	"sort"

	"github.com/mizuos/shell/internal/shared/types"
)

// Info describes the loaded instance of name
func (l *AppLoader) Info(name string) (types.AppInfo, bool) {
	inst, ok := l.get(name)
	if !ok {
		return types.AppInfo{}, false
	}
	return l.infoOf(inst), true
}

func (l *AppLoader) infoOf(inst *instance) types.AppInfo {
	l.mu.RLock()
	visible := inst.visible
	l.mu.RUnlock()

	return types.AppInfo{
		Name:       inst.name,
		InstanceID: inst.id,
		Kind:       inst.loader.Kind(),
		Status:     l.registry.Status(inst.name),
		Visible:    visible,
		Persistent: inst.manifest.Persistent,
		Widget:     inst.manifest.Widget,
		Service:    inst.manifest.Service,
		System:     inst.manifest.System,
		LoadedAt:   inst.loadedAt,
	}
}

// Loaded describes every loaded instance, sorted by name
func (l *AppLoader) Loaded() []types.AppInfo {
	l.mu.RLock()
	all := make([]*instance, 0, len(l.instances))
	for _, inst := range l.instances {
		all = append(all, inst)
	}
	l.mu.RUnlock()

	out := make([]types.AppInfo, len(all))
	for i, inst := range all {
		out[i] = l.infoOf(inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ActiveApps returns the names of mounted apps, visible or hidden
func (l *AppLoader) ActiveApps() []string {
	l.mu.RLock()
	var names []string
	for n, inst := range l.instances {
		if inst.mounted {
			names = append(names, n)
		}
	}
	l.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Foreground returns the app holding the foreground slot, if any
func (l *AppLoader) Foreground() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.foreground, l.foreground != ""
}

// Stats returns loader statistics
func (l *AppLoader) Stats() types.LoaderStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := types.LoaderStats{LoadedApps: len(l.instances)}
	for _, inst := range l.instances {
		if inst.mounted {
			stats.ActiveApps++
			if !inst.visible {
				stats.HiddenApps++
			}
		}
		if inst.loader.Retain() && inst.manifest.Persistent {
			stats.PersistentApps++
		}
	}
	if l.foreground != "" {
		fg := l.foreground
		stats.Foreground = &fg
	}
	return stats
}
