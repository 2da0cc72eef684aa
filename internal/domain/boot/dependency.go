package boot

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mizuos/shell/internal/domain/fault"
)

// DependencyManager records what each component needs and what has
// finished loading
type DependencyManager struct {
	mu     sync.RWMutex
	deps   map[string][]string
	names  []string // registration order
	loaded map[string]time.Time
}

// NewDependencyManager creates an empty manager
func NewDependencyManager() *DependencyManager {
	return &DependencyManager{
		deps:   make(map[string][]string),
		loaded: make(map[string]time.Time),
	}
}

// Register declares name and the components it depends on. Registering
// a name again replaces its dependencies.
func (d *DependencyManager) Register(name string, deps ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.deps[name]; !ok {
		d.names = append(d.names, name)
	}
	d.deps[name] = append([]string(nil), deps...)
}

// Dependencies returns the declared dependencies of name
func (d *DependencyManager) Dependencies(name string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.deps[name]...)
}

// MarkLoaded records that name is up
func (d *DependencyManager) MarkLoaded(name string) {
	d.mu.Lock()
	d.loaded[name] = time.Now()
	d.mu.Unlock()
}

// IsLoaded reports whether name has been marked loaded
func (d *DependencyManager) IsLoaded(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.loaded[name]
	return ok
}

// Loaded returns every loaded name, sorted
func (d *DependencyManager) Loaded() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.loaded))
	for n := range d.loaded {
		names = append(names, n)
	}
	d.mu.RUnlock()

	sort.Strings(names)
	return names
}

// CheckDependencies fails with a *fault.DependencyError listing every
// name that is not loaded yet
func (d *DependencyManager) CheckDependencies(names ...string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var missing []string
	for _, n := range names {
		if _, ok := d.loaded[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &fault.DependencyError{Missing: missing}
	}
	return nil
}

// Require checks that every registered dependency of name is loaded
func (d *DependencyManager) Require(name string) error {
	err := d.CheckDependencies(d.Dependencies(name)...)
	var depErr *fault.DependencyError
	if errors.As(err, &depErr) {
		depErr.For = name
	}
	return err
}

// OrderAll orders every registered component.
func (d *DependencyManager) OrderAll() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.orderLocked(d.names)
}

// Order returns names sorted so that dependencies come first. Only edges
// between the given names are considered, and no names yields an empty
// order. A cycle yields a *fault.CircularDependencyError carrying the full
// path.
func (d *DependencyManager) Order(names ...string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.orderLocked(names)
}

func (d *DependencyManager) orderLocked(names []string) ([]string, error) {
	in := make(map[string]bool, len(names))
	for _, n := range names {
		in[n] = true
	}

	const (
		visiting = 1
		visited  = 2
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))
	var stack []string

	var visit func(n string) error
	visit = func(n string) error {
		switch state[n] {
		case visited:
			return nil
		case visiting:
			for i, s := range stack {
				if s == n {
					path := append(append([]string{}, stack[i:]...), n)
					return &fault.CircularDependencyError{Path: path}
				}
			}
		}

		state[n] = visiting
		stack = append(stack, n)
		for _, dep := range d.deps[n] {
			if !in[dep] {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = visited
		order = append(order, n)
		return nil
	}

	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Reset forgets what has been loaded; declarations are kept
func (d *DependencyManager) Reset() {
	d.mu.Lock()
	d.loaded = make(map[string]time.Time)
	d.mu.Unlock()
}
