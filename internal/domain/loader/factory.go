package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/manifest"
	"github.com/mizuos/shell/internal/shared/types"
)

// Loader is a specialised loader for one kind of app
type Loader interface {
	Kind() types.Kind
	// Load constructs and initialises an instance
	Load(ctx context.Context, factory app.Factory, env app.Env) (app.App, error)
	// Foreground reports whether the kind competes for the single
	// foreground slot
	Foreground() bool
	// Retain reports whether deactivation hides the instance instead of
	// destroying it
	Retain() bool
}

// kindLoader is the stock Loader; kinds differ only in policy
type kindLoader struct {
	kind       types.Kind
	render     bool
	foreground bool
	retain     bool
}

func (l *kindLoader) Kind() types.Kind { return l.kind }
func (l *kindLoader) Foreground() bool { return l.foreground }
func (l *kindLoader) Retain() bool     { return l.retain }

func (l *kindLoader) Load(ctx context.Context, factory app.Factory, env app.Env) (app.App, error) {
	instance, err := factory(env)
	if err != nil {
		return nil, fmt.Errorf("construct: %w", err)
	}
	if instance == nil {
		return nil, errors.New("construct: factory returned nil")
	}

	if init, ok := instance.(app.Initializer); ok {
		if err := init.Init(ctx); err != nil {
			destroy(instance)
			return nil, fmt.Errorf("init: %w", err)
		}
	}

	if l.render {
		if r, ok := instance.(app.Renderer); ok {
			if err := r.Render(ctx); err != nil {
				destroy(instance)
				return nil, fmt.Errorf("render: %w", err)
			}
		}
	}

	return instance, nil
}

func destroy(instance app.App) {
	if d, ok := instance.(app.Destroyer); ok {
		d.Destroy()
	}
}

// WebLoader handles ordinary windowed apps
func WebLoader() Loader {
	return &kindLoader{kind: types.KindWeb, render: true, foreground: true}
}

// PersistentLoader handles apps that survive being backgrounded
func PersistentLoader() Loader {
	return &kindLoader{kind: types.KindPersistent, render: true, foreground: true, retain: true}
}

// WidgetLoader handles desktop widgets, which never take the foreground
func WidgetLoader() Loader {
	return &kindLoader{kind: types.KindWidget, render: true}
}

// ServiceLoader handles headless background services
func ServiceLoader() Loader {
	return &kindLoader{kind: types.KindService}
}

// SystemLoader handles shell components; only UnloadApp removes them
func SystemLoader() Loader {
	return &kindLoader{kind: types.KindSystem, render: true, retain: true}
}

// LoaderFactory selects a Loader from manifest flags
type LoaderFactory struct {
	mu      sync.RWMutex
	loaders map[types.Kind]Loader
}

// NewLoaderFactory creates a factory with the stock loaders
func NewLoaderFactory() *LoaderFactory {
	f := &LoaderFactory{loaders: make(map[types.Kind]Loader)}
	for _, l := range []Loader{WebLoader(), PersistentLoader(), WidgetLoader(), ServiceLoader(), SystemLoader()} {
		f.loaders[l.Kind()] = l
	}
	return f
}

// Register replaces the loader for l.Kind()
func (f *LoaderFactory) Register(l Loader) {
	f.mu.Lock()
	f.loaders[l.Kind()] = l
	f.mu.Unlock()
}

// For returns the loader for m, falling back to the web loader
func (f *LoaderFactory) For(m *manifest.Manifest) Loader {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if l, ok := f.loaders[m.Kind()]; ok {
		return l
	}
	return f.loaders[types.KindWeb]
}
