// Package app defines the contract between the shell and its applications.
//
// An application is any value returned by a Factory. The shell discovers
// what it can do through optional capability interfaces, the same way
// io.WriterTo is discovered on an io.Reader.
package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/domain/fault"
	"github.com/mizuos/shell/internal/domain/manifest"
	"github.com/mizuos/shell/internal/infrastructure/store"
)

// App is a live application instance
type App interface{}

// Initializer is called once after construction
type Initializer interface {
	Init(ctx context.Context) error
}

// Renderer builds the app's UI after Init. Headless kinds skip it.
type Renderer interface {
	Render(ctx context.Context) error
}

// Shower is called when the app becomes visible
type Shower interface {
	Show()
}

// Hider is called when the app leaves the screen but stays mounted
type Hider interface {
	Hide()
}

// Destroyer releases the app's resources before it is dropped
type Destroyer interface {
	Destroy()
}

// StatefulApp can capture and restore its state across unloads
type StatefulApp interface {
	SerializeState() ([]byte, error)
	RestoreState(data []byte) error
}

// Env is everything a Factory receives to build an instance.
// Lifecycle hooks must not call back into the loader.
type Env struct {
	Name       string
	InstanceID string
	Manifest   *manifest.Manifest
	Bus        *eventbus.Scope
	Store      store.Store
	Logger     *zap.Logger

	// Errors receives failures from the app's background goroutines.
	// It may be nil.
	Errors *fault.Handler
}

// Factory constructs an app instance
type Factory func(env Env) (App, error)
