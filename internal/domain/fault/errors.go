package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for logging, metrics and the UI overlay
type Kind string

const (
	KindBoot       Kind = "BootError"
	KindLoad       Kind = "LoadError"
	KindManifest   Kind = "ManifestError"
	KindDependency Kind = "DependencyError"
	KindHandler    Kind = "HandlerError"
	KindUncaught   Kind = "UncaughtError"
	KindUnknown    Kind = "Error"
)

// BootError wraps a failure that aborted the boot sequence
type BootError struct {
	Phase string
	Step  string
	Err   error
}

func (e *BootError) Error() string {
	return fmt.Sprintf("boot failed at %s/%s: %v", e.Phase, e.Step, e.Err)
}

func (e *BootError) Unwrap() error { return e.Err }

// LoadError wraps a failure to construct, initialise or mount an app
type LoadError struct {
	App string
	Op  string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.App, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ManifestError reports an unreadable or invalid manifest
type ManifestError struct {
	URL string
	Err error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.URL, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// DependencyError reports dependencies that are not loaded yet
type DependencyError struct {
	For     string
	Missing []string
}

func (e *DependencyError) Error() string {
	if e.For == "" {
		return fmt.Sprintf("missing dependencies: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: missing dependencies: %s", e.For, strings.Join(e.Missing, ", "))
}

// CircularDependencyError reports a dependency cycle. Path starts and
// ends with the same name, e.g. [A B A].
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return "circular dependency: " + strings.Join(e.Path, " -> ")
}

// KindOf classifies err by the first typed error in its chain
func KindOf(err error) Kind {
	var (
		bootErr     *BootError
		loadErr     *LoadError
		manifestErr *ManifestError
		depErr      *DependencyError
		cycleErr    *CircularDependencyError
		panicErr    *PanicError
	)

	switch {
	case errors.As(err, &bootErr):
		return KindBoot
	case errors.As(err, &panicErr):
		return KindUncaught
	case errors.As(err, &manifestErr):
		return KindManifest
	case errors.As(err, &depErr), errors.As(err, &cycleErr):
		return KindDependency
	case errors.As(err, &loadErr):
		return KindLoad
	default:
		return KindUnknown
	}
}

// PanicError carries a recovered panic value
type PanicError struct {
	Where string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Where, e.Value)
}
