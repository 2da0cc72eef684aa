package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/fault"
	"github.com/mizuos/shell/internal/infrastructure/store"
)

// SavePersistentAppState captures the state of a loaded StatefulApp
// into the state store
func (l *AppLoader) SavePersistentAppState(ctx context.Context, name string) error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	inst, ok := l.get(name)
	if !ok {
		return fmt.Errorf("save %s: %w", name, ErrNotLoaded)
	}
	return l.saveState(ctx, inst)
}

// RestorePersistentApp loads name if needed and restores its saved state.
// It reports whether any state was found.
func (l *AppLoader) RestorePersistentApp(ctx context.Context, name string) (bool, error) {
	if _, err := l.LoadApp(ctx, name); err != nil {
		return false, err
	}

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	inst, ok := l.get(name)
	if !ok {
		return false, fmt.Errorf("restore %s: %w", name, ErrNotLoaded)
	}
	return l.restoreState(ctx, inst)
}

func (l *AppLoader) saveState(ctx context.Context, inst *instance) error {
	stateful, ok := inst.app.(app.StatefulApp)
	if !ok {
		return fmt.Errorf("%s: %w", inst.name, ErrNotStateful)
	}

	var (
		data         []byte
		serializeErr error
	)
	if err := hook(inst, "serialize", func() {
		data, serializeErr = stateful.SerializeState()
	}); err != nil {
		serializeErr = err
	}
	if serializeErr != nil {
		return fmt.Errorf("serialize %s: %w", inst.name, serializeErr)
	}

	if err := l.store.Set(ctx, store.AppStateKey(inst.name), data); err != nil {
		return fmt.Errorf("save %s: %w", inst.name, err)
	}
	return nil
}

func (l *AppLoader) restoreState(ctx context.Context, inst *instance) (bool, error) {
	stateful, ok := inst.app.(app.StatefulApp)
	if !ok {
		return false, fmt.Errorf("%s: %w", inst.name, ErrNotStateful)
	}

	data, err := l.store.Get(ctx, store.AppStateKey(inst.name))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("restore %s: %w", inst.name, err)
	}

	var restoreErr error
	if err := hook(inst, "restore", func() {
		restoreErr = stateful.RestoreState(data)
	}); err != nil {
		restoreErr = err
	}
	if restoreErr != nil {
		return false, &fault.LoadError{App: inst.name, Op: "restore", Err: restoreErr}
	}
	return true, nil
}
