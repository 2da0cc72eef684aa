package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mizuos/shell/internal/infrastructure/config"
	"github.com/mizuos/shell/internal/shared/format"
)

// Well-known keys
const (
	ConfigKey      = "mizu_os_config"
	ThemeKey       = "mizu-os-theme"
	EditorPrefix   = "mizu-editor-"
	AppStatePrefix = "mizu-app-state-"
)

// EditorKey returns the key for an editor document
func EditorKey(doc string) string { return EditorPrefix + doc }

// AppStateKey returns the key holding a persistent app's saved state
func AppStateKey(app string) string { return AppStatePrefix + app }

// EditorDocuments lists stored editor document names
func EditorDocuments(ctx context.Context, s Store) ([]string, error) {
	keys, err := s.Keys(ctx, EditorPrefix)
	if err != nil {
		return nil, err
	}
	docs := make([]string, len(keys))
	for i, k := range keys {
		docs[i] = strings.TrimPrefix(k, EditorPrefix)
	}
	return docs, nil
}

// LoadSystemConfig returns the stored system config when its version
// matches defaults.Version. A missing, unreadable or differently versioned
// entry is replaced by defaults.
func LoadSystemConfig(ctx context.Context, s Store, defaults config.SystemFile) (config.SystemFile, bool, error) {
	data, err := s.Get(ctx, ConfigKey)
	if err == nil {
		var stored config.SystemFile
		if derr := format.DecodeAs(data, format.JSON, &stored); derr == nil && stored.Version == defaults.Version {
			return stored, false, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return defaults, false, err
	}

	if err := SaveSystemConfig(ctx, s, defaults); err != nil {
		return defaults, false, err
	}
	return defaults, true, nil
}

// SaveSystemConfig overwrites the stored system config
func SaveSystemConfig(ctx context.Context, s Store, cfg config.SystemFile) error {
	data, err := format.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode system config: %w", err)
	}
	return s.Set(ctx, ConfigKey, data)
}

// Theme returns the stored theme or fallback
func Theme(ctx context.Context, s Store, fallback string) (string, error) {
	data, err := s.Get(ctx, ThemeKey)
	if errors.Is(err, ErrNotFound) || (err == nil && len(data) == 0) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	return string(data), nil
}

// SetTheme stores the theme name
func SetTheme(ctx context.Context, s Store, theme string) error {
	return s.Set(ctx, ThemeKey, []byte(theme))
}
