package config

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/mizuos/shell/internal/shared/format"
)

// Fetcher retrieves a document by URL or path
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SystemFile mirrors config/system.json
type SystemFile struct {
	Version        string          `json:"version" yaml:"version" toml:"version"`
	Theme          string          `json:"theme" yaml:"theme" toml:"theme"`
	DefaultApp     string          `json:"defaultApp" yaml:"defaultApp" toml:"defaultApp"`
	PersistentApps []string        `json:"persistentApps" yaml:"persistentApps" toml:"persistentApps"`
	Styles         []string        `json:"styles" yaml:"styles" toml:"styles"`
	Components     []ComponentSpec `json:"components" yaml:"components" toml:"components"`
}

// ComponentSpec declares a system component and what it needs first
type ComponentSpec struct {
	Name      string   `json:"name" yaml:"name" toml:"name"`
	DependsOn []string `json:"dependsOn" yaml:"dependsOn" toml:"dependsOn"`
}

// ModulesFile mirrors config/modules.json
type ModulesFile struct {
	Apps     []ModuleEntry `json:"apps" yaml:"apps" toml:"apps"`
	Discover []string      `json:"discover" yaml:"discover" toml:"discover"`
}

// ModuleEntry names an app and where its manifest lives
type ModuleEntry struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	Manifest string `json:"manifest" yaml:"manifest" toml:"manifest"`
	Autoload bool   `json:"autoload" yaml:"autoload" toml:"autoload"`
}

// ShellFiles holds both decoded shell config documents
type ShellFiles struct {
	System  SystemFile
	Modules ModulesFile
}

// DefaultSystemFile is used when system.json is absent
func DefaultSystemFile() SystemFile {
	return SystemFile{
		Version:        "1.0.0",
		Theme:          "dark",
		PersistentApps: []string{"music"},
		Components: []ComponentSpec{
			{Name: "statusbar"},
			{Name: "launcher", DependsOn: []string{"statusbar"}},
			{Name: "logo"},
		},
	}
}

// LoadShellFiles fetches and decodes system and modules files relative
// to the shell config directory. A missing system file falls back to
// defaults; a missing modules file yields an empty module list.
func LoadShellFiles(ctx context.Context, f Fetcher, cfg ShellConfig) (*ShellFiles, error) {
	files := &ShellFiles{System: DefaultSystemFile()}

	systemURL := Resolve(cfg.ConfigDir, cfg.SystemFile)
	if data, err := f.Fetch(ctx, systemURL); err == nil {
		var sys SystemFile
		if err := format.Decode(data, systemURL, &sys); err != nil {
			return nil, fmt.Errorf("system config %s: %w", systemURL, err)
		}
		files.System = sys
	}

	modulesURL := Resolve(cfg.ConfigDir, cfg.ModulesFile)
	if data, err := f.Fetch(ctx, modulesURL); err == nil {
		if err := format.Decode(data, modulesURL, &files.Modules); err != nil {
			return nil, fmt.Errorf("modules config %s: %w", modulesURL, err)
		}
	}

	// Manifest paths stay relative to the working directory, like the
	// page root they were written against.
	for i, entry := range files.Modules.Apps {
		if entry.Name == "" {
			return nil, fmt.Errorf("modules config: entry %d missing name", i)
		}
	}

	return files, nil
}

// IsPersistent reports whether system.json marks an app persistent
func (s SystemFile) IsPersistent(name string) bool {
	for _, p := range s.PersistentApps {
		if p == name {
			return true
		}
	}
	return false
}

// Resolve joins ref onto base unless ref is already absolute or a URL
func Resolve(base, ref string) string {
	if strings.Contains(ref, "://") || path.IsAbs(ref) || base == "" {
		return ref
	}
	if strings.Contains(base, "://") {
		return strings.TrimRight(base, "/") + "/" + strings.TrimPrefix(ref, "./")
	}
	return path.Join(base, ref)
}
