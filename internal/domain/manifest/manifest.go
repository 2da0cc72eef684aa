package manifest

import (
	"errors"

	"github.com/mizuos/shell/internal/shared/format"
	"github.com/mizuos/shell/internal/shared/types"
)

var (
	ErrMissingName  = errors.New("manifest missing required field: name")
	ErrMissingEntry = errors.New("manifest missing required field: entry or main")
)

// Manifest describes an application
type Manifest struct {
	Name         string   `json:"name" yaml:"name" toml:"name"`
	DisplayName  string   `json:"displayName,omitempty" yaml:"displayName" toml:"displayName"`
	Version      string   `json:"version,omitempty" yaml:"version" toml:"version"`
	Description  string   `json:"description,omitempty" yaml:"description" toml:"description"`
	Entry        string   `json:"entry,omitempty" yaml:"entry" toml:"entry"`
	Main         string   `json:"main,omitempty" yaml:"main" toml:"main"`
	Icon         string   `json:"icon,omitempty" yaml:"icon" toml:"icon"`
	Category     string   `json:"category,omitempty" yaml:"category" toml:"category"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies" toml:"dependencies"`
	Styles       []string `json:"styles,omitempty" yaml:"styles" toml:"styles"`
	Tags         []string `json:"tags,omitempty" yaml:"tags" toml:"tags"`

	// Loader selection flags
	Persistent bool `json:"persistent,omitempty" yaml:"persistent" toml:"persistent"`
	Widget     bool `json:"widget,omitempty" yaml:"widget" toml:"widget"`
	Service    bool `json:"service,omitempty" yaml:"service" toml:"service"`
	System     bool `json:"system,omitempty" yaml:"system" toml:"system"`
}

// Parse decodes a manifest, picking the format from name, and validates it
func Parse(data []byte, name string) (*Manifest, error) {
	var m Manifest
	if err := format.Decode(data, name, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks presence of name and entry point; nothing more.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if m.Entry == "" && m.Main == "" {
		return ErrMissingEntry
	}
	return nil
}

// EntryPoint returns entry, falling back to main
func (m *Manifest) EntryPoint() string {
	if m.Entry != "" {
		return m.Entry
	}
	return m.Main
}

// Title returns the display name, falling back to the name
func (m *Manifest) Title() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// Kind selects the loader flavour. When several flags are set the most
// privileged wins: system, service, widget, persistent, then web.
func (m *Manifest) Kind() types.Kind {
	switch {
	case m.System:
		return types.KindSystem
	case m.Service:
		return types.KindService
	case m.Widget:
		return types.KindWidget
	case m.Persistent:
		return types.KindPersistent
	default:
		return types.KindWeb
	}
}

// Clone returns a deep copy
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Dependencies = append([]string(nil), m.Dependencies...)
	c.Styles = append([]string(nil), m.Styles...)
	c.Tags = append([]string(nil), m.Tags...)
	return &c
}
