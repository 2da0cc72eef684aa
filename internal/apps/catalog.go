package apps

import (
	"sort"
	"time"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/manifest"
	"github.com/mizuos/shell/internal/shared/format"
	"github.com/mizuos/shell/internal/shared/types"
)

// StatsSource supplies bus statistics to the diagnostics service
type StatsSource interface {
	Stats() types.BusStats
}

// Options configures the catalog
type Options struct {
	Bus                 StatsSource
	DiagnosticsInterval time.Duration
}

type entry struct {
	manifest *manifest.Manifest
	factory  app.Factory
}

// Catalog maps app names to compiled-in manifests and constructors
type Catalog struct {
	entries map[string]entry
}

// NewCatalog builds the catalog of built-in apps
func NewCatalog(opts Options) *Catalog {
	c := &Catalog{entries: make(map[string]entry)}

	c.add(&manifest.Manifest{
		Name: "music", DisplayName: "Music", Version: "1.0.0", Entry: "apps/music/music.js",
		Icon: "music", Category: "media", Persistent: true, Styles: []string{"apps/music/music.css"},
	}, NewMusic)
	c.add(&manifest.Manifest{
		Name: "spreadsheet", DisplayName: "Spreadsheet", Version: "1.0.0", Entry: "apps/spreadsheet/spreadsheet.js",
		Icon: "grid", Category: "office",
	}, NewSpreadsheet)
	c.add(&manifest.Manifest{
		Name: "diagram", DisplayName: "Diagram", Version: "1.0.0", Entry: "apps/diagram/diagram.js",
		Icon: "diagram", Category: "office",
	}, NewDiagram)
	c.add(&manifest.Manifest{
		Name: "editor", DisplayName: "Code Editor", Version: "1.0.0", Entry: "apps/editor/editor.js",
		Icon: "code", Category: "development",
	}, NewEditor)
	c.add(&manifest.Manifest{
		Name: "diagnostics", DisplayName: "Performance", Version: "1.0.0", Entry: "apps/diagnostics/diagnostics.js",
		Icon: "gauge", Category: "system", Service: true,
	}, NewDiagnosticsFactory(opts.Bus, opts.DiagnosticsInterval))

	return c
}

func (c *Catalog) add(m *manifest.Manifest, f app.Factory) {
	c.entries[m.Name] = entry{manifest: m, factory: f}
}

// Names returns the catalog's app names, sorted
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Factory returns the constructor for name
func (c *Catalog) Factory(name string) (app.Factory, bool) {
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return e.factory, true
}

// Manifest returns a copy of the built-in manifest for name
func (c *Catalog) Manifest(name string) (*manifest.Manifest, bool) {
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return e.manifest.Clone(), true
}

// decode converts an event payload into v. Payloads arrive either as Go
// values from in-process emitters or as decoded JSON from the API.
func decode(data interface{}, v interface{}) error {
	raw, ok := data.([]byte)
	if !ok {
		var err error
		if raw, err = format.Marshal(data); err != nil {
			return err
		}
	}
	return format.DecodeAs(raw, format.JSON, v)
}
