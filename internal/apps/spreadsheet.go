package apps

import (
	"context"
	"fmt"
	"sync"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/eventbus"
)

// Spreadsheet events
const (
	SpreadsheetSet     = "spreadsheet:set"
	SpreadsheetClear   = "spreadsheet:clear"
	SpreadsheetChanged = "spreadsheet:changed"
)

// CellUpdate is the payload of spreadsheet:set and spreadsheet:changed
type CellUpdate struct {
	Cell  string `json:"cell"`
	Value string `json:"value"`
}

// Spreadsheet stores raw cell input; evaluation happens in the browser
type Spreadsheet struct {
	env app.Env

	mu    sync.RWMutex
	cells map[string]string
}

// NewSpreadsheet constructs an empty sheet
func NewSpreadsheet(env app.Env) (app.App, error) {
	return &Spreadsheet{env: env, cells: make(map[string]string)}, nil
}

func (s *Spreadsheet) Init(ctx context.Context) error {
	s.env.Bus.On(SpreadsheetSet, func(e eventbus.Event) error {
		var u CellUpdate
		if err := decode(e.Data, &u); err != nil {
			return fmt.Errorf("set cell: %w", err)
		}
		if u.Cell == "" {
			return fmt.Errorf("set cell: cell is required")
		}

		s.mu.Lock()
		if u.Value == "" {
			delete(s.cells, u.Cell)
		} else {
			s.cells[u.Cell] = u.Value
		}
		s.mu.Unlock()

		s.env.Bus.Emit(SpreadsheetChanged, u)
		return nil
	})
	s.env.Bus.On(SpreadsheetClear, func(eventbus.Event) error {
		s.mu.Lock()
		s.cells = make(map[string]string)
		s.mu.Unlock()
		return nil
	})
	return nil
}

// Cell returns the raw value of a cell
func (s *Spreadsheet) Cell(ref string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cells[ref]
}

// Len returns the number of non-empty cells
func (s *Spreadsheet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}
