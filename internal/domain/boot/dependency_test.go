package boot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuos/shell/internal/domain/fault"
)

func TestDependencyManagerLoaded(t *testing.T) {
	d := NewDependencyManager()
	d.Register("launcher", "statusbar")

	assert.False(t, d.IsLoaded("statusbar"))

	err := d.Require("launcher")
	var depErr *fault.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "launcher", depErr.For)
	assert.Equal(t, []string{"statusbar"}, depErr.Missing)

	d.MarkLoaded("statusbar")
	assert.True(t, d.IsLoaded("statusbar"))
	assert.NoError(t, d.Require("launcher"))
	assert.NoError(t, d.Require("unknown"), "nothing declared means nothing required")

	assert.Error(t, d.CheckDependencies("statusbar", "logo"))
	d.MarkLoaded("logo")
	assert.NoError(t, d.CheckDependencies("statusbar", "logo"))
	assert.Equal(t, []string{"logo", "statusbar"}, d.Loaded())

	d.Reset()
	assert.Empty(t, d.Loaded())
	assert.Equal(t, []string{"statusbar"}, d.Dependencies("launcher"))
}

func TestOrder(t *testing.T) {
	d := NewDependencyManager()
	d.Register("launcher", "statusbar", "theme")
	d.Register("statusbar", "theme")
	d.Register("theme")
	d.Register("logo")

	order, err := d.OrderAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"theme", "statusbar", "launcher", "logo"}, order)

	order, err = d.Order()
	require.NoError(t, err)
	assert.Empty(t, order)

	// Edges to names outside the subset are ignored
	order, err = d.Order("launcher", "logo")
	require.NoError(t, err)
	assert.Equal(t, []string{"launcher", "logo"}, order)
}

func TestOrderDetectsCycles(t *testing.T) {
	tests := []struct {
		name  string
		edges map[string][]string
		roots []string
		want  []string
	}{
		{
			name:  "two node",
			edges: map[string][]string{"A": {"B"}, "B": {"A"}},
			roots: []string{"A", "B"},
			want:  []string{"A", "B", "A"},
		},
		{
			name:  "three node",
			edges: map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}},
			roots: []string{"A", "B", "C"},
			want:  []string{"A", "B", "C", "A"},
		},
		{
			name:  "self",
			edges: map[string][]string{"A": {"A"}},
			roots: []string{"A"},
			want:  []string{"A", "A"},
		},
		{
			name:  "cycle below an acyclic root",
			edges: map[string][]string{"root": {"B"}, "B": {"C"}, "C": {"B"}},
			roots: []string{"root", "B", "C"},
			want:  []string{"B", "C", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDependencyManager()
			for _, n := range tt.roots {
				d.Register(n, tt.edges[n]...)
			}

			_, err := d.Order(tt.roots...)
			var cycle *fault.CircularDependencyError
			require.ErrorAs(t, err, &cycle)
			assert.Equal(t, tt.want, cycle.Path)
		})
	}
}
