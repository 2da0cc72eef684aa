package apps

import (
	"context"
	"fmt"
	"sync"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/eventbus"
)

// Diagram events
const (
	DiagramAddNode = "diagram:add-node"
	DiagramConnect = "diagram:connect"
	DiagramChanged = "diagram:changed"
)

// Node is a diagram node
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Edge connects two nodes
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Diagram holds the node graph edited in the browser
type Diagram struct {
	env app.Env

	mu    sync.RWMutex
	nodes map[string]Node
	edges []Edge
}

// NewDiagram constructs an empty diagram
func NewDiagram(env app.Env) (app.App, error) {
	return &Diagram{env: env, nodes: make(map[string]Node)}, nil
}

func (d *Diagram) Init(ctx context.Context) error {
	d.env.Bus.On(DiagramAddNode, func(e eventbus.Event) error {
		var n Node
		if err := decode(e.Data, &n); err != nil {
			return fmt.Errorf("add node: %w", err)
		}
		if n.ID == "" {
			return fmt.Errorf("add node: id is required")
		}
		d.mu.Lock()
		d.nodes[n.ID] = n
		d.mu.Unlock()
		d.env.Bus.Emit(DiagramChanged, n)
		return nil
	})
	d.env.Bus.On(DiagramConnect, func(e eventbus.Event) error {
		var edge Edge
		if err := decode(e.Data, &edge); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		d.mu.Lock()
		_, fromOK := d.nodes[edge.From]
		_, toOK := d.nodes[edge.To]
		if !fromOK || !toOK {
			d.mu.Unlock()
			return fmt.Errorf("connect %s -> %s: unknown node", edge.From, edge.To)
		}
		d.edges = append(d.edges, edge)
		d.mu.Unlock()
		d.env.Bus.Emit(DiagramChanged, edge)
		return nil
	})
	return nil
}

// Size returns node and edge counts
func (d *Diagram) Size() (nodes, edges int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes), len(d.edges)
}
