package apps

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/domain/app"
	"github.com/mizuos/shell/internal/domain/eventbus"
	"github.com/mizuos/shell/internal/infrastructure/store"
)

// Editor events
const (
	EditorSave   = "editor:save"
	EditorOpen   = "editor:open"
	EditorDelete = "editor:delete"
	EditorOpened = "editor:opened"
	EditorSaved  = "editor:saved"
)

// Document is an editor file
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Editor persists documents under mizu-editor-* keys
type Editor struct {
	env app.Env
}

// NewEditor constructs the code editor
func NewEditor(env app.Env) (app.App, error) {
	if env.Store == nil {
		return nil, errors.New("editor needs a state store")
	}
	return &Editor{env: env}, nil
}

func (e *Editor) Init(ctx context.Context) error {
	e.env.Bus.On(EditorSave, func(evt eventbus.Event) error {
		var doc Document
		if err := decode(evt.Data, &doc); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		if err := e.Save(context.Background(), doc); err != nil {
			return err
		}
		e.env.Bus.Emit(EditorSaved, Document{Name: doc.Name})
		return nil
	})
	e.env.Bus.On(EditorOpen, func(evt eventbus.Event) error {
		var doc Document
		if err := decode(evt.Data, &doc); err != nil {
			return fmt.Errorf("open: %w", err)
		}
		opened, err := e.Open(context.Background(), doc.Name)
		if err != nil {
			return err
		}
		e.env.Bus.Emit(EditorOpened, opened)
		return nil
	})
	e.env.Bus.On(EditorDelete, func(evt eventbus.Event) error {
		var doc Document
		if err := decode(evt.Data, &doc); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		return e.env.Store.Delete(context.Background(), store.EditorKey(doc.Name))
	})
	return nil
}

// Save writes doc to the store
func (e *Editor) Save(ctx context.Context, doc Document) error {
	if doc.Name == "" {
		return errors.New("save: document name is required")
	}
	if err := e.env.Store.Set(ctx, store.EditorKey(doc.Name), []byte(doc.Content)); err != nil {
		return fmt.Errorf("save %s: %w", doc.Name, err)
	}
	e.env.Logger.Debug("Document saved", zap.String("doc", doc.Name), zap.Int("bytes", len(doc.Content)))
	return nil
}

// Open reads a document from the store
func (e *Editor) Open(ctx context.Context, name string) (Document, error) {
	data, err := e.env.Store.Get(ctx, store.EditorKey(name))
	if err != nil {
		return Document{}, fmt.Errorf("open %s: %w", name, err)
	}
	return Document{Name: name, Content: string(data)}, nil
}

// Documents lists saved document names
func (e *Editor) Documents(ctx context.Context) ([]string, error) {
	return store.EditorDocuments(ctx, e.env.Store)
}
