// Package tables keeps the GM-authored carousing tables in one shared document next to the
// read-only built-in tables.
package tables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bloops-games/carousing/internal/carousing/model"
	docDb "github.com/bloops-games/carousing/internal/database/document/database"
	docModel "github.com/bloops-games/carousing/internal/database/document/model"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/google/uuid"
)

const DocumentKey = "carousing.tables"

var (
	ErrNotFound = fmt.Errorf("table not found")
	ErrBuiltIn  = fmt.Errorf("built-in tables are read-only")
	ErrInvalid  = fmt.Errorf("invalid table")
)

type Store interface {
	Get(ctx context.Context, key string) (docModel.Document, error)
	Update(ctx context.Context, key string, fn docDb.UpdateFn) (docModel.Document, error)
}

func New(store Store) *Repository {
	return &Repository{store: store, newID: uuid.NewString}
}

type Repository struct {
	store Store
	newID func() string
}

// List returns the built-in tables first, then the stored ones in authoring order.
func (r *Repository) List(ctx context.Context) (model.Collection, error) {
	stored, err := r.load(ctx)
	if err != nil {
		return model.Collection{}, err
	}

	return model.Collection{
		Custom:   append([]model.Table{model.DefaultTable()}, stored.Custom...),
		Expanded: append([]model.ExpandedTable{model.DefaultExpandedTable()}, stored.Expanded...),
	}, nil
}

func (r *Repository) Custom(ctx context.Context, id string) (model.Table, error) {
	if id == model.DefaultTableID {
		return model.DefaultTable(), nil
	}

	stored, err := r.load(ctx)
	if err != nil {
		return model.Table{}, err
	}

	for _, t := range stored.Custom {
		if t.ID == id {
			return t, nil
		}
	}

	return model.Table{}, fmt.Errorf("custom table %s: %w", id, ErrNotFound)
}

func (r *Repository) Expanded(ctx context.Context, id string) (model.ExpandedTable, error) {
	if id == model.DefaultExpandedTableID {
		return model.DefaultExpandedTable(), nil
	}

	stored, err := r.load(ctx)
	if err != nil {
		return model.ExpandedTable{}, err
	}

	for _, t := range stored.Expanded {
		if t.ID == id {
			return t, nil
		}
	}

	return model.ExpandedTable{}, fmt.Errorf("expanded table %s: %w", id, ErrNotFound)
}

// SaveCustom creates the table when it has no id and replaces the stored one otherwise.
func (r *Repository) SaveCustom(ctx context.Context, t model.Table) (model.Table, error) {
	if t.ID == model.DefaultTableID {
		return t, ErrBuiltIn
	}
	t.BuiltIn = false
	if t.Die == "" {
		t.Die = model.DefaultDie
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	create := t.ID == ""
	if create {
		t.ID = r.newID()
	}

	err := r.modify(ctx, func(c *model.Collection) error {
		for i := range c.Custom {
			if c.Custom[i].ID == t.ID {
				c.Custom[i] = t
				return nil
			}
		}
		if !create {
			return fmt.Errorf("custom table %s: %w", t.ID, ErrNotFound)
		}
		c.Custom = append(c.Custom, t)
		return nil
	})

	return t, err
}

func (r *Repository) SaveExpanded(ctx context.Context, t model.ExpandedTable) (model.ExpandedTable, error) {
	if t.ID == model.DefaultExpandedTableID {
		return t, ErrBuiltIn
	}
	t.BuiltIn = false
	if t.Die == "" {
		t.Die = model.DefaultDie
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	create := t.ID == ""
	if create {
		t.ID = r.newID()
	}

	err := r.modify(ctx, func(c *model.Collection) error {
		for i := range c.Expanded {
			if c.Expanded[i].ID == t.ID {
				c.Expanded[i] = t
				return nil
			}
		}
		if !create {
			return fmt.Errorf("expanded table %s: %w", t.ID, ErrNotFound)
		}
		c.Expanded = append(c.Expanded, t)
		return nil
	})

	return t, err
}

func (r *Repository) DeleteCustom(ctx context.Context, id string) error {
	if id == model.DefaultTableID {
		return ErrBuiltIn
	}

	return r.modify(ctx, func(c *model.Collection) error {
		for i := range c.Custom {
			if c.Custom[i].ID == id {
				c.Custom = append(c.Custom[:i:i], c.Custom[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("custom table %s: %w", id, ErrNotFound)
	})
}

func (r *Repository) DeleteExpanded(ctx context.Context, id string) error {
	if id == model.DefaultExpandedTableID {
		return ErrBuiltIn
	}

	return r.modify(ctx, func(c *model.Collection) error {
		for i := range c.Expanded {
			if c.Expanded[i].ID == id {
				c.Expanded = append(c.Expanded[:i:i], c.Expanded[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("expanded table %s: %w", id, ErrNotFound)
	})
}

func (r *Repository) load(ctx context.Context) (model.Collection, error) {
	doc, err := r.store.Get(ctx, DocumentKey)
	if err != nil {
		return model.Collection{}, fmt.Errorf("get tables document: %w", err)
	}

	return decode(ctx, doc.Data), nil
}

func (r *Repository) modify(ctx context.Context, fn func(c *model.Collection) error) error {
	if _, err := r.store.Update(ctx, DocumentKey, func(current []byte) ([]byte, error) {
		c := decode(ctx, current)
		if err := fn(&c); err != nil {
			return nil, err
		}
		return json.Marshal(c)
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("update tables document: %w", err)
	}

	return nil
}

// decode treats a missing or malformed document as an empty collection.
func decode(ctx context.Context, data []byte) model.Collection {
	var c model.Collection
	if len(data) == 0 {
		return c
	}

	if err := json.Unmarshal(data, &c); err != nil {
		logging.FromContext(ctx).Named("tables.decode").Warnf("discarding malformed tables document: %v", err)
		return model.Collection{}
	}

	return c
}
