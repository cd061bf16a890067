package tables

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/bloops-games/carousing/internal/bytespool"
	"github.com/bloops-games/carousing/internal/carousing/model"
)

const (
	CustomType    = "shadowdark-carousing-table"
	ExpandedType  = "shadowdark-expanded-carousing-table"
	FormatVersion = 1
)

var ErrWrongType = fmt.Errorf("unexpected table file type")

type portable struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	Table   json.RawMessage `json:"table"`
}

func (r *Repository) ExportCustom(ctx context.Context, id string) ([]byte, error) {
	t, err := r.Custom(ctx, id)
	if err != nil {
		return nil, err
	}
	t.BuiltIn = false

	return encodePortable(CustomType, t)
}

func (r *Repository) ExportExpanded(ctx context.Context, id string) ([]byte, error) {
	t, err := r.Expanded(ctx, id)
	if err != nil {
		return nil, err
	}
	t.BuiltIn = false

	return encodePortable(ExpandedType, t)
}

// ImportCustom stores the table under a fresh id. Files of another type are rejected and the
// collection is left untouched.
func (r *Repository) ImportCustom(ctx context.Context, data []byte) (model.Table, error) {
	var t model.Table
	if err := decodePortable(data, CustomType, &t); err != nil {
		return t, err
	}
	t.ID = ""

	return r.SaveCustom(ctx, t)
}

func (r *Repository) ImportExpanded(ctx context.Context, data []byte) (model.ExpandedTable, error) {
	var t model.ExpandedTable
	if err := decodePortable(data, ExpandedType, &t); err != nil {
		return t, err
	}
	t.ID = ""

	return r.SaveExpanded(ctx, t)
}

func encodePortable(typ string, table interface{}) ([]byte, error) {
	raw, err := json.Marshal(table)
	if err != nil {
		return nil, fmt.Errorf("marshal table: %w", err)
	}

	buf := bytespool.Get()
	defer bytespool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(portable{Type: typ, Version: FormatVersion, Table: raw}); err != nil {
		return nil, fmt.Errorf("encode table file: %w", err)
	}

	return bytes.TrimRight(append([]byte(nil), buf.Bytes()...), "\n"), nil
}

func decodePortable(data []byte, typ string, table interface{}) error {
	var p portable
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if p.Type != typ {
		return fmt.Errorf("%w: got %q, want %q", ErrWrongType, p.Type, typ)
	}
	if p.Version < 1 || p.Version > FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalid, p.Version)
	}
	if len(p.Table) == 0 {
		return fmt.Errorf("%w: missing table", ErrInvalid)
	}

	if err := json.Unmarshal(p.Table, table); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return nil
}
