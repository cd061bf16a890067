package model

import (
	"encoding/json"
	"time"
)

// Document is one named JSON blob. Version starts at 1 on the first write and grows by one
// on every committed change; a zero Version means the document was never written.
type Document struct {
	Key       string          `json:"key"`
	Version   uint64          `json:"version"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (d Document) Exists() bool {
	return d.Version > 0
}
