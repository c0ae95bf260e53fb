package model

import (
	"maps"

	"github.com/maruel/dynattr/internal/jsonldb"
	"github.com/maruel/ksid"
)

// Record is one in-memory instance of a [Model].
//
// Records are not safe for concurrent use.
type Record struct {
	model     *Model
	attrs     map[string]any
	persisted bool
	binding   Binding
}

// Model returns the record's type.
func (r *Record) Model() *Model {
	return r.model
}

// ID returns the primary key, zero until the record is first saved.
func (r *Record) ID() ksid.ID {
	id, _ := r.attrs[r.model.PrimaryKey()].(ksid.ID)
	return id
}

// IsNew reports whether the record was never saved.
func (r *Record) IsNew() bool {
	return !r.persisted
}

// Binding returns the extension binding, or nil.
func (r *Record) Binding() Binding {
	return r.binding
}

// Get reads a named attribute, through the extension when one is registered.
func (r *Record) Get(name string) (any, error) {
	if r.binding != nil {
		return r.binding.Get(name)
	}
	return r.ReadAttribute(name)
}

// Set writes a named attribute, through the extension when one is registered.
// It returns the assigned value.
func (r *Record) Set(name string, value any) (any, error) {
	if r.binding != nil {
		return r.binding.Set(name, value)
	}
	if err := r.WriteAttribute(name, value); err != nil {
		return nil, err
	}
	return value, nil
}

// ReadAttribute is the static read path: it only knows schema columns.
func (r *Record) ReadAttribute(name string) (any, error) {
	if !r.model.HasColumn(name) {
		return nil, &UnknownAttributeError{Model: r.model.name, Attribute: name}
	}
	return r.attrs[name], nil
}

// WriteAttribute is the static write path. Values are coerced to the column's
// type affinity.
func (r *Record) WriteAttribute(name string, value any) error {
	col, ok := r.model.Column(name)
	if !ok {
		return &UnknownAttributeError{Model: r.model.name, Attribute: name}
	}
	if col.PrimaryKey {
		return errReadOnlyAttribute
	}
	r.attrs[name] = jsonldb.CoerceValue(value, col.Type.Affinity())
	return nil
}

// Attributes returns a snapshot of the in-memory attributes, including any
// placeholders the extension seeded at construction.
func (r *Record) Attributes() map[string]any {
	return maps.Clone(r.attrs)
}

// columnValues returns the values of the non-key schema columns.
func (r *Record) columnValues() map[string]any {
	pk := r.model.PrimaryKey()
	out := make(map[string]any, len(r.model.schema.Columns))
	for _, col := range r.model.schema.Columns {
		if col.Name == pk {
			continue
		}
		out[col.Name] = r.attrs[col.Name]
	}
	return out
}
