package model

import (
	"fmt"
	"iter"
	"maps"

	"github.com/maruel/dynattr/internal/jsonldb"
	"github.com/maruel/ksid"
)

// row is the on-disk form of a record.
type row struct {
	ID   ksid.ID        `json:"id"`
	Data map[string]any `json:"data"`
}

func (r *row) Clone() *row {
	return &row{ID: r.ID, Data: maps.Clone(r.Data)}
}

func (r *row) GetID() ksid.ID {
	return r.ID
}

func (r *row) Validate() error {
	return nil
}

// Store persists the records of one model in a JSONL table.
type Store struct {
	model *Model
	table *jsonldb.Table[*row]
}

// OpenStore opens (or creates) the table at path for m.
func OpenStore(m *Model, path string) (*Store, error) {
	table, err := jsonldb.NewTable[*row](path, m.Schema().Columns)
	if err != nil {
		return nil, err
	}
	s := &Store{model: m, table: table}
	for _, col := range table.Columns() {
		if !m.HasColumn(col.Name) {
			m.logger.Warn("table column not in model", "model", m.name, "column", col.Name, "path", path)
		}
	}
	return s, nil
}

// Model returns the stored model.
func (s *Store) Model() *Model {
	return s.model
}

// Path returns the table file.
func (s *Store) Path() string {
	return s.table.Path()
}

// Create builds a record from attrs with guarded assignment and saves it.
func (s *Store) Create(attrs map[string]any) (*Record, error) {
	r, err := s.model.New(attrs)
	if err != nil {
		return nil, err
	}
	if err := s.Save(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Save runs validations, then the model's before-save callbacks, then the
// extension hook, and finally writes the row. New records get an ID.
func (s *Store) Save(r *Record) error {
	m := s.model
	if r.model != m {
		return errModelMismatch
	}
	for _, fn := range m.validators {
		if err := fn(r); err != nil {
			return fmt.Errorf("%s: validation failed: %w", m.name, err)
		}
	}
	for _, fn := range m.beforeSave {
		if err := fn(r); err != nil {
			return fmt.Errorf("%s: before save: %w", m.name, err)
		}
	}
	if r.binding != nil {
		if err := r.binding.BeforeSave(); err != nil {
			return fmt.Errorf("%s: before save: %w", m.name, err)
		}
	}

	data := r.columnValues()
	if r.persisted {
		if err := s.table.Update(&row{ID: r.ID(), Data: data}); err != nil {
			return fmt.Errorf("%s: failed to update %s: %w", m.name, r.ID(), err)
		}
		m.logger.Debug("record updated", "model", m.name, "id", r.ID())
		return nil
	}
	id := ksid.NewID()
	if err := s.table.Append(&row{ID: id, Data: data}); err != nil {
		return fmt.Errorf("%s: failed to insert: %w", m.name, err)
	}
	r.attrs[m.PrimaryKey()] = id
	r.persisted = true
	m.logger.Debug("record created", "model", m.name, "id", id)
	return nil
}

// Find loads the record with the given ID.
func (s *Store) Find(id ksid.ID) (*Record, error) {
	rw := s.table.Get(id)
	if rw == nil {
		return nil, fmt.Errorf("%s %s: %w", s.model.name, id, ErrRecordNotFound)
	}
	return s.load(rw), nil
}

// First loads the oldest record.
func (s *Store) First() (*Record, error) {
	rw, ok := s.table.First()
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.model.name, ErrRecordNotFound)
	}
	return s.load(rw), nil
}

// Last loads the most recently created record.
func (s *Store) Last() (*Record, error) {
	rw, ok := s.table.Last()
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.model.name, ErrRecordNotFound)
	}
	return s.load(rw), nil
}

// All iterates over every stored record in insertion order.
func (s *Store) All() iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		for rw := range s.table.All() {
			if !yield(s.load(rw)) {
				return
			}
		}
	}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return s.table.Len()
}

// Reload re-reads the table file, picking up writes from other processes.
func (s *Store) Reload() error {
	return s.table.Reload()
}

// load hydrates a record from a row. Keys that are not columns are dropped.
func (s *Store) load(rw *row) *Record {
	m := s.model
	attrs := make(map[string]any, len(m.schema.Columns))
	for k, v := range jsonldb.CoerceData(rw.Data, &m.schema) {
		if m.HasColumn(k) {
			attrs[k] = v
		}
	}
	attrs[m.PrimaryKey()] = rw.ID
	return m.instantiate(attrs, true)
}
