// Package model implements record types over a jsonldb schema: static
// attribute access, pre-save callbacks, mass assignment with protection, and
// persistence through [Store].
//
// A [Model] may carry one [Extension] that takes over attribute resolution for
// its records. The extension sees every Get and Set before the static path and
// runs right before a record is written.
package model

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/maruel/dynattr/internal/jsonldb"
)

// Callback runs against a record during Save. Returning an error aborts the
// save.
type Callback func(*Record) error

// Extension customizes attribute resolution for every record of a model.
type Extension interface {
	// Bind returns the per-record half of the extension.
	Bind(rec *Record) Binding
	// InitialAttributes returns the attributes a new record starts with.
	InitialAttributes() map[string]any
}

// Binding resolves attributes for a single record.
//
// Bindings wrap [Record.ReadAttribute] and [Record.WriteAttribute]; they must
// not call [Record.Get] or [Record.Set].
type Binding interface {
	Get(name string) (any, error)
	Set(name string, value any) (any, error)
	// BeforeSave runs after validation and before the row is written.
	BeforeSave() error
}

// Model describes a record type: its name, static columns and behavior.
type Model struct {
	name       string
	schema     jsonldb.Schema
	protected  map[string]struct{}
	accessible map[string]struct{}
	validators []Callback
	beforeSave []Callback
	ext        Extension
	logger     *slog.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithProtected excludes names from guarded mass assignment.
func WithProtected(names ...string) Option {
	return func(m *Model) {
		for _, n := range names {
			m.protected[n] = struct{}{}
		}
	}
}

// WithAccessible restricts guarded mass assignment to names. When set, every
// other name is protected.
func WithAccessible(names ...string) Option {
	return func(m *Model) {
		if m.accessible == nil {
			m.accessible = make(map[string]struct{}, len(names))
		}
		for _, n := range names {
			m.accessible[n] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for mass-assignment warnings and save
// tracing. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		m.logger = l
	}
}

// Define creates a record type. The schema must have a primary key, which is
// always protected from mass assignment.
func Define(name string, schema jsonldb.Schema, opts ...Option) (*Model, error) {
	if name == "" {
		return nil, errNameRequired
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	pk := schema.PrimaryKey()
	if pk == "" {
		return nil, fmt.Errorf("model %s: %w", name, errPrimaryKeyRequired)
	}
	m := &Model{
		name:      name,
		schema:    jsonldb.Schema{Columns: append([]jsonldb.Column(nil), schema.Columns...)},
		protected: map[string]struct{}{pk: {}},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// Schema returns a copy of the static schema.
func (m *Model) Schema() jsonldb.Schema {
	return jsonldb.Schema{Columns: append([]jsonldb.Column(nil), m.schema.Columns...)}
}

// ColumnNames returns the static column names in declaration order.
func (m *Model) ColumnNames() []string {
	return m.schema.ColumnNames()
}

// HasColumn reports whether name is a static column.
func (m *Model) HasColumn(name string) bool {
	return m.schema.HasColumn(name)
}

// Column returns the static column with the given name.
func (m *Model) Column(name string) (jsonldb.Column, bool) {
	return m.schema.Column(name)
}

// PrimaryKey returns the primary key column name.
func (m *Model) PrimaryKey() string {
	return m.schema.PrimaryKey()
}

// Defaults returns the default value of every column but the primary key.
func (m *Model) Defaults() map[string]any {
	return m.schema.Defaults()
}

// Logger returns the model's logger.
func (m *Model) Logger() *slog.Logger {
	return m.logger
}

// Validate registers a validation run first during Save.
func (m *Model) Validate(fn Callback) {
	m.validators = append(m.validators, fn)
}

// BeforeSave registers a callback run after validation and before the
// extension's own hook.
func (m *Model) BeforeSave(fn Callback) {
	m.beforeSave = append(m.beforeSave, fn)
}

// Extend registers ext for every record created afterwards.
func (m *Model) Extend(ext Extension) error {
	if m.ext != nil {
		return fmt.Errorf("model %s: %w", m.name, ErrAlreadyExtended)
	}
	m.ext = ext
	return nil
}

// Extension returns the registered extension, or nil.
func (m *Model) Extension() Extension {
	return m.ext
}

// New builds an unsaved record. Defaults come from the extension when one is
// registered, otherwise from the schema; attrs are then mass-assigned with
// protection.
func (m *Model) New(attrs map[string]any) (*Record, error) {
	var initial map[string]any
	if m.ext != nil {
		initial = m.ext.InitialAttributes()
	} else {
		initial = m.Defaults()
	}
	r := m.instantiate(maps.Clone(initial), false)
	if err := r.AssignAttributes(attrs, true); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *Model) instantiate(attrs map[string]any, persisted bool) *Record {
	if attrs == nil {
		attrs = map[string]any{}
	}
	r := &Record{model: m, attrs: attrs, persisted: persisted}
	if m.ext != nil {
		r.binding = m.ext.Bind(r)
	}
	return r
}

func (m *Model) isProtected(name string) bool {
	if _, ok := m.protected[name]; ok {
		return true
	}
	if m.accessible != nil {
		_, ok := m.accessible[name]
		return !ok
	}
	return false
}
