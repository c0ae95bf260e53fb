// Package dynattr stores an open-ended set of named attributes in one
// serialized column of a [model.Model] while presenting them as ordinary
// fields.
//
// [Declare] attaches a [Config] to a model. Every record of that model then
// resolves unknown names through an [Attributes] binding: writes go to a
// per-record pending buffer, reads look at the buffer first and then at the
// decoded column, and the buffer is merged into the column right before the
// record is saved.
package dynattr

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/maruel/dynattr/internal/jsonldb"
	"github.com/maruel/dynattr/internal/model"
)

// DefaultColumn is the blob column used when [WithColumn] is not given.
const DefaultColumn = "dynamic_attributes"

var (
	// ErrUndefinedTableColumn is returned by Declare when the blob column is
	// not a static column of the model.
	ErrUndefinedTableColumn = errors.New("undefined table column")
	// ErrBlobAssignment is returned when the blob column is assigned anything
	// but a map or nil.
	ErrBlobAssignment = errors.New("blob column only accepts a map of attributes")

	errEmptyField      = errors.New("empty dynamic field name")
	errFieldIsColumn   = errors.New("dynamic field cannot be the blob column")
	errNilModel        = errors.New("model is required")
	errCodecIsRequired = errors.New("codec is required")
	errBlobColumnType  = errors.New("blob column must be of type text or jsonb")
)

// Config is the immutable per-model declaration of dynamic attributes.
type Config struct {
	model  *model.Model
	column string
	fields []string
	set    map[string]struct{}
	codec  Codec
}

// Option configures Declare.
type Option func(*Config)

// WithColumn names the static column holding the serialized attributes.
func WithColumn(name string) Option {
	return func(c *Config) {
		c.column = name
	}
}

// WithCodec selects the blob format. Defaults to YAMLCodec.
func WithCodec(codec Codec) Option {
	return func(c *Config) {
		c.codec = codec
	}
}

// Declare enables dynamic attributes on m.
//
// fields lists the accepted dynamic names in order; an empty list opens the
// namespace so that any name that is not a static column is dynamic. The blob
// column must already be a static column of m, otherwise Declare fails with
// ErrUndefinedTableColumn.
func Declare(m *model.Model, fields []string, opts ...Option) (*Config, error) {
	if m == nil {
		return nil, errNilModel
	}
	c := &Config{
		model:  m,
		column: DefaultColumn,
		set:    map[string]struct{}{},
		codec:  YAMLCodec{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.codec == nil {
		return nil, errCodecIsRequired
	}
	col, ok := m.Column(c.column)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", m.Name(), c.column, ErrUndefinedTableColumn)
	}
	if col.PrimaryKey || (col.Type != jsonldb.ColumnTypeText && col.Type != jsonldb.ColumnTypeJSONB) {
		return nil, fmt.Errorf("%s.%s: %w", m.Name(), c.column, errBlobColumnType)
	}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return nil, fmt.Errorf("%s: %w", m.Name(), errEmptyField)
		}
		if f == c.column {
			return nil, fmt.Errorf("%s.%s: %w", m.Name(), f, errFieldIsColumn)
		}
		if _, ok := c.set[f]; ok {
			continue
		}
		c.set[f] = struct{}{}
		c.fields = append(c.fields, f)
	}
	if err := m.Extend(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Model returns the model the configuration is attached to.
func (c *Config) Model() *model.Model {
	return c.model
}

// ColumnName returns the blob column name.
func (c *Config) ColumnName() string {
	return c.column
}

// Fields returns the declared dynamic names in declaration order.
func (c *Config) Fields() []string {
	return slices.Clone(c.fields)
}

// Open reports whether any non-static name is accepted.
func (c *Config) Open() bool {
	return len(c.fields) == 0
}

// Codec returns the blob codec.
func (c *Config) Codec() Codec {
	return c.codec
}

// InitialAttributes implements model.Extension: every declared field maps to
// nil, merged with the static column defaults (primary key excluded).
func (c *Config) InitialAttributes() map[string]any {
	out := make(map[string]any, len(c.fields))
	for _, f := range c.fields {
		out[f] = nil
	}
	maps.Copy(out, c.model.Defaults())
	return out
}

// Bind implements model.Extension.
func (c *Config) Bind(rec *model.Record) model.Binding {
	return &Attributes{cfg: c, rec: rec}
}
