// Handles schema definition, column types, and reflection-based schema generation.

package jsonldb

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

var (
	errSchemaVersionRequired = errors.New("schema version is required")
	errMultiplePrimaryKeys   = errors.New("schema has more than one primary key")
)

// currentVersion is the current version of the JSONL table format.
const currentVersion = "1.0"

// ColumnType represents the type of a table column.
type ColumnType string

const (
	// ColumnTypeText stores text values.
	ColumnTypeText ColumnType = "text"
	// ColumnTypeNumber stores numeric values (integer or float).
	ColumnTypeNumber ColumnType = "number"
	// ColumnTypeBool stores boolean values as 0/1.
	ColumnTypeBool ColumnType = "bool"
	// ColumnTypeDate stores RFC 3339 date strings.
	ColumnTypeDate ColumnType = "date"
	// ColumnTypeJSONB stores arbitrary JSON values unchanged.
	ColumnTypeJSONB ColumnType = "jsonb"
)

// Valid reports whether the column type is known.
func (c ColumnType) Valid() bool {
	switch c {
	case ColumnTypeText, ColumnTypeNumber, ColumnTypeBool, ColumnTypeDate, ColumnTypeJSONB:
		return true
	default:
		return false
	}
}

// Column represents a static table column.
type Column struct {
	Name        string     `json:"name" yaml:"name"`
	Type        ColumnType `json:"type" yaml:"type"`
	PrimaryKey  bool       `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Default     any        `json:"default,omitempty" yaml:"default,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schema is the ordered list of static columns of a record type.
type Schema struct {
	Columns []Column `json:"columns" yaml:"columns"`
}

// Validate checks that column names are unique and non-empty, types are known
// and at most one column is the primary key.
func (s *Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Columns))
	pk := 0
	for i, col := range s.Columns {
		if col.Name == "" {
			return fmt.Errorf("column %d: name is required", i)
		}
		if col.Type == "" {
			return fmt.Errorf("column %d: type is required", i)
		}
		if !col.Type.Valid() {
			return fmt.Errorf("column %q: unknown type %q", col.Name, col.Type)
		}
		if _, ok := seen[col.Name]; ok {
			return fmt.Errorf("column %q: duplicate name", col.Name)
		}
		seen[col.Name] = struct{}{}
		if col.PrimaryKey {
			pk++
		}
	}
	if pk > 1 {
		return errMultiplePrimaryKeys
	}
	return nil
}

// Column returns the column with the given name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, col := range s.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether name matches a column exactly.
func (s *Schema) HasColumn(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// ColumnNames returns the column names in declaration order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// PrimaryKey returns the name of the primary key column, or "" if none.
func (s *Schema) PrimaryKey() string {
	for _, col := range s.Columns {
		if col.PrimaryKey {
			return col.Name
		}
	}
	return ""
}

// Defaults returns every column's default value, excluding the primary key.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any, len(s.Columns))
	for _, col := range s.Columns {
		if col.PrimaryKey {
			continue
		}
		out[col.Name] = col.Default
	}
	return out
}

// schemaHeader is the first row of a JSONL data file containing schema and metadata.
type schemaHeader struct {
	Version string   `json:"version"`
	Columns []Column `json:"columns"`
}

// Validate checks that the schema header is well-formed.
func (h *schemaHeader) Validate() error {
	if h.Version == "" {
		return errSchemaVersionRequired
	}
	if major, _, _ := strings.Cut(h.Version, "."); major != "1" {
		return fmt.Errorf("unsupported schema version %q", h.Version)
	}
	s := Schema{Columns: h.Columns}
	return s.Validate()
}

// SchemaFromType extracts column definitions using JSON Schema reflection.
//
// It uses github.com/invopop/jsonschema to extract descriptions and default
// values from `jsonschema:"description=...,default=..."` tags. The field whose
// JSON name is "id" becomes the primary key.
func SchemaFromType[T any]() (Schema, error) {
	t := reflect.TypeFor[T]()

	switch t.Kind() {
	case reflect.Pointer:
		if t.Elem().Kind() != reflect.Struct {
			return Schema{}, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
		}
	case reflect.Struct:
		// ok
	default:
		return Schema{}, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	structType := t
	if t.Kind() == reflect.Pointer {
		structType = t.Elem()
	}

	// Inline properties (no $ref) so every field is visible at the top level.
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := r.ReflectFromType(structType)

	var s Schema
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name := pair.Key
		prop := pair.Value

		colType := ColumnTypeText
		for i := range structType.NumField() {
			field := structType.Field(i)
			if jsonFieldName(&field) == name {
				colType = goTypeToColumnType(field.Type)
				break
			}
		}

		// Row IDs are stored in their string encoding.
		pk := name == "id"
		if pk {
			colType = ColumnTypeText
		}
		s.Columns = append(s.Columns, Column{
			Name:        name,
			Type:        colType,
			PrimaryKey:  pk,
			Default:     prop.Default,
			Description: prop.Description,
		})
	}
	return s, s.Validate()
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

// goTypeToColumnType maps Go types to JSONL column types.
func goTypeToColumnType(t reflect.Type) ColumnType {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == reflect.TypeFor[time.Time]() {
		return ColumnTypeDate
	}
	switch t.Kind() {
	case reflect.String:
		return ColumnTypeText
	case reflect.Bool:
		return ColumnTypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return ColumnTypeNumber
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
		return ColumnTypeJSONB
	default:
		return ColumnTypeText
	}
}
