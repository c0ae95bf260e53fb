package jsonldb

import (
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/maruel/ksid"
)

func TestSchemaHeader(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tests := []struct {
			name   string
			header schemaHeader
		}{
			{"minimal valid header", schemaHeader{Version: "1.0", Columns: []Column{}}},
			{"version 1.99", schemaHeader{Version: "1.99"}},
			{
				"header with columns",
				schemaHeader{
					Version: "1.0",
					Columns: []Column{
						{Name: "id", Type: ColumnTypeText, PrimaryKey: true},
						{Name: "name", Type: ColumnTypeText, Default: "anonymous"},
					},
				},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := tt.header.Validate(); err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
			})
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			header schemaHeader
		}{
			{"empty version", schemaHeader{Version: ""}},
			{"unsupported version 2.0", schemaHeader{Version: "2.0"}},
			{"column with empty name", schemaHeader{Version: "1.0", Columns: []Column{{Type: ColumnTypeText}}}},
			{"column with empty type", schemaHeader{Version: "1.0", Columns: []Column{{Name: "id"}}}},
			{"column with unknown type", schemaHeader{Version: "1.0", Columns: []Column{{Name: "id", Type: "uuid"}}}},
			{
				"duplicate column",
				schemaHeader{Version: "1.0", Columns: []Column{
					{Name: "a", Type: ColumnTypeText},
					{Name: "a", Type: ColumnTypeNumber},
				}},
			},
			{
				"two primary keys",
				schemaHeader{Version: "1.0", Columns: []Column{
					{Name: "a", Type: ColumnTypeText, PrimaryKey: true},
					{Name: "b", Type: ColumnTypeText, PrimaryKey: true},
				}},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := tt.header.Validate(); err == nil {
					t.Error("Validate() expected error, got nil")
				}
			})
		}
	})
}

func TestSchema(t *testing.T) {
	s := Schema{Columns: []Column{
		{Name: "id", Type: ColumnTypeText, PrimaryKey: true},
		{Name: "name", Type: ColumnTypeText, Default: "anonymous"},
		{Name: "dynamic_attributes", Type: ColumnTypeText},
	}}
	if got := s.ColumnNames(); !slices.Equal(got, []string{"id", "name", "dynamic_attributes"}) {
		t.Errorf("ColumnNames() = %v", got)
	}
	if got := s.PrimaryKey(); got != "id" {
		t.Errorf("PrimaryKey() = %q", got)
	}
	if !s.HasColumn("name") || s.HasColumn("Name") || s.HasColumn("home_town") {
		t.Error("HasColumn must match names exactly")
	}
	want := map[string]any{"name": "anonymous", "dynamic_attributes": nil}
	if got := s.Defaults(); !reflect.DeepEqual(got, want) {
		t.Errorf("Defaults() = %v, want %v", got, want)
	}
	empty := Schema{}
	if empty.PrimaryKey() != "" {
		t.Error("PrimaryKey() of empty schema should be empty")
	}
}

type schemaTestStruct struct {
	ID        ksid.ID   `json:"id"`
	Name      string    `json:"name" jsonschema:"description=Full name,default=anonymous"`
	Age       int       `json:"age,omitempty"`
	Active    bool      `json:"active"`
	Born      time.Time `json:"born"`
	Tags      []string  `json:"tags,omitempty"`
	Data      string    `json:"dynamic_attributes"`
	Ignored   string    `json:"-"`
	unexposed string
}

func TestSchemaFromType(t *testing.T) {
	t.Run("struct", func(t *testing.T) {
		s, err := SchemaFromType[schemaTestStruct]()
		if err != nil {
			t.Fatalf("SchemaFromType() error = %v", err)
		}
		wantNames := []string{"id", "name", "age", "active", "born", "tags", "dynamic_attributes"}
		if got := s.ColumnNames(); !slices.Equal(got, wantNames) {
			t.Fatalf("ColumnNames() = %v, want %v", got, wantNames)
		}
		wantTypes := map[string]ColumnType{
			"id":                 ColumnTypeText,
			"name":               ColumnTypeText,
			"age":                ColumnTypeNumber,
			"active":             ColumnTypeBool,
			"born":               ColumnTypeDate,
			"tags":               ColumnTypeJSONB,
			"dynamic_attributes": ColumnTypeText,
		}
		for name, want := range wantTypes {
			col, _ := s.Column(name)
			if col.Type != want {
				t.Errorf("column %q type = %q, want %q", name, col.Type, want)
			}
		}
		if s.PrimaryKey() != "id" {
			t.Errorf("PrimaryKey() = %q", s.PrimaryKey())
		}
		name, _ := s.Column("name")
		if name.Description != "Full name" {
			t.Errorf("description = %q", name.Description)
		}
		if name.Default != "anonymous" {
			t.Errorf("default = %v", name.Default)
		}
	})

	t.Run("pointer", func(t *testing.T) {
		s, err := SchemaFromType[*schemaTestStruct]()
		if err != nil {
			t.Fatal(err)
		}
		if len(s.Columns) != 7 {
			t.Errorf("got %d columns", len(s.Columns))
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, err := SchemaFromType[int](); err == nil {
			t.Error("int: expected error")
		}
		if _, err := SchemaFromType[*string](); err == nil {
			t.Error("*string: expected error")
		}
	})
}

func TestJsonFieldName(t *testing.T) {
	type s struct {
		A string `json:"a"`
		B string `json:"b,omitempty"`
		C string `json:",omitempty"`
		D string
	}
	typ := reflect.TypeFor[s]()
	want := []string{"a", "b", "C", "D"}
	for i := range typ.NumField() {
		f := typ.Field(i)
		if got := jsonFieldName(&f); got != want[i] {
			t.Errorf("jsonFieldName(%s) = %q, want %q", f.Name, got, want[i])
		}
	}
}

func TestGoTypeToColumnType(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		want ColumnType
	}{
		{reflect.TypeFor[string](), ColumnTypeText},
		{reflect.TypeFor[*string](), ColumnTypeText},
		{reflect.TypeFor[int64](), ColumnTypeNumber},
		{reflect.TypeFor[float32](), ColumnTypeNumber},
		{reflect.TypeFor[bool](), ColumnTypeBool},
		{reflect.TypeFor[time.Time](), ColumnTypeDate},
		{reflect.TypeFor[*time.Time](), ColumnTypeDate},
		{reflect.TypeFor[map[string]any](), ColumnTypeJSONB},
		{reflect.TypeFor[[]int](), ColumnTypeJSONB},
		{reflect.TypeFor[chan int](), ColumnTypeText},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := goTypeToColumnType(tt.typ); got != tt.want {
				t.Errorf("goTypeToColumnType(%s) = %q, want %q", tt.typ, got, tt.want)
			}
		})
	}
}
