package model

import (
	"bytes"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/maruel/dynattr/internal/jsonldb"
)

var userSchema = jsonldb.Schema{Columns: []jsonldb.Column{
	{Name: "id", Type: jsonldb.ColumnTypeText, PrimaryKey: true},
	{Name: "name", Type: jsonldb.ColumnTypeText},
	{Name: "age", Type: jsonldb.ColumnTypeNumber, Default: int64(18)},
	{Name: "born_on", Type: jsonldb.ColumnTypeDate},
	{Name: "role", Type: jsonldb.ColumnTypeText, Default: "member"},
}}

func defineUser(t *testing.T, opts ...Option) *Model {
	t.Helper()
	m, err := Define("users", userSchema, opts...)
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	return m
}

func TestDefine(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		m := defineUser(t)
		if m.Name() != "users" || m.PrimaryKey() != "id" {
			t.Errorf("Name()=%q PrimaryKey()=%q", m.Name(), m.PrimaryKey())
		}
		if !m.HasColumn("name") || m.HasColumn("home_town") {
			t.Error("HasColumn mismatch")
		}
		want := map[string]any{"name": nil, "age": int64(18), "born_on": nil, "role": "member"}
		if got := m.Defaults(); !reflect.DeepEqual(got, want) {
			t.Errorf("Defaults() = %v, want %v", got, want)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			model  string
			schema jsonldb.Schema
		}{
			{"empty name", "", userSchema},
			{"no primary key", "x", jsonldb.Schema{Columns: []jsonldb.Column{{Name: "a", Type: jsonldb.ColumnTypeText}}}},
			{"invalid schema", "x", jsonldb.Schema{Columns: []jsonldb.Column{{Name: "a"}}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := Define(tt.model, tt.schema); err == nil {
					t.Error("expected error")
				}
			})
		}
	})

	t.Run("schema is copied", func(t *testing.T) {
		s := jsonldb.Schema{Columns: []jsonldb.Column{{Name: "id", Type: jsonldb.ColumnTypeText, PrimaryKey: true}}}
		m, err := Define("x", s)
		if err != nil {
			t.Fatal(err)
		}
		s.Columns[0].Name = "changed"
		if !m.HasColumn("id") {
			t.Error("model shares the caller's column slice")
		}
	})
}

func TestRecordStaticAttributes(t *testing.T) {
	m := defineUser(t)
	r, err := m.New(map[string]any{"name": "Joel Moss"})
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsNew() || !r.ID().IsZero() {
		t.Error("new record should be unsaved without ID")
	}
	if v, _ := r.Get("name"); v != "Joel Moss" {
		t.Errorf("name = %v", v)
	}
	if v, _ := r.Get("role"); v != "member" {
		t.Errorf("role default = %v", v)
	}

	t.Run("coercion", func(t *testing.T) {
		if _, err := r.Set("age", "33"); err != nil {
			t.Fatal(err)
		}
		if v, _ := r.Get("age"); v != int64(33) {
			t.Errorf("age = %#v, want int64(33)", v)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := r.Get("home_town")
		var uerr *UnknownAttributeError
		if !errors.As(err, &uerr) || uerr.Attribute != "home_town" || uerr.Model != "users" {
			t.Fatalf("Get unknown: err = %v", err)
		}
		if !errors.Is(err, ErrUnknownAttribute) {
			t.Error("errors.Is(err, ErrUnknownAttribute) = false")
		}
		if _, err := r.Set("home_town", "Chorley"); !errors.Is(err, ErrUnknownAttribute) {
			t.Errorf("Set unknown: err = %v", err)
		}
	})

	t.Run("primary key", func(t *testing.T) {
		if err := r.WriteAttribute("id", "x"); !errors.Is(err, errReadOnlyAttribute) {
			t.Errorf("WriteAttribute(id): err = %v", err)
		}
	})

	t.Run("Attributes is a snapshot", func(t *testing.T) {
		a := r.Attributes()
		a["name"] = "changed"
		if v, _ := r.Get("name"); v != "Joel Moss" {
			t.Error("Attributes() returned the live map")
		}
	})
}

func TestAssignAttributes(t *testing.T) {
	t.Run("protected", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		m := defineUser(t, WithProtected("role"), WithLogger(logger))
		r, err := m.New(nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.AssignAttributes(map[string]any{"name": "a", "role": "admin", "id": "x"}, true); err != nil {
			t.Fatal(err)
		}
		if v, _ := r.Get("role"); v != "member" {
			t.Errorf("protected role assigned: %v", v)
		}
		if !strings.Contains(buf.String(), "protected") {
			t.Errorf("no warning logged: %q", buf.String())
		}
		if err := r.AssignAttributes(map[string]any{"role": "admin"}, false); err != nil {
			t.Fatal(err)
		}
		if v, _ := r.Get("role"); v != "admin" {
			t.Errorf("unguarded assignment ignored: %v", v)
		}
	})

	t.Run("accessible", func(t *testing.T) {
		m := defineUser(t, WithAccessible("name"))
		r, err := m.New(map[string]any{"name": "a", "age": 40})
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := r.Get("age"); v != int64(18) {
			t.Errorf("age assigned through accessible list: %v", v)
		}
		if v, _ := r.Get("name"); v != "a" {
			t.Errorf("name = %v", v)
		}
	})

	t.Run("unknown key fails", func(t *testing.T) {
		m := defineUser(t)
		if _, err := m.New(map[string]any{"address": "x"}); !errors.Is(err, ErrUnknownAttribute) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("multiparameter", func(t *testing.T) {
		m := defineUser(t)
		r, err := m.New(map[string]any{
			"name":          "a",
			"born_on(1i)":   "1980",
			"born_on(2i)":   "6",
			"born_on(3i)":   15,
			"unrelated(1i)": "",
		})
		if err == nil {
			t.Fatal("expected error for unknown composite attribute")
		}
		_ = r

		r, err = m.New(map[string]any{"born_on(1i)": "1980", "born_on(2i)": "6", "born_on(3i)": 15})
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := r.Get("born_on"); v != "1980-06-15T00:00:00Z" {
			t.Errorf("born_on = %#v", v)
		}
	})

	t.Run("multiparameter errors", func(t *testing.T) {
		m := defineUser(t)
		tests := []struct {
			name  string
			attrs map[string]any
		}{
			{"not a number", map[string]any{"born_on(1i)": "nineteen"}},
			{"malformed key", map[string]any{"born_on(x)": "1"}},
			{"out of range", map[string]any{"born_on(7i)": "1"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := m.New(tt.attrs)
				var merr *MultiparameterError
				if !errors.As(err, &merr) {
					t.Errorf("err = %v, want MultiparameterError", err)
				}
			})
		}
	})
}

func TestAssembleTime(t *testing.T) {
	tests := []struct {
		name  string
		parts map[int]any
		want  any
	}{
		{"blank", map[int]any{1: "", 2: nil}, nil},
		{"year only", map[int]any{1: 2001}, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"full", map[int]any{1: "2001", 2: "2", 3: "3", 4: "4", 5: "5", 6: "6"}, time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)},
		{"float parts", map[int]any{1: float64(1999), 2: float64(12)}, time.Date(1999, 12, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := assembleTime(tt.parts)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("assembleTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

// fakeExtension records calls, standing in for a real attribute extension.
type fakeExtension struct {
	initial map[string]any
	saves   int
}

func (f *fakeExtension) Bind(rec *Record) Binding {
	return &fakeBinding{ext: f, rec: rec, extra: map[string]any{}}
}

func (f *fakeExtension) InitialAttributes() map[string]any {
	return f.initial
}

type fakeBinding struct {
	ext   *fakeExtension
	rec   *Record
	extra map[string]any
}

func (b *fakeBinding) Get(name string) (any, error) {
	if strings.HasPrefix(name, "x_") {
		return b.extra[name], nil
	}
	return b.rec.ReadAttribute(name)
}

func (b *fakeBinding) Set(name string, value any) (any, error) {
	if strings.HasPrefix(name, "x_") {
		b.extra[name] = value
		return value, nil
	}
	return value, b.rec.WriteAttribute(name, value)
}

func (b *fakeBinding) BeforeSave() error {
	b.ext.saves++
	return nil
}

func TestExtension(t *testing.T) {
	m := defineUser(t)
	ext := &fakeExtension{initial: map[string]any{"name": "default", "x_placeholder": nil}}
	if err := m.Extend(ext); err != nil {
		t.Fatal(err)
	}
	if err := m.Extend(ext); !errors.Is(err, ErrAlreadyExtended) {
		t.Errorf("second Extend: err = %v", err)
	}
	if m.Extension() != ext {
		t.Error("Extension() mismatch")
	}
	r, err := m.New(map[string]any{"x_color": "red"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Binding() == nil {
		t.Fatal("record has no binding")
	}
	if v, _ := r.Get("x_color"); v != "red" {
		t.Errorf("x_color = %v", v)
	}
	if v, _ := r.Get("name"); v != "default" {
		t.Errorf("name = %v", v)
	}
	if _, ok := r.Attributes()["x_placeholder"]; !ok {
		t.Error("initial placeholder missing from Attributes()")
	}
}
