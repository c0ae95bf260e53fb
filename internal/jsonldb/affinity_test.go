package jsonldb

import (
	"reflect"
	"testing"
	"time"
)

func TestColumnTypeAffinity(t *testing.T) {
	tests := []struct {
		colType ColumnType
		want    Affinity
	}{
		{ColumnTypeText, AffinityTEXT},
		{ColumnTypeDate, AffinityTEXT},
		{ColumnTypeNumber, AffinityNUMERIC},
		{ColumnTypeBool, AffinityINTEGER},
		{ColumnTypeJSONB, AffinityBLOB},
		{"unknown", AffinityBLOB},
	}
	for _, tt := range tests {
		t.Run(string(tt.colType), func(t *testing.T) {
			if got := tt.colType.Affinity(); got != tt.want {
				t.Errorf("Affinity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoerceValue(t *testing.T) {
	when := time.Date(1980, 6, 15, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name     string
		value    any
		affinity Affinity
		want     any
	}{
		{"nil text", nil, AffinityTEXT, nil},
		{"nil integer", nil, AffinityINTEGER, nil},
		{"text string", "hello", AffinityTEXT, "hello"},
		{"text whole float", float64(42), AffinityTEXT, "42"},
		{"text fractional float", 3.5, AffinityTEXT, "3.5"},
		{"text int", 7, AffinityTEXT, "7"},
		{"text bool", true, AffinityTEXT, "1"},
		{"text time", when, AffinityTEXT, "1980-06-15T10:30:00Z"},
		{"text slice", []any{"a"}, AffinityTEXT, []any{"a"}},
		{"integer float", 3.9, AffinityINTEGER, int64(3)},
		{"integer string", "12", AffinityINTEGER, int64(12)},
		{"integer float string", "12.7", AffinityINTEGER, int64(12)},
		{"integer text", "abc", AffinityINTEGER, "abc"},
		{"integer bool", false, AffinityINTEGER, int64(0)},
		{"numeric whole float", float64(33), AffinityNUMERIC, int64(33)},
		{"numeric fractional float", 1.25, AffinityNUMERIC, 1.25},
		{"numeric int", 33, AffinityNUMERIC, int64(33)},
		{"numeric string int", "33", AffinityNUMERIC, int64(33)},
		{"numeric string float", "2.5", AffinityNUMERIC, 2.5},
		{"numeric string whole float", "2.0", AffinityNUMERIC, int64(2)},
		{"numeric text", "n/a", AffinityNUMERIC, "n/a"},
		{"blob map", map[string]any{"a": 1}, AffinityBLOB, map[string]any{"a": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoerceValue(tt.value, tt.affinity); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CoerceValue(%v, %v) = %#v, want %#v", tt.value, tt.affinity, got, tt.want)
			}
		})
	}
}

func TestCoerceData(t *testing.T) {
	s := Schema{Columns: []Column{
		{Name: "age", Type: ColumnTypeNumber},
		{Name: "name", Type: ColumnTypeText},
	}}
	got := CoerceData(map[string]any{"age": float64(33), "name": 5, "extra": 1.5}, &s)
	want := map[string]any{"age": int64(33), "name": "5", "extra": 1.5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CoerceData() = %v, want %v", got, want)
	}
	if CoerceData(nil, &s) != nil {
		t.Error("CoerceData(nil) should be nil")
	}
}
