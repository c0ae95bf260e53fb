package jsonldb

import (
	"math"
	"strconv"
	"time"
)

// Type coercion maps JSON wire types through Go types to SQLite storage classes.
//
// JSON wire type → Go type (json.Unmarshal) → Go type (coerced) → SQLite class:
//
//	null           → nil            → nil            → NULL
//	true/false     → bool           → int64          → INTEGER (0 or 1)
//	123            → float64        → int64          → INTEGER
//	3.14           → float64        → float64        → REAL
//	"text"         → string         → string         → TEXT
//	[...]          → []any          → []any          → TEXT (JSON-encoded)
//	{...}          → map[string]any → map[string]any → TEXT (JSON-encoded)
//
// The coercion depends on column affinity:
//   - TEXT: numbers → string, bool → "0"/"1", time.Time → RFC 3339
//   - INTEGER: float64 → int64, bool → int64(0/1), numeric strings → int64
//   - NUMERIC: whole floats → int64, fractional → float64, numeric strings parsed
//   - BLOB: no coercion, values pass through unchanged
//
// See https://www.sqlite.org/datatype3.html for the SQLite specification.

// Affinity represents SQLite-compatible type affinity for columns.
type Affinity int

const (
	// AffinityBLOB has no type preference; values stored as-is.
	AffinityBLOB Affinity = iota
	// AffinityTEXT converts numeric values to string representation.
	AffinityTEXT
	// AffinityINTEGER forces integer representation.
	AffinityINTEGER
	// AffinityNUMERIC stores as INTEGER if whole number, REAL otherwise.
	AffinityNUMERIC
)

// Affinity returns the SQLite affinity for a column type.
func (c ColumnType) Affinity() Affinity {
	switch c {
	case ColumnTypeText, ColumnTypeDate:
		return AffinityTEXT
	case ColumnTypeNumber:
		return AffinityNUMERIC
	case ColumnTypeBool:
		return AffinityINTEGER
	case ColumnTypeJSONB:
		return AffinityBLOB
	default:
		return AffinityBLOB
	}
}

// CoerceValue applies SQLite-compatible type coercion to a value based on affinity.
// Nil values pass through unchanged.
func CoerceValue(value any, affinity Affinity) any {
	if value == nil {
		return nil
	}
	switch affinity {
	case AffinityTEXT:
		return coerceToText(value)
	case AffinityINTEGER:
		return coerceToInteger(value)
	case AffinityNUMERIC:
		return coerceToNumeric(value)
	case AffinityBLOB:
		return value
	default:
		return value
	}
}

// CoerceData applies type coercion to every value whose key is a column of s.
// Keys that are not columns are passed through unchanged.
func CoerceData(data map[string]any, s *Schema) map[string]any {
	if data == nil {
		return nil
	}
	result := make(map[string]any, len(data))
	for key, value := range data {
		col, ok := s.Column(key)
		if !ok {
			result[key] = value
			continue
		}
		result[key] = CoerceValue(value, col.Type.Affinity())
	}
	return result
}

func coerceToText(value any) any {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// Format without unnecessary decimal places for whole numbers
		if v == math.Trunc(v) && !math.IsInf(v, 0) && !math.IsNaN(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		// Keep as-is for complex types (arrays, objects)
		return value
	}
}

func coerceToInteger(value any) any {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return int64(f)
		}
		// Non-numeric string stays as TEXT
		return v
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	default:
		return value
	}
}

// coerceToNumeric applies NUMERIC affinity rules:
// - Well-formed integer text → int64
// - Well-formed real text → float64
// - Float equal to integer → int64
// - Non-numeric text → stays as string.
func coerceToNumeric(value any) any {
	switch v := value.(type) {
	case float64:
		return wholeToInt(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return wholeToInt(f)
		}
		return v
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	default:
		return value
	}
}

func wholeToInt(f float64) any {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && !math.IsNaN(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
		return int64(f)
	}
	return f
}
