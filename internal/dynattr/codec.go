package dynattr

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Codec serializes the dynamic attribute mapping stored in the blob column.
//
// Decode of blank text returns a nil map and no error. Malformed text is a
// *DecodeError; there is no partial result.
type Codec interface {
	Name() string
	Encode(attrs map[string]any) (string, error)
	Decode(text string) (map[string]any, error)
}

// DecodeError reports blob text that the codec could not parse.
type DecodeError struct {
	Codec string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("dynattr: %s decode: %v", e.Codec, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// YAMLCodec stores attributes as a YAML mapping. It is the default codec.
type YAMLCodec struct{}

// Name implements Codec.
func (YAMLCodec) Name() string { return "yaml" }

// Encode implements Codec.
func (YAMLCodec) Encode(attrs map[string]any) (string, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	b, err := yaml.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("dynattr: yaml encode: %w", err)
	}
	return string(b), nil
}

// Decode implements Codec. Keys of nested mappings are canonicalized to strings.
func (c YAMLCodec) Decode(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := yaml.Unmarshal([]byte(text), &out); err != nil {
		return nil, &DecodeError{Codec: c.Name(), Err: err}
	}
	if out == nil {
		return nil, nil
	}
	for k, v := range out {
		out[k] = canonicalize(v)
	}
	return out, nil
}

// JSONCodec stores attributes as a JSON object. Numbers decode as float64.
type JSONCodec struct{}

// Name implements Codec.
func (JSONCodec) Name() string { return "json" }

// Encode implements Codec.
func (JSONCodec) Encode(attrs map[string]any) (string, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("dynattr: json encode: %w", err)
	}
	return string(b), nil
}

// Decode implements Codec.
func (c JSONCodec) Decode(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, &DecodeError{Codec: c.Name(), Err: err}
	}
	return out, nil
}

// canonicalize returns v with every nested map converted to map[string]any.
// Maps and slices are copied.
func canonicalize(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		if m, ok := stringKeyed(v); ok && v != nil {
			return m
		}
		return v
	}
}

// stringKeyed converts a map of any key and value type into a fresh
// map[string]any, formatting keys with fmt.Sprint. nil yields an empty map.
// It returns false for anything else.
func stringKeyed(v any) (map[string]any, bool) {
	if v == nil {
		return map[string]any{}, true
	}
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = canonicalize(e)
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	for it := rv.MapRange(); it.Next(); {
		out[fmt.Sprint(it.Key().Interface())] = canonicalize(it.Value().Interface())
	}
	return out, true
}

// LookupCodec returns the codec registered under name; "" selects YAML.
func LookupCodec(name string) (Codec, error) {
	switch name {
	case "", "yaml":
		return YAMLCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("dynattr: unknown codec %q", name)
	}
}
