package dynattr

import (
	"fmt"
	"maps"
	"slices"

	"github.com/maruel/dynattr/internal/model"
)

// Attributes resolves the attributes of one record. It is the model.Binding
// installed by Declare and wraps the record's static read/write pair.
//
// Writes to dynamic names are kept in a pending buffer until Flush; reads see
// the buffer first and then the decoded blob column.
type Attributes struct {
	cfg *Config
	rec *model.Record

	pending map[string]any
	// replace is set when the whole blob was assigned; Flush then overwrites
	// instead of merging.
	replace bool
}

// For returns the dynamic attributes of rec, or false when its model has no
// declaration.
func For(rec *model.Record) (*Attributes, bool) {
	a, ok := rec.Binding().(*Attributes)
	return a, ok
}

// Config returns the declaration the record resolves against.
func (a *Attributes) Config() *Config {
	return a.cfg
}

// Get implements model.Binding.
//
// Static and rejected names go to the static read path, which reports unknown
// names with *model.UnknownAttributeError.
func (a *Attributes) Get(name string) (any, error) {
	if !a.cfg.Classify(name).Dynamic() {
		return a.rec.ReadAttribute(name)
	}
	if v, ok := a.pending[name]; ok {
		return v, nil
	}
	if a.replace {
		return nil, nil
	}
	stored, err := a.Decoded()
	if err != nil {
		return nil, err
	}
	return stored[name], nil
}

// Set implements model.Binding. Dynamic values are buffered and returned
// unchanged.
//
// Assigning a map to the blob column replaces the whole dynamic set at the
// next flush; any other non-nil value is rejected with ErrBlobAssignment.
func (a *Attributes) Set(name string, value any) (any, error) {
	kind := a.cfg.Classify(name)
	if kind.Dynamic() {
		if a.pending == nil {
			a.pending = map[string]any{}
		}
		a.pending[name] = value
		return value, nil
	}
	if name == a.cfg.column {
		if err := a.replaceAll(value); err != nil {
			return nil, err
		}
		return value, nil
	}
	if err := a.rec.WriteAttribute(name, value); err != nil {
		return nil, err
	}
	return value, nil
}

// replaceAll buffers value as the whole dynamic set. value must be a map,
// with keys of any kind, or nil to clear every dynamic attribute.
func (a *Attributes) replaceAll(value any) error {
	m, ok := stringKeyed(value)
	if !ok {
		return fmt.Errorf("%s.%s: %w, got %T", a.cfg.model.Name(), a.cfg.column, ErrBlobAssignment, value)
	}
	if !a.cfg.Open() {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if a.cfg.Classify(k) != DynamicDeclared {
				return &model.UnknownAttributeError{Model: a.cfg.model.Name(), Attribute: k}
			}
		}
	}
	a.pending = m
	a.replace = true
	return nil
}

// Decoded returns the mapping currently stored in the blob column, ignoring
// pending writes. It decodes on every call; nil means the column is empty.
func (a *Attributes) Decoded() (map[string]any, error) {
	raw, err := a.rec.ReadAttribute(a.cfg.column)
	if err != nil {
		return nil, err
	}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return a.cfg.codec.Decode(v)
	default:
		return nil, &DecodeError{Codec: a.cfg.codec.Name(), Err: fmt.Errorf("column %q holds %T, want text", a.cfg.column, raw)}
	}
}

// Pending returns a copy of the writes buffered since the last flush.
func (a *Attributes) Pending() map[string]any {
	return maps.Clone(a.pending)
}

// Dirty reports whether a flush would write anything.
func (a *Attributes) Dirty() bool {
	return len(a.pending) != 0 || a.replace
}

// Merged returns what the blob column will hold after the next flush.
func (a *Attributes) Merged() (map[string]any, error) {
	out := map[string]any{}
	if !a.replace {
		stored, err := a.Decoded()
		if err != nil {
			return nil, err
		}
		maps.Copy(out, stored)
	}
	for k, v := range a.pending {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Flush writes pending attributes into the blob column through the static
// write path and clears the buffer. It returns false when there was nothing
// to write.
//
// Pending values are merged over the stored mapping; a pending nil removes
// the key. After a whole-blob assignment the stored mapping is discarded.
func (a *Attributes) Flush() (bool, error) {
	if !a.Dirty() {
		return false, nil
	}
	merged, err := a.Merged()
	if err != nil {
		return false, err
	}
	var value any
	if len(merged) != 0 {
		text, err := a.cfg.codec.Encode(merged)
		if err != nil {
			return false, err
		}
		value = text
	}
	if err := a.rec.WriteAttribute(a.cfg.column, value); err != nil {
		return false, err
	}
	a.pending = map[string]any{}
	a.replace = false
	return true, nil
}

// BeforeSave implements model.Binding.
func (a *Attributes) BeforeSave() error {
	flushed, err := a.Flush()
	if err != nil {
		return err
	}
	if flushed {
		m := a.cfg.model
		m.Logger().Debug("dynamic attributes flushed", "model", m.Name(), "column", a.cfg.column)
	}
	return nil
}
