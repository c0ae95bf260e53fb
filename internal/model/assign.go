// Mass assignment and multi-parameter ("name(1i)") attribute assembly.

package model

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// multiparameterKey matches "born_on(3i)": attribute, position and type suffix.
var multiparameterKey = regexp.MustCompile(`^([^()]+)\(([1-9][0-9]*)([ifs]?)\)$`)

// AssignAttributes sets every key of attrs through [Record.Set].
//
// When guard is true, protected keys are dropped and logged. Keys are applied
// in sorted order. Keys containing "(" are composite parts and are assembled
// after all simple keys. Assignment never checks whether a name exists; the
// attribute resolution decides.
func (r *Record) AssignAttributes(attrs map[string]any, guard bool) error {
	if len(attrs) == 0 {
		return nil
	}
	if guard {
		attrs = r.removeProtected(attrs)
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var composite []string
	for _, k := range keys {
		if strings.Contains(k, "(") {
			composite = append(composite, k)
			continue
		}
		if _, err := r.Set(k, attrs[k]); err != nil {
			return err
		}
	}
	if len(composite) == 0 {
		return nil
	}
	return r.assignMultiparameter(composite, attrs)
}

func (r *Record) removeProtected(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	var dropped []string
	for k, v := range attrs {
		base, _, _ := strings.Cut(k, "(")
		if r.model.isProtected(base) {
			dropped = append(dropped, k)
			continue
		}
		out[k] = v
	}
	if len(dropped) != 0 {
		slices.Sort(dropped)
		r.model.logger.Warn("can't mass-assign protected attributes", "model", r.model.name, "attributes", dropped)
	}
	return out
}

// assignMultiparameter groups parts by attribute and assembles each group into
// a time.Time: positions 1..6 are year, month, day, hour, minute, second.
func (r *Record) assignMultiparameter(keys []string, attrs map[string]any) error {
	groups := map[string]map[int]any{}
	var names []string
	var errs []error
	for _, k := range keys {
		m := multiparameterKey.FindStringSubmatch(k)
		if m == nil {
			errs = append(errs, &MultiparameterError{Attribute: k, Err: errors.New("malformed key")})
			continue
		}
		pos, _ := strconv.Atoi(m[2])
		if pos > 6 {
			errs = append(errs, &MultiparameterError{Attribute: m[1], Err: fmt.Errorf("position %d out of range", pos)})
			continue
		}
		if groups[m[1]] == nil {
			groups[m[1]] = map[int]any{}
			names = append(names, m[1])
		}
		groups[m[1]][pos] = attrs[k]
	}
	slices.Sort(names)
	for _, name := range names {
		v, err := assembleTime(groups[name])
		if err != nil {
			errs = append(errs, &MultiparameterError{Attribute: name, Err: err})
			continue
		}
		if _, err := r.Set(name, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// assembleTime returns nil when every part is blank.
func assembleTime(parts map[int]any) (any, error) {
	var vals [7]int
	blank := true
	for pos := 1; pos <= 6; pos++ {
		p, ok := parts[pos]
		if !ok || isBlank(p) {
			continue
		}
		blank = false
		n, err := toInt(p)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", pos, err)
		}
		vals[pos] = n
	}
	if blank {
		return nil, nil
	}
	if vals[2] == 0 {
		vals[2] = 1
	}
	if vals[3] == 0 {
		vals[3] = 1
	}
	return time.Date(vals[1], time.Month(vals[2]), vals[3], vals[4], vals[5], vals[6], 0, time.UTC), nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("unsupported value %T", v)
	}
}
