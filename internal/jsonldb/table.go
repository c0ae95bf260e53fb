package jsonldb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/maruel/ksid"
)

var (
	errIDRequired    = errors.New("row ID is required")
	errDuplicateID   = errors.New("row ID already exists")
	errRowNotFound   = errors.New("row not found")
	errMissingHeader = errors.New("missing schema header")
)

// Row is implemented by every type stored in a [Table].
type Row[T any] interface {
	Clone() T
	GetID() ksid.ID
	Validate() error
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path string
	mu   sync.RWMutex

	header schemaHeader
	rows   []T
	byID   map[ksid.ID]int
}

// NewTable creates a new Table and loads all data from the file.
//
// columns is written as the schema header when the file does not exist yet.
// When the file exists, its header wins and columns is ignored.
func NewTable[T Row[T]](path string, columns []Column) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	table := &Table[T]{
		path:   path,
		header: schemaHeader{Version: currentVersion, Columns: columns},
	}
	if err := table.header.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", path, err)
	}
	if err := table.Reload(); err != nil {
		return nil, err
	}
	return table, nil
}

// Path returns the file backing the table.
func (t *Table[T]) Path() string {
	return t.path
}

// Columns returns the columns recorded in the schema header.
func (t *Table[T]) Columns() []Column {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Column, len(t.header.Columns))
	copy(out, t.header.Columns)
	return out
}

// Reload discards the in-memory rows and reads the file again.
func (t *Table[T]) Reload() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rows = []T{}
			t.byID = map[ksid.ID]int{}
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []T
	byID := map[ksid.ID]int{}
	headerSeen := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !headerSeen {
			var h schemaHeader
			if err := json.Unmarshal(line, &h); err != nil {
				return fmt.Errorf("failed to unmarshal schema header in %s: %w", t.path, err)
			}
			if err := h.Validate(); err != nil {
				return fmt.Errorf("invalid schema header in %s: %w", t.path, err)
			}
			t.header = h
			headerSeen = true
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		byID[row.GetID()] = len(rows)
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	if !headerSeen && len(rows) == 0 {
		// Empty file, treat as new.
		t.rows = []T{}
		t.byID = byID
		return nil
	}
	if !headerSeen {
		return fmt.Errorf("%s: %w", t.path, errMissingHeader)
	}
	t.rows = rows
	t.byID = byID
	return nil
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID, or the zero value if not found.
func (t *Table[T]) Get(id ksid.ID) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		var zero T
		return zero
	}
	return t.rows[i].Clone()
}

// First returns a clone of the first row, or false if empty.
func (t *Table[T]) First() (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.rows) == 0 {
		var zero T
		return zero, false
	}
	return t.rows[0].Clone(), true
}

// Last returns a clone of the last row, or false if empty.
func (t *Table[T]) Last() (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.rows) == 0 {
		var zero T
		return zero, false
	}
	return t.rows[len(t.rows)-1].Clone(), true
}

// All returns an iterator over clones of all rows.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append adds a new row to the table and persists it.
func (t *Table[T]) Append(row T) error {
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid row: %w", err)
	}
	id := row.GetID()
	if id.IsZero() {
		return errIDRequired
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[id]; ok {
		return fmt.Errorf("%s: %w", id, errDuplicateID)
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if st, err := f.Stat(); err != nil {
		return fmt.Errorf("failed to stat table file: %w", err)
	} else if st.Size() == 0 {
		h, err := json.Marshal(&t.header)
		if err != nil {
			return fmt.Errorf("failed to marshal schema header: %w", err)
		}
		if _, err := f.Write(append(h, '\n')); err != nil {
			return fmt.Errorf("failed to write schema header: %w", err)
		}
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}

	t.byID[id] = len(t.rows)
	t.rows = append(t.rows, row.Clone())
	return nil
}

// Update replaces the row with the same ID and rewrites the file.
func (t *Table[T]) Update(row T) error {
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid row: %w", err)
	}
	id := row.GetID()

	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, errRowNotFound)
	}
	rows := make([]T, len(t.rows))
	copy(rows, t.rows)
	rows[i] = row.Clone()
	if err := t.writeLocked(rows); err != nil {
		return err
	}
	t.rows = rows
	return nil
}

// writeLocked rewrites the whole file through a temporary file and a rename.
func (t *Table[T]) writeLocked(rows []T) error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	err = enc.Encode(&t.header)
	for i := 0; err == nil && i < len(rows); i++ {
		err = enc.Encode(rows[i])
	}
	if err == nil {
		err = w.Flush()
	}
	if errClose := f.Close(); err == nil {
		err = errClose
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write table file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}
