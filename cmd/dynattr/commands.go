package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/dynattr/internal/dynattr"
	"github.com/maruel/dynattr/internal/model"
	"github.com/maruel/ksid"
	"gopkg.in/yaml.v3"
)

type cli struct {
	store  *model.Store
	out    io.Writer
	logger *slog.Logger
	// onReload is called after watch reloaded the table.
	onReload func(records int)
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("a command is required")
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "create":
		return c.create(args)
	case "get":
		if len(args) != 2 {
			return errors.New("usage: get <id> <name>")
		}
		return c.get(args[0], args[1])
	case "set":
		if len(args) < 2 {
			return errors.New("usage: set <id> name=value ...")
		}
		return c.set(args[0], args[1:])
	case "show":
		if len(args) != 1 {
			return errors.New("usage: show <id>")
		}
		return c.show(args[0])
	case "list":
		if len(args) != 0 {
			return fmt.Errorf("unknown arguments: %v", args)
		}
		return c.list()
	case "watch":
		if len(args) != 0 {
			return fmt.Errorf("unknown arguments: %v", args)
		}
		return c.watch(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) create(args []string) error {
	attrs, err := parseAssignments(args)
	if err != nil {
		return err
	}
	r, err := c.store.Create(attrs)
	if err != nil {
		return err
	}
	c.logger.Info("record created", "model", c.store.Model().Name(), "id", r.ID())
	_, err = fmt.Fprintln(c.out, r.ID())
	return err
}

func (c *cli) get(id, name string) error {
	r, err := c.find(id)
	if err != nil {
		return err
	}
	v, err := r.Get(name)
	if err != nil {
		return err
	}
	s, err := formatValue(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, s)
	return err
}

// set assigns without protection: naming an attribute on the command line is
// an explicit write.
func (c *cli) set(id string, args []string) error {
	attrs, err := parseAssignments(args)
	if err != nil {
		return err
	}
	r, err := c.find(id)
	if err != nil {
		return err
	}
	if err := r.AssignAttributes(attrs, false); err != nil {
		return err
	}
	if err := c.store.Save(r); err != nil {
		return err
	}
	c.logger.Info("record updated", "model", c.store.Model().Name(), "id", r.ID(), "attributes", len(attrs))
	return nil
}

func (c *cli) show(id string) error {
	r, err := c.find(id)
	if err != nil {
		return err
	}
	v, err := view(r)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = c.out.Write(b)
	return err
}

func (c *cli) list() error {
	for r := range c.store.All() {
		v, err := view(r)
		if err != nil {
			return fmt.Errorf("%s: %w", r.ID(), err)
		}
		delete(v, r.Model().PrimaryKey())
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", r.ID(), err)
		}
		if _, err := fmt.Fprintf(c.out, "%s\t%s\n", r.ID(), b); err != nil {
			return err
		}
	}
	return nil
}

// watch reloads the table whenever its file changes, until ctx is done.
func (c *cli) watch(ctx context.Context) error {
	path := filepath.Clean(c.store.Path())
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	// Updates replace the file by rename, so watch the directory.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	c.logger.InfoContext(ctx, "watching", "path", path, "records", c.store.Len())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if err := c.store.Reload(); err != nil {
				c.logger.WarnContext(ctx, "failed to reload table", "path", path, "err", err)
				continue
			}
			n := c.store.Len()
			c.logger.InfoContext(ctx, "table reloaded", "path", path, "records", n)
			if c.onReload != nil {
				c.onReload(n)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.WarnContext(ctx, "error watching table", "err", err)
		}
	}
}

func (c *cli) find(s string) (*model.Record, error) {
	id, err := ksid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return c.store.Find(id)
}

// parseAssignments turns name=value arguments into attributes. Values are
// YAML scalars or flow collections; an empty value is nil.
func parseAssignments(args []string) (map[string]any, error) {
	attrs := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", arg)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		attrs[name] = v
	}
	return attrs, nil
}

// view returns the record's static columns, minus the blob column, overlaid
// with its dynamic attributes including pending writes.
func view(r *model.Record) (map[string]any, error) {
	m := r.Model()
	out := map[string]any{}
	a, dynamic := dynattr.For(r)
	for _, name := range m.ColumnNames() {
		if dynamic && name == a.Config().ColumnName() {
			continue
		}
		v, err := r.ReadAttribute(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	out[m.PrimaryKey()] = r.ID().String()
	if dynamic {
		merged, err := a.Merged()
		if err != nil {
			return nil, err
		}
		maps.Copy(out, merged)
	}
	return out, nil
}

func formatValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}
