// Loads the YAML file describing models, their columns and dynamic attributes.

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/maruel/dynattr/internal/dynattr"
	"github.com/maruel/dynattr/internal/jsonldb"
	"github.com/maruel/dynattr/internal/model"
	"github.com/maruel/ksid"
	"gopkg.in/yaml.v3"
)

// currentVersion is the only supported model file version.
const currentVersion = 1

// ErrModelNotFound is returned by File.Lookup for an unknown model name.
var ErrModelNotFound = errors.New("model not found")

// File is the model definition file.
type File struct {
	Version int           `yaml:"version"`
	Models  []ModelConfig `yaml:"models"`
}

// ModelConfig defines one model.
type ModelConfig struct {
	Name string `yaml:"name"`
	// Table is the JSONL file name under the data directory. Defaults to
	// "<name>.jsonl".
	Table   string           `yaml:"table,omitempty"`
	Columns []jsonldb.Column `yaml:"columns"`
	// Dynamic enables dynamic attributes. nil disables them.
	Dynamic    *DynamicConfig `yaml:"dynamic,omitempty"`
	Protected  []string       `yaml:"protected,omitempty"`
	Accessible []string       `yaml:"accessible,omitempty"`
}

// DynamicConfig mirrors dynattr.Declare's arguments.
type DynamicConfig struct {
	Column string   `yaml:"column,omitempty"` // defaults to dynattr.DefaultColumn
	Fields []string `yaml:"fields,omitempty"` // empty means open
	Codec  string   `yaml:"codec,omitempty"`  // "yaml" or "json"
}

// Bound is a model built from its configuration.
type Bound struct {
	Model *model.Model
	// Dynamic is nil when the model has no dynamic attributes.
	Dynamic *dynattr.Config
	// Path is the table file.
	Path string
}

// user is the record type of the default model.
type user struct {
	ID                ksid.ID `json:"id"`
	Name              string  `json:"name" jsonschema:"description=Display name"`
	DynamicAttributes string  `json:"dynamic_attributes" jsonschema:"description=Serialized dynamic attributes"`
}

// Default returns the configuration written when no file exists: a single
// "users" model, with columns reflected from the user type and open dynamic
// attributes.
func Default() (*File, error) {
	s, err := jsonldb.SchemaFromType[user]()
	if err != nil {
		return nil, fmt.Errorf("failed to build default model: %w", err)
	}
	return &File{
		Version: currentVersion,
		Models: []ModelConfig{
			{
				Name:    "users",
				Columns: s.Columns,
				Dynamic: &DynamicConfig{},
			},
		},
	}, nil
}

// Load reads the model file at path. Creates the file with Default if it
// doesn't exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-specified config path
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		f, err := Default()
		if err != nil {
			return nil, err
		}
		if err := f.Save(path); err != nil {
			return nil, err
		}
		return f, nil
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a model file.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model file: %w", err)
	}
	return &f, nil
}

// Save writes the file as YAML.
func (f *File) Save(path string) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Validate checks the version and every model.
func (f *File) Validate() error {
	if f.Version != currentVersion {
		return fmt.Errorf("unsupported version: %d", f.Version)
	}
	if len(f.Models) == 0 {
		return errors.New("at least one model is required")
	}
	seen := map[string]struct{}{}
	for i := range f.Models {
		mc := &f.Models[i]
		if mc.Name == "" {
			return fmt.Errorf("model %d: name is required", i)
		}
		if _, ok := seen[mc.Name]; ok {
			return fmt.Errorf("model %q: duplicate name", mc.Name)
		}
		seen[mc.Name] = struct{}{}
		if err := mc.Validate(); err != nil {
			return fmt.Errorf("model %q: %w", mc.Name, err)
		}
	}
	return nil
}

// Validate checks the columns and the codec name. Checks that need the built
// model, such as the blob column existing, are left to Build.
func (mc *ModelConfig) Validate() error {
	s := jsonldb.Schema{Columns: mc.Columns}
	if err := s.Validate(); err != nil {
		return err
	}
	if s.PrimaryKey() == "" {
		return errors.New("a primary key column is required")
	}
	if mc.Table != "" && filepath.Base(mc.Table) != mc.Table {
		return fmt.Errorf("table %q must be a file name", mc.Table)
	}
	if mc.Dynamic != nil {
		if _, err := dynattr.LookupCodec(mc.Dynamic.Codec); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the named model. An empty name selects the first model.
func (f *File) Lookup(name string) (*ModelConfig, error) {
	if name == "" && len(f.Models) != 0 {
		return &f.Models[0], nil
	}
	i := slices.IndexFunc(f.Models, func(mc ModelConfig) bool { return mc.Name == name })
	if i < 0 {
		return nil, fmt.Errorf("%q: %w", name, ErrModelNotFound)
	}
	return &f.Models[i], nil
}

// TableFile returns the table file name.
func (mc *ModelConfig) TableFile() string {
	if mc.Table != "" {
		return mc.Table
	}
	return mc.Name + ".jsonl"
}

// Build defines the model and declares its dynamic attributes. The table lives
// in dataDir.
func (mc *ModelConfig) Build(dataDir string, logger *slog.Logger) (*Bound, error) {
	var opts []model.Option
	if logger != nil {
		opts = append(opts, model.WithLogger(logger))
	}
	if len(mc.Protected) != 0 {
		opts = append(opts, model.WithProtected(mc.Protected...))
	}
	if len(mc.Accessible) != 0 {
		opts = append(opts, model.WithAccessible(mc.Accessible...))
	}
	m, err := model.Define(mc.Name, jsonldb.Schema{Columns: mc.Columns}, opts...)
	if err != nil {
		return nil, err
	}
	b := &Bound{Model: m, Path: filepath.Join(dataDir, mc.TableFile())}
	if mc.Dynamic == nil {
		return b, nil
	}
	codec, err := dynattr.LookupCodec(mc.Dynamic.Codec)
	if err != nil {
		return nil, err
	}
	dopts := []dynattr.Option{dynattr.WithCodec(codec)}
	if mc.Dynamic.Column != "" {
		dopts = append(dopts, dynattr.WithColumn(mc.Dynamic.Column))
	}
	if b.Dynamic, err = dynattr.Declare(m, mc.Dynamic.Fields, dopts...); err != nil {
		return nil, err
	}
	return b, nil
}

// Open builds the model and opens its store.
func (mc *ModelConfig) Open(dataDir string, logger *slog.Logger) (*Bound, *model.Store, error) {
	b, err := mc.Build(dataDir, logger)
	if err != nil {
		return nil, nil, err
	}
	s, err := model.OpenStore(b.Model, b.Path)
	if err != nil {
		return nil, nil, err
	}
	return b, s, nil
}
