// Package main is the entry point for the dynattr CLI.
//
// dynattr creates, reads and updates records of a model described in a YAML
// model file. Attributes that are not columns of the model are stored in its
// serialized dynamic attribute column. Configuration is read from CLI flags,
// DYNATTR_* environment variables and a .env file in the data directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/dynattr/internal/config"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "dynattr: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: dynattr [flags] <command> [args]\n\n")
	fmt.Fprintf(out, "commands:\n")
	fmt.Fprintf(out, "  create [name=value ...]   create a record and print its ID\n")
	fmt.Fprintf(out, "  get <id> <name>           print one attribute\n")
	fmt.Fprintf(out, "  set <id> name=value ...   update attributes and save\n")
	fmt.Fprintf(out, "  show <id>                 print every attribute as YAML\n")
	fmt.Fprintf(out, "  list                      print one line per record\n")
	fmt.Fprintf(out, "  watch                     log changes to the table until interrupted\n\n")
	fmt.Fprintf(out, "Values are parsed as YAML scalars: 33 is a number, '\"33\"' a string.\n\n")
	fmt.Fprintf(out, "flags:\n")
	flag.PrintDefaults()
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	configPath := flag.String("config", "", "Model file (default: <data-dir>/models.yaml)")
	modelName := flag.String("model", "", "Model to operate on (default: first model in the file)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("a command is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch t := a.Value.Any().(type) {
			case string:
				if t == "" {
					return slog.Attr{}
				}
			case time.Duration:
				if t == 0 {
					return slog.Attr{}
				}
			case nil:
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	// Environment, then .env, fill in what flags didn't set.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["data-dir"] {
		if v := os.Getenv("DYNATTR_DATA_DIR"); v != "" {
			*dataDir = v
		}
	}
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}
	overrides := []struct {
		flag string
		key  string
		dst  *string
	}{
		{"log-level", "LOG_LEVEL", logLevel},
		{"config", "CONFIG", configPath},
		{"model", "MODEL", modelName},
	}
	for _, o := range overrides {
		if set[o.flag] {
			continue
		}
		if v := os.Getenv("DYNATTR_" + o.key); v != "" {
			*o.dst = v
		} else if v := env[o.key]; v != "" {
			*o.dst = v
		}
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if *configPath == "" {
		*configPath = filepath.Join(*dataDir, "models.yaml")
	}
	file, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load model file: %w", err)
	}
	mc, err := file.Lookup(*modelName)
	if err != nil {
		return err
	}
	bound, store, err := mc.Open(*dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", mc.Name, err)
	}
	slog.DebugContext(ctx, "model opened", "model", mc.Name, "path", bound.Path, "records", store.Len())

	c := &cli{store: store, out: os.Stdout, logger: logger}
	return c.run(ctx, flag.Args())
}

func printVersion() {
	version, goVersion, revision := "unknown", "unknown", "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		version = info.Main.Version
		if version == "" || version == "(devel)" {
			version = "dev"
		}
		goVersion = info.GoVersion
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				revision = setting.Value
			}
		}
	}
	fmt.Printf("dynattr %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
}

// loadDotEnv reads KEY=value lines from dataDir/.env. A missing file is not an
// error.
func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}
	for line := range strings.SplitSeq(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}
