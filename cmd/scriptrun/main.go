package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/script-bridge/bridge"
	_ "github.com/wippyai/script-bridge/corelib"
	"github.com/wippyai/script-bridge/wasmbind"
)

type config struct {
	manifest    string
	eval        string
	reflectors  string
	guests      string
	wasmRoot    string
	logLevel    string
	list        bool
	interactive bool
	scripts     []string
}

func main() {
	var cfg config
	flag.StringVar(&cfg.manifest, "manifest", "", "Path to a bridge manifest (YAML)")
	flag.StringVar(&cfg.eval, "e", "", "Lua expression or chunk to evaluate after the scripts")
	flag.StringVar(&cfg.reflectors, "reflectors", "", "Reflectors to load (comma-separated, default all)")
	flag.StringVar(&cfg.guests, "wasm", "", "WebAssembly guests to load (name=path,...)")
	flag.StringVar(&cfg.wasmRoot, "wasm-root", "", "Import module name of the root script module")
	flag.StringVar(&cfg.logLevel, "log", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.list, "list", false, "List bound modules with WIT signatures and exit")
	flag.BoolVar(&cfg.interactive, "i", false, "Interactive Lua REPL")
	flag.Parse()
	cfg.scripts = flag.Args()

	idle := cfg.manifest == "" && cfg.eval == "" && len(cfg.scripts) == 0 && !cfg.list
	if idle && !cfg.interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Usage: scriptrun [flags] [script.lua ...]")
			fmt.Fprintln(os.Stderr, "       scriptrun -manifest bridge.yaml")
			fmt.Fprintln(os.Stderr, "       scriptrun -list")
			fmt.Fprintln(os.Stderr, "       scriptrun -i  (interactive mode)")
			os.Exit(1)
		}
		cfg.interactive = true
	}

	if err := run(context.Background(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	opts := bridge.DefaultOptions()
	level := zapcore.WarnLevel

	var manifest *bridge.Manifest
	if cfg.manifest != "" {
		m, err := bridge.LoadManifest(cfg.manifest)
		if err != nil {
			return err
		}
		manifest = m
		opts = m.Options()
		level = m.Log
	}
	if cfg.logLevel != "" {
		l, err := zapcore.ParseLevel(cfg.logLevel)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if cfg.interactive && level < zapcore.ErrorLevel {
		// keep log lines out of the TUI
		level = zapcore.ErrorLevel
	}

	logger, err := newLogger(level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	bridge.SetLogger(logger)

	opts.Global = true
	if cfg.reflectors != "" {
		opts.Reflectors = splitList(cfg.reflectors)
	}
	guests, err := parseGuests(cfg.guests)
	if err != nil {
		return err
	}
	if (len(guests) > 0 || cfg.wasmRoot != "") && opts.Wasm == nil {
		opts = opts.WithWasm(wasmbind.DefaultOptions())
	}
	if cfg.wasmRoot != "" {
		opts.Wasm.RootModule = cfg.wasmRoot
	}

	b, err := bridge.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}
	defer b.Close()

	if cfg.list {
		return list(ctx, b)
	}

	if manifest != nil {
		if err := b.RunManifest(ctx, manifest); err != nil {
			return err
		}
	}
	for _, g := range guests {
		if _, err := b.LoadWasm(ctx, g.Name, g.Path); err != nil {
			return fmt.Errorf("load guest %s: %w", g.Name, err)
		}
	}
	for _, path := range cfg.scripts {
		if err := b.RunFile(ctx, path); err != nil {
			return fmt.Errorf("run %s: %w", path, err)
		}
	}

	if cfg.eval != "" {
		vals, err := b.Eval(ctx, cfg.eval)
		if err != nil {
			return err
		}
		if len(vals) > 0 {
			fmt.Println(formatValues(vals))
		}
	}

	if cfg.interactive {
		return runInteractive(ctx, b)
	}
	return nil
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if level > zapcore.DebugLevel {
		zc = zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func list(ctx context.Context, b *bridge.Bridge) error {
	exports, err := b.Describe(ctx)
	module := ""
	for _, e := range exports {
		if e.Module != module {
			module = e.Module
			fmt.Printf("\nmodule %s\n", module)
		}
		suffix := ""
		if e.Virtual {
			suffix = "  (virtual)"
		}
		fmt.Printf("  %s: %s%s\n", e.Name, e.Signature, suffix)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nsome callables have no WIT form: %v\n", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseGuests(s string) ([]bridge.Guest, error) {
	var out []bridge.Guest
	for _, spec := range splitList(s) {
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("guest %q: want name=path", spec)
		}
		out = append(out, bridge.Guest{Name: name, Path: path})
	}
	return out, nil
}

func formatValues(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, "\t")
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
