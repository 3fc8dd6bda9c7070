package bridge

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/luabind"
	"github.com/wippyai/script-bridge/wasmbind"
)

// Manifest is a parsed bridge manifest. Paths are absolute, resolved
// against the manifest's directory.
type Manifest struct {
	Path       string
	Log        zapcore.Level
	Reflectors []string
	Scripts    []string
	Guests     []Guest

	lua  luabind.Options
	wasm *wasmbind.Options
}

// Guest is a WebAssembly module instantiated before the scripts run.
type Guest struct {
	Name string
	Path string
}

type manifestFile struct {
	Log        string       `yaml:"log"`
	Reflectors []string     `yaml:"reflectors"`
	Scripts    []string     `yaml:"scripts"`
	Lua        *luaSection  `yaml:"lua"`
	Wasm       *wasmSection `yaml:"wasm"`
}

type luaSection struct {
	Libs          []string `yaml:"libs"`
	CallStackSize int      `yaml:"call_stack_size"`
	RegistrySize  int      `yaml:"registry_size"`
}

type wasmSection struct {
	RootModule       string         `yaml:"root_module"`
	MemoryLimitPages uint32         `yaml:"memory_limit_pages"`
	Modules          []guestSection `yaml:"modules"`
}

type guestSection struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseConfig, "manifest path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "resolve "+path)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "open manifest")
	}
	defer f.Close()

	m, err := ParseManifest(f, filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	m.Path = abs
	return m, nil
}

// ParseManifest decodes a manifest from r. Relative paths resolve against
// dir. Unknown keys are rejected.
func ParseManifest(r io.Reader, dir string) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw manifestFile
	if err := dec.Decode(&raw); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.InvalidInput(errors.PhaseConfig, "manifest is empty")
		}
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse manifest")
	}
	return raw.toManifest(dir)
}

func (raw *manifestFile) toManifest(dir string) (*Manifest, error) {
	m := &Manifest{
		Log:        zapcore.InfoLevel,
		Reflectors: raw.Reflectors,
		lua:        luabind.DefaultOptions(),
	}
	var errs error
	issue := func(path []string, format string, args ...any) {
		errs = multierr.Append(errs, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path...).
			Detail(format, args...).
			Build())
	}
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	if raw.Log != "" {
		lvl, err := zapcore.ParseLevel(raw.Log)
		if err != nil {
			issue([]string{"log"}, "unknown level %q", raw.Log)
		}
		m.Log = lvl
	}
	for i, r := range raw.Reflectors {
		if r == "" {
			issue([]string{"reflectors", fmt.Sprint(i)}, "name must not be empty")
		}
	}
	for i, s := range raw.Scripts {
		if s == "" {
			issue([]string{"scripts", fmt.Sprint(i)}, "path must not be empty")
			continue
		}
		m.Scripts = append(m.Scripts, resolve(s))
	}

	if raw.Lua != nil {
		if raw.Lua.Libs != nil {
			m.lua.Libs = raw.Lua.Libs
		}
		m.lua.CallStackSize = raw.Lua.CallStackSize
		m.lua.RegistrySize = raw.Lua.RegistrySize
	}

	if raw.Wasm != nil {
		w := wasmbind.DefaultOptions()
		if raw.Wasm.RootModule != "" {
			w.RootModule = raw.Wasm.RootModule
		}
		w.MemoryLimitPages = raw.Wasm.MemoryLimitPages
		m.wasm = &w

		seen := make(map[string]bool)
		for i, g := range raw.Wasm.Modules {
			path := []string{"wasm", "modules", fmt.Sprint(i)}
			switch {
			case g.Name == "":
				issue(path, "name must not be empty")
			case g.Path == "":
				issue(path, "path must not be empty")
			case seen[g.Name]:
				issue(path, "duplicate guest %q", g.Name)
			default:
				seen[g.Name] = true
				m.Guests = append(m.Guests, Guest{Name: g.Name, Path: resolve(g.Path)})
			}
		}
	}

	if errs != nil {
		return nil, errs
	}
	return m, nil
}

// Options returns the bridge configuration the manifest describes.
func (m *Manifest) Options() Options {
	opts := Options{
		Lua:        m.lua,
		Reflectors: m.Reflectors,
	}
	if m.wasm != nil {
		opts = opts.WithWasm(*m.wasm)
	}
	return opts
}
