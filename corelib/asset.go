package corelib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wippyai/script-bridge/script"
)

// Loader reads text assets below a root directory and caches them.
type Loader struct {
	Root string
	Hits int32

	cache map[string]string
}

// NewLoader returns a loader rooted at root.
func NewLoader(root string) *Loader {
	return &Loader{Root: root, cache: make(map[string]string)}
}

func (l *Loader) path(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("asset %q escapes the asset root", name)
	}
	return filepath.Join(l.Root, name), nil
}

// Read returns the contents of asset name, from the cache when present.
func (l *Loader) Read(name string) (string, error) {
	if s, ok := l.cache[name]; ok {
		l.Hits++
		return s, nil
	}
	p, err := l.path(name)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read asset: %w", err)
	}
	if l.cache == nil {
		l.cache = make(map[string]string)
	}
	l.cache[name] = string(b)
	return string(b), nil
}

// Exists reports whether asset name is present on disk.
func (l *Loader) Exists(name string) bool {
	p, err := l.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Cached returns the number of cached assets.
func (l *Loader) Cached() int32 { return int32(len(l.cache)) }

// Evict drops name from the cache and reports whether it was cached.
func (l *Loader) Evict(name string) bool {
	_, ok := l.cache[name]
	delete(l.cache, name)
	return ok
}

func reflectAsset(r *script.Reflection) error {
	loader, err := script.Class[Loader]("Loader").
		Constructor(NewLoader).
		Fields().
		Method("read", (*Loader).Read).
		Method("exists", (*Loader).Exists).
		Method("cached", (*Loader).Cached).
		Method("evict", (*Loader).Evict).
		Build()
	if err != nil {
		return err
	}
	if err := r.AddType(AssetModule, loader); err != nil {
		return err
	}

	ext, err := script.Func("ext", func(name string) string { return filepath.Ext(name) })
	if err != nil {
		return err
	}
	return r.AddFunction(AssetModule, ext)
}
