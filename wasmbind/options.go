package wasmbind

import (
	"github.com/tetratelabs/wazero"

	"github.com/wippyai/script-bridge/errors"
)

// Options configures a Runtime.
type Options struct {
	// RootModule names the host module that receives functions and types
	// of the root script module. Nested modules use their dotted path.
	RootModule string

	// MemoryLimitPages caps guest memory in 64KB pages.
	// 0 keeps the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// CloseOnContextDone makes guest code stop when the calling context is
	// cancelled or times out.
	CloseOnContextDone bool
}

// DefaultOptions returns the default runtime configuration.
func DefaultOptions() Options {
	return Options{
		RootModule:         "env",
		CloseOnContextDone: true,
	}
}

func (o Options) validate() error {
	if o.RootModule == "" {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("root_module").
			Detail("root module name is required").
			Build()
	}
	if o.MemoryLimitPages > 65536 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("memory_limit_pages").
			Value(o.MemoryLimitPages).
			Detail("memory limit exceeds 65536 pages").
			Build()
	}
	return nil
}

func (o Options) runtimeConfig() wazero.RuntimeConfig {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(o.CloseOnContextDone)
	if o.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(o.MemoryLimitPages)
	}
	return cfg
}
