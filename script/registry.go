package script

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/typeid"
)

// Registry maps type IDs to descriptors. It is open while reflectors load and
// read-only after Seal.
type Registry struct {
	byID   map[typeid.ID]uint32
	types  []*TypeData // index = dense index - 1
	mu     sync.RWMutex
	sealed bool
}

// NewRegistry creates an empty, open registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[typeid.ID]uint32)}
}

// Register adds td under td.ID. IDs that differ only in qualifiers register
// independently.
func (r *Registry) Register(td *TypeData) error {
	if td == nil || td.Name == "" {
		return errors.InvalidInput(errors.PhaseRegister, "type descriptor requires a name")
	}
	if td.ID.IsVoid() {
		return errors.InvalidInput(errors.PhaseRegister, "cannot register void type "+td.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return errors.Sealed("type registry")
	}
	if _, exists := r.byID[td.ID]; exists {
		return errors.DuplicateRegistration(td.ID.String(), td.Name)
	}

	r.types = append(r.types, td)
	r.byID[td.ID] = uint32(len(r.types))

	Logger().Debug("registered type",
		zap.String("name", td.Name),
		zap.String("id", td.ID.String()),
		zap.Int("index", len(r.types)))
	return nil
}

// Get returns the descriptor for id. A miss is not an error.
func (r *Registry) Get(id typeid.ID) (*TypeData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.types[idx-1], true
}

// Index returns the dense, 1-based index of id, used as a handle type tag.
func (r *Registry) Index(id typeid.ID) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	return idx, ok
}

// ByIndex returns the descriptor at a dense index.
func (r *Registry) ByIndex(idx uint32) (*TypeData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx == 0 || int(idx) > len(r.types) {
		return nil, false
	}
	return r.types[idx-1], true
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Seal ends the load phase. Register fails afterwards.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
