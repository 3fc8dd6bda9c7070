package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed = errors.New("resource table closed")
	ErrFull   = errors.New("resource table full")
)

type entry struct {
	value   any
	typeID  uint32
	pins    uint32
	gen     uint8
	owned   bool
	pending bool
	valid   bool
}

// Table maps handles to native objects with ownership and pin tracking.
//
// A pinned entry is in use by a running native call; releasing it only marks
// it pending, and the final Unpin completes the release. The finalizer is
// always invoked outside the table lock.
type Table struct {
	finalize  Finalizer
	entries   []entry
	freeList  []int
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty table. finalize may be nil.
func NewTable(finalize Finalizer) *Table {
	return &Table{
		finalize: finalize,
		entries:  make([]entry, 0, 64),
		freeList: make([]int, 0, 16),
	}
}

// Insert stores value and returns its handle. owned marks objects whose
// destructor the table's finalizer must run on release.
func (t *Table) Insert(typeID uint32, value any, owned bool) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	var slot int
	if n := len(t.freeList); n > 0 {
		slot = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		if len(t.entries) >= slotMask {
			t.mu.Unlock()
			return 0, ErrFull
		}
		t.entries = append(t.entries, entry{})
		slot = len(t.entries) - 1
	}

	e := &t.entries[slot]
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	e.value = value
	e.typeID = typeID
	e.owned = owned
	e.valid = true
	h := makeHandle(slot, e.gen)
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, TypeID: typeID, Value: value, Owned: owned})
	return h, nil
}

// lookup returns the live entry for h. Caller holds t.mu.
func (t *Table) lookup(h Handle) *entry {
	if h == 0 {
		return nil
	}
	slot := h.slot()
	if slot < 0 || slot >= len(t.entries) {
		return nil
	}
	e := &t.entries[slot]
	if !e.valid || e.gen != h.gen() {
		return nil
	}
	return e
}

// Get retrieves a value by handle. Entries pending release are still
// returned while pinned.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.lookup(h)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// GetTyped retrieves a value only if it was inserted with typeID.
func (t *Table) GetTyped(h Handle, typeID uint32) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.lookup(h)
	if e == nil || e.typeID != typeID {
		return nil, false
	}
	return e.value, true
}

// TypeID returns the type tag of h.
func (t *Table) TypeID(h Handle) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.lookup(h)
	if e == nil {
		return 0, false
	}
	return e.typeID, true
}

// Owned reports whether h refers to a live owned entry.
func (t *Table) Owned(h Handle) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.lookup(h)
	return e != nil && e.owned
}

// Disown clears the owned flag, transferring destruction responsibility back
// to native code. It returns the value.
func (t *Table) Disown(h Handle) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.lookup(h)
	if e == nil {
		return nil, false
	}
	e.owned = false
	return e.value, true
}

// Pin marks h as in use by a native call.
func (t *Table) Pin(h Handle) bool {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil || e.pending {
		t.mu.Unlock()
		return false
	}
	e.pins++
	ev := Event{Type: EventPinned, Handle: h, TypeID: e.typeID, Value: e.value, Owned: e.owned}
	t.mu.Unlock()

	t.notify(ev)
	return true
}

// Unpin undoes one Pin. When the last pin drops on an entry with a pending
// release, the release completes here.
func (t *Table) Unpin(h Handle) {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil || e.pins == 0 {
		t.mu.Unlock()
		return
	}
	e.pins--
	ev := Event{Type: EventUnpinned, Handle: h, TypeID: e.typeID, Value: e.value, Owned: e.owned}
	var released *Entry
	if e.pins == 0 && e.pending {
		r := t.removeLocked(h, e)
		released = &r
	}
	t.mu.Unlock()

	t.notify(ev)
	if released != nil {
		t.finish(*released)
	}
}

// Release removes h. If h is pinned the release is deferred until the last
// Unpin and Release returns false. It returns false for unknown handles.
func (t *Table) Release(h Handle) bool {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil || e.pending {
		t.mu.Unlock()
		return false
	}
	if e.pins > 0 {
		e.pending = true
		ev := Event{Type: EventDeferred, Handle: h, TypeID: e.typeID, Value: e.value, Owned: e.owned}
		t.mu.Unlock()
		t.notify(ev)
		return false
	}
	r := t.removeLocked(h, e)
	t.mu.Unlock()

	t.finish(r)
	return true
}

func (t *Table) removeLocked(h Handle, e *entry) Entry {
	r := Entry{Value: e.value, Handle: h, TypeID: e.typeID, Owned: e.owned}
	e.value = nil
	e.valid = false
	e.pending = false
	e.pins = 0
	e.owned = false
	t.freeList = append(t.freeList, h.slot())
	return r
}

func (t *Table) finish(r Entry) {
	if t.finalize != nil {
		t.finalize(r)
	} else if d, ok := r.Value.(Dropper); ok && r.Owned {
		d.Drop()
	}
	t.notify(Event{Type: EventReleased, Handle: r.Handle, TypeID: r.TypeID, Value: r.Value, Owned: r.Owned})
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live entries, pending ones included.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for i := range t.entries {
		if t.entries[i].valid {
			n++
		}
	}
	return n
}

// Each iterates over live entries until fn returns false.
func (t *Table) Each(fn func(Handle, uint32, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.entries {
		e := &t.entries[i]
		if e.valid && !fn(makeHandle(i, e.gen), e.typeID, e.value) {
			return
		}
	}
}

// Close releases every entry regardless of pins and stops accepting
// inserts. Entries are finalized in insertion-slot order.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var released []Entry
	for i := range t.entries {
		e := &t.entries[i]
		if e.valid {
			released = append(released, t.removeLocked(makeHandle(i, e.gen), e))
		}
	}
	t.mu.Unlock()

	for _, r := range released {
		t.finish(r)
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
