package resource

// Handle is an opaque reference to a native object in a table.
// Handle 0 is reserved and always invalid. The low 24 bits select the slot,
// the high 8 bits carry the slot generation so stale handles never alias a
// reused slot.
type Handle uint32

const (
	slotBits = 24
	slotMask = 1<<slotBits - 1
)

func makeHandle(slot int, gen uint8) Handle {
	return Handle(uint32(gen)<<slotBits | uint32(slot+1))
}

func (h Handle) slot() int {
	return int(uint32(h)&slotMask) - 1
}

func (h Handle) gen() uint8 {
	return uint8(uint32(h) >> slotBits)
}

// EventType identifies a lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
	EventPinned
	EventUnpinned
	EventDeferred
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventReleased:
		return "released"
	case EventPinned:
		return "pinned"
	case EventUnpinned:
		return "unpinned"
	case EventDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Event represents a native object lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID uint32
	Type   EventType
	Owned  bool
}

// Observer receives notifications about lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnResourceEvent calls f(e).
func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Entry describes one released object handed to a Finalizer.
type Entry struct {
	Value  any
	Handle Handle
	TypeID uint32
	Owned  bool
}

// Finalizer runs when an entry leaves the table. Only owned entries should
// have their native destructor run.
type Finalizer func(Entry)

// Dropper is optionally implemented by owned values that need cleanup and
// have no registered destructor.
type Dropper interface {
	Drop()
}
