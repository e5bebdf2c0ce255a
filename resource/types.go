package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
//
// The low 24 bits hold the slot index plus one; the high 8 bits hold the
// slot generation, so a handle that outlived its entry never resolves to
// the value that later reuses the slot.
type Handle uint32

const (
	indexBits     = 24
	indexMask     = 1<<indexBits - 1
	maxSlots      = indexMask
	generationMax = 1<<(32-indexBits) - 1
)

func makeHandle(index uint32, generation uint8) Handle {
	return Handle(uint32(generation)<<indexBits | (index + 1))
}

func (h Handle) slot() (index uint32, generation uint8, ok bool) {
	low := uint32(h) & indexMask
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint8(uint32(h) >> indexBits), true
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Parent Handle
	TypeID uint32
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage mechanism for resources.
type Backend interface {
	// Create stores a root value and returns a handle.
	Create(typeID uint32, value any) (Handle, error)

	// CreateChild stores a value whose lifetime depends on parent.
	// The parent cannot be deleted while the child is live.
	CreateChild(typeID uint32, value any, parent Handle) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Delete removes an entry and returns its value.
	// Fails with ErrNotFound for stale or unknown handles and with
	// ErrHasChildren while children are registered.
	Delete(handle Handle) (any, error)

	// Close releases all resources held by the backend.
	Close() error
}

// Table manages resources with type information and observer support.
type Table interface {
	// Insert adds a root value and returns its handle.
	Insert(typeID uint32, value any) (Handle, error)

	// InsertChild adds a value tracked as dependent on parent.
	InsertChild(typeID uint32, value any, parent Handle) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// GetTyped retrieves a value only if it matches the expected type.
	GetTyped(handle Handle, typeID uint32) (any, bool)

	// Delete drops a resource and returns its value.
	Delete(handle Handle) (any, error)

	// Subscribe adds an observer for lifecycle events.
	Subscribe(Observer)

	// Unsubscribe removes an observer.
	Unsubscribe(Observer)

	// Len returns the number of active resources.
	Len() int

	// Clear drops all resources, children before parents.
	Clear() error

	// Close releases all resources and stops accepting operations.
	Close() error
}

// Dropper is optionally implemented by resource values that need cleanup.
// It runs once, after the entry has left the table.
type Dropper interface {
	Drop() error
}
