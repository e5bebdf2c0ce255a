package resource

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// UnifiedTable implements the Table interface using a LocalBackend for storage.
type UnifiedTable struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new unified table with a LocalBackend.
func NewTable() *UnifiedTable {
	return &UnifiedTable{
		backend: NewLocalBackend(),
	}
}

func (t *UnifiedTable) isClosed() bool {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	return t.closed
}

// Insert adds a root value and returns its handle.
func (t *UnifiedTable) Insert(typeID uint32, value any) (Handle, error) {
	if t.isClosed() {
		return 0, ErrClosed
	}

	handle, err := t.backend.Create(typeID, value)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})
	return handle, nil
}

// InsertChild adds a value whose lifetime is tied to parent.
func (t *UnifiedTable) InsertChild(typeID uint32, value any, parent Handle) (Handle, error) {
	if t.isClosed() {
		return 0, ErrClosed
	}

	handle, err := t.backend.CreateChild(typeID, value, parent)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Parent: parent,
		TypeID: typeID,
		Value:  value,
	})
	return handle, nil
}

// Get retrieves a value by handle.
func (t *UnifiedTable) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it matches the expected type.
func (t *UnifiedTable) GetTyped(handle Handle, typeID uint32) (any, bool) {
	actualTypeID, ok := t.backend.TypeID(handle)
	if !ok || actualTypeID != typeID {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Delete removes a resource and runs its Drop hook.
// The entry is gone even when Drop reports an error.
func (t *UnifiedTable) Delete(handle Handle) (any, error) {
	typeID, _ := t.backend.TypeID(handle)
	parent, _ := t.backend.Parent(handle)

	value, err := t.backend.Delete(handle)
	if err != nil {
		return nil, err
	}

	var dropErr error
	if d, ok := value.(Dropper); ok {
		dropErr = d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Parent: parent,
		TypeID: typeID,
		Value:  value,
	})
	return value, dropErr
}

// Children returns the live child handles of handle.
func (t *UnifiedTable) Children(handle Handle) []Handle {
	return t.backend.Children(handle)
}

// Parent returns the parent of handle, or 0 for a root entry.
func (t *UnifiedTable) Parent(handle Handle) (Handle, bool) {
	return t.backend.Parent(handle)
}

// Subscribe adds an observer for lifecycle events.
func (t *UnifiedTable) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *UnifiedTable) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// SetLimit caps the number of live resources; inserts beyond it fail with
// ErrTableFull. n <= 0 removes the cap.
func (t *UnifiedTable) SetLimit(n int) {
	t.backend.SetLimit(n)
}

// Len returns the number of active resources.
func (t *UnifiedTable) Len() int {
	return t.backend.Len()
}

// Clear drops all resources, leaves first, and keeps the table usable.
func (t *UnifiedTable) Clear() error {
	var err error
	for {
		var leaves []Handle
		t.backend.Each(func(h Handle, _ uint32, _ any) bool {
			if len(t.backend.Children(h)) == 0 {
				leaves = append(leaves, h)
			}
			return true
		})
		if len(leaves) == 0 {
			return err
		}
		for _, h := range leaves {
			if _, dropErr := t.Delete(h); dropErr != nil {
				err = multierr.Append(err, dropErr)
			}
		}
	}
}

// Close releases all resources and stops accepting operations.
func (t *UnifiedTable) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	err := t.Clear()
	if closeErr := t.backend.Close(); closeErr != nil {
		err = multierr.Append(err, closeErr)
	}
	if err != nil {
		Logger().Warn("resource table closed with errors", zap.Error(err))
	}
	return err
}

func (t *UnifiedTable) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
