package resource

import (
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-sockets/errors"
)

var (
	ErrClosed      = &errors.Error{Phase: errors.PhaseTable, Kind: errors.KindClosed, Detail: "resource backend closed"}
	ErrNotFound    = &errors.Error{Phase: errors.PhaseTable, Kind: errors.KindNotFound, Detail: "unknown or stale handle"}
	ErrHasChildren = &errors.Error{Phase: errors.PhaseTable, Kind: errors.KindConflict, Detail: "cannot delete resource with live children"}
	ErrTableFull   = &errors.Error{Phase: errors.PhaseTable, Kind: errors.KindExhausted, Detail: "resource table full"}
)

// LocalBackend is an in-memory resource backend with parent/child tracking.
type LocalBackend struct {
	entries  []entry
	freeList []uint32
	live     int
	limit    int
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value      any
	children   map[Handle]struct{}
	parent     Handle
	typeID     uint32
	generation uint8
	valid      bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// SetLimit caps the number of live entries. n <= 0 removes the cap.
func (b *LocalBackend) SetLimit(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = n
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(typeID uint32, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.create(typeID, value, 0)
}

// CreateChild stores a value as a dependent of parent.
func (b *LocalBackend) CreateChild(typeID uint32, value any, parent Handle) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	p := b.lookup(parent)
	if p == nil {
		return 0, notFound(parent)
	}

	h, err := b.create(typeID, value, parent)
	if err != nil {
		return 0, err
	}
	// create may have grown the slice; look the parent up again.
	p = b.lookup(parent)
	if p.children == nil {
		p.children = make(map[Handle]struct{})
	}
	p.children[h] = struct{}{}
	return h, nil
}

func (b *LocalBackend) create(typeID uint32, value any, parent Handle) (Handle, error) {
	if b.closed {
		return 0, ErrClosed
	}

	if b.limit > 0 && b.live >= b.limit {
		return 0, ErrTableFull
	}

	if n := len(b.freeList); n > 0 {
		idx := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		e := &b.entries[idx]
		e.typeID = typeID
		e.value = value
		e.parent = parent
		e.valid = true
		b.live++
		return makeHandle(idx, e.generation), nil
	}

	if len(b.entries) >= maxSlots {
		return 0, ErrTableFull
	}
	b.entries = append(b.entries, entry{
		typeID: typeID,
		value:  value,
		parent: parent,
		valid:  true,
	})
	b.live++
	return makeHandle(uint32(len(b.entries)-1), 0), nil
}

// lookup returns the live entry for handle or nil. Caller holds mu.
func (b *LocalBackend) lookup(handle Handle) *entry {
	idx, gen, ok := handle.slot()
	if !ok || int(idx) >= len(b.entries) {
		return nil
	}
	e := &b.entries[idx]
	if !e.valid || e.generation != gen {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Delete removes an entry that has no live children.
func (b *LocalBackend) Delete(handle Handle) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delete(handle)
}

func (b *LocalBackend) delete(handle Handle) (any, error) {
	e := b.lookup(handle)
	if e == nil {
		return nil, notFound(handle)
	}
	if len(e.children) > 0 {
		return nil, errors.New(errors.PhaseTable, errors.KindConflict).
			Value(uint32(handle)).
			Detail("%d live children", len(e.children)).
			Cause(ErrHasChildren).
			Build()
	}

	if e.parent != 0 {
		if p := b.lookup(e.parent); p != nil {
			delete(p.children, handle)
		}
	}

	value := e.value
	idx, _, _ := handle.slot()
	e.value = nil
	e.children = nil
	e.parent = 0
	e.valid = false
	if e.generation == generationMax {
		e.generation = 0
	} else {
		e.generation++
	}
	b.freeList = append(b.freeList, idx)
	b.live--

	return value, nil
}

// Close drops every remaining entry, children before parents.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	values := b.drainLocked()
	b.closed = true
	b.entries = nil
	b.live = 0
	b.freeList = nil
	b.mu.Unlock()

	var err error
	for _, v := range values {
		if d, ok := v.(Dropper); ok {
			err = multierr.Append(err, d.Drop())
		}
	}
	if err != nil {
		Logger().Warn("resource drop failed during close", zap.Error(err))
	}
	return err
}

func (b *LocalBackend) drainLocked() []any {
	var values []any
	for {
		removed := false
		for i := range b.entries {
			e := &b.entries[i]
			if !e.valid || len(e.children) > 0 {
				continue
			}
			v, err := b.delete(makeHandle(uint32(i), e.generation))
			if err != nil {
				continue
			}
			values = append(values, v)
			removed = true
		}
		if !removed {
			return values
		}
	}
}

// TypeID returns the type ID for a handle.
func (b *LocalBackend) TypeID(handle Handle) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.typeID, true
}

// Parent returns the parent handle, or 0 for root entries.
func (b *LocalBackend) Parent(handle Handle) (Handle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.parent, true
}

// Children returns the handles registered as children of handle.
func (b *LocalBackend) Children(handle Handle) []Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil || len(e.children) == 0 {
		return nil
	}
	out := make([]Handle, 0, len(e.children))
	for h := range e.children {
		out = append(out, h)
	}
	return out
}

// Len returns the number of active resources.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.live
}

// Each iterates over all active resources.
func (b *LocalBackend) Each(fn func(Handle, uint32, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(makeHandle(uint32(i), e.generation), e.typeID, e.value) {
				break
			}
		}
	}
}

func notFound(h Handle) error {
	return errors.New(errors.PhaseTable, errors.KindNotFound).
		Detail("handle %s", strconv.FormatUint(uint64(h), 10)).
		Cause(ErrNotFound).
		Build()
}
