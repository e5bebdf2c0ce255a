package resource

// WASIResourceType identifies WASI preview2 resource types.
type WASIResourceType uint32

const (
	WASIPollable WASIResourceType = iota
	WASIInputStream
	WASIOutputStream
	WASIError
	WASINetwork
	WASITCPSocket
)

func (t WASIResourceType) String() string {
	switch t {
	case WASIPollable:
		return "pollable"
	case WASIInputStream:
		return "input-stream"
	case WASIOutputStream:
		return "output-stream"
	case WASIError:
		return "error"
	case WASINetwork:
		return "network"
	case WASITCPSocket:
		return "tcp-socket"
	default:
		return "unknown"
	}
}

// WASIResource is implemented by WASI resource types.
type WASIResource interface {
	WASIResourceType() WASIResourceType
}

// WASITable is a WASI-specific resource table over UnifiedTable.
type WASITable struct {
	table *UnifiedTable
}

// NewWASITable creates a new WASI resource table.
func NewWASITable() *WASITable {
	return &WASITable{
		table: NewTable(),
	}
}

// Add adds a root WASI resource and returns its handle.
func (t *WASITable) Add(r WASIResource) (Handle, error) {
	return t.table.Insert(uint32(r.WASIResourceType()), r)
}

// AddChild adds a WASI resource that depends on parent.
func (t *WASITable) AddChild(r WASIResource, parent Handle) (Handle, error) {
	return t.table.InsertChild(uint32(r.WASIResourceType()), r, parent)
}

// Get retrieves a WASI resource by handle.
func (t *WASITable) Get(handle Handle) (WASIResource, bool) {
	value, ok := t.table.Get(handle)
	if !ok {
		return nil, false
	}
	r, ok := value.(WASIResource)
	return r, ok
}

// GetTyped retrieves a WASI resource of specific type.
func (t *WASITable) GetTyped(handle Handle, resType WASIResourceType) (WASIResource, bool) {
	value, ok := t.table.GetTyped(handle, uint32(resType))
	if !ok {
		return nil, false
	}
	r, ok := value.(WASIResource)
	return r, ok
}

// Delete removes a WASI resource by handle.
func (t *WASITable) Delete(handle Handle) (WASIResource, error) {
	value, err := t.table.Delete(handle)
	r, _ := value.(WASIResource)
	return r, err
}

// Children returns the live children of handle.
func (t *WASITable) Children(handle Handle) []Handle {
	return t.table.Children(handle)
}

// Clear drops all resources.
func (t *WASITable) Clear() error {
	return t.table.Clear()
}

// Close releases all resources.
func (t *WASITable) Close() error {
	return t.table.Close()
}

// Len returns the number of active resources.
func (t *WASITable) Len() int {
	return t.table.Len()
}

// Subscribe adds an observer for lifecycle events.
func (t *WASITable) Subscribe(o Observer) {
	t.table.Subscribe(o)
}

// Unsubscribe removes an observer.
func (t *WASITable) Unsubscribe(o Observer) {
	t.table.Unsubscribe(o)
}

// Table returns the underlying unified table.
func (t *WASITable) Table() *UnifiedTable {
	return t.table
}

// SetLimit caps the number of live resources. n <= 0 removes the cap.
func (t *WASITable) SetLimit(n int) {
	t.table.SetLimit(n)
}
