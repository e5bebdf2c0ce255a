package preview2

import (
	"github.com/wippyai/wasi-sockets/resource"
)

// Resource is a WASI preview2 resource that can be managed by ResourceTable.
type Resource interface {
	// Type returns the resource type identifier.
	Type() ResourceType
	// Drop releases any underlying OS state. It runs once, after the
	// handle has left the table.
	Drop() error
}

// ResourceType identifies the type of a WASI resource for type-safe handle management.
type ResourceType uint8

const (
	ResourcePollable     = ResourceType(resource.WASIPollable)
	ResourceInputStream  = ResourceType(resource.WASIInputStream)
	ResourceOutputStream = ResourceType(resource.WASIOutputStream)
	ResourceError        = ResourceType(resource.WASIError)
	ResourceNetwork      = ResourceType(resource.WASINetwork)
	ResourceTCPSocket    = ResourceType(resource.WASITCPSocket)
)

func (t ResourceType) String() string {
	return resource.WASIResourceType(t).String()
}

// ResourceTable manages WASI preview2 resource handles.
// It is an adapter over the unified resource.WASITable.
//
// The table does not serialise calls; hosts hold their own lock for the
// duration of one guest call.
type ResourceTable struct {
	table *resource.WASITable
}

// NewResourceTable creates a new resource table
func NewResourceTable() *ResourceTable {
	return &ResourceTable{
		table: resource.NewWASITable(),
	}
}

// Add stores a root resource and returns its handle.
func (t *ResourceTable) Add(r Resource) (uint32, error) {
	h, err := t.table.Add(&resourceAdapter{r})
	return uint32(h), err
}

// AddChild stores a resource whose lifetime depends on parent. The parent
// cannot be deleted while the child handle is live.
func (t *ResourceTable) AddChild(r Resource, parent uint32) (uint32, error) {
	h, err := t.table.AddChild(&resourceAdapter{r}, resource.Handle(parent))
	return uint32(h), err
}

// Get returns the resource for a handle, or (nil, false) if invalid.
func (t *ResourceTable) Get(handle uint32) (Resource, bool) {
	res, ok := t.table.Get(resource.Handle(handle))
	if !ok {
		return nil, false
	}
	if adapter, ok := res.(*resourceAdapter); ok {
		return adapter.resource, true
	}
	return nil, false
}

// Delete removes a resource and drops it. It fails with resource.ErrNotFound
// for unknown handles and resource.ErrHasChildren while children are live.
// A failing Drop still removes the entry.
func (t *ResourceTable) Delete(handle uint32) (Resource, error) {
	res, err := t.table.Delete(resource.Handle(handle))
	var r Resource
	if adapter, ok := res.(*resourceAdapter); ok {
		r = adapter.resource
	}
	return r, err
}

// Children returns the live child handles of handle.
func (t *ResourceTable) Children(handle uint32) []uint32 {
	kids := t.table.Children(resource.Handle(handle))
	out := make([]uint32, len(kids))
	for i, h := range kids {
		out[i] = uint32(h)
	}
	return out
}

// Len returns the number of live resources.
func (t *ResourceTable) Len() int {
	return t.table.Len()
}

// SetLimit caps the number of live handles a guest can hold. n <= 0
// removes the cap.
func (t *ResourceTable) SetLimit(n int) {
	t.table.SetLimit(n)
}

// Subscribe registers an observer for resource lifecycle events.
func (t *ResourceTable) Subscribe(o resource.Observer) {
	t.table.Subscribe(o)
}

// Clear drops all resources, children before parents.
func (t *ResourceTable) Clear() error {
	return t.table.Clear()
}

// Close drops all resources and rejects further inserts.
func (t *ResourceTable) Close() error {
	return t.table.Close()
}

// resourceAdapter adapts preview2.Resource to resource.WASIResource
type resourceAdapter struct {
	resource Resource
}

func (a *resourceAdapter) WASIResourceType() resource.WASIResourceType {
	return resource.WASIResourceType(a.resource.Type())
}

// Drop implements resource.Dropper.
func (a *resourceAdapter) Drop() error {
	if a.resource == nil {
		return nil
	}
	return a.resource.Drop()
}
