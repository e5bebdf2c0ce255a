// Package resource provides the handle table that owns host-side values
// exposed to a guest.
//
// Handles are 32-bit and generation-checked: the low 24 bits select a slot,
// the high 8 bits record how many times that slot has been reused. A handle
// kept after its entry was deleted resolves to nothing, even when the slot
// now holds a different value.
//
// # Parent and Child Entries
//
// Derived values (stream halves of a socket, a pollable subscribed to a
// socket) are inserted as children:
//
//	table := resource.NewTable()
//	sock, _ := table.Insert(tcpType, socket)
//	in, _ := table.InsertChild(streamType, input, sock)
//
//	_, err := table.Delete(sock)   // ErrHasChildren
//	table.Delete(in)
//	table.Delete(sock)             // ok
//
// Deleting a parent never deletes its children; the delete is refused
// until every child is gone.
//
// # Drop
//
// Values implementing Dropper have Drop called once, after the entry has
// left the table. Clear and Close remove leaves before parents and combine
// drop failures into one error.
//
// # Observers
//
// Observers are notified on EventCreated and EventDropped with the handle,
// parent and type ID of the entry.
//
// The table performs no call-level serialisation beyond keeping its slot
// slice consistent. Hosts hold their own lock for the duration of a call.
package resource
