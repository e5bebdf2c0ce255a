// Package clocks implements wasi:clocks/monotonic-clock@0.2.0.
//
// Instants count nanoseconds from host creation. subscribe-instant and
// subscribe-duration return timer pollables that io/poll treats like any
// socket pollable, which gives guests a deadline for their connect and
// accept loops.
package clocks
