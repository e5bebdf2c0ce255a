package preview2

import (
	"time"

	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

// shadowOptions caches listener options Darwin does not copy onto accepted
// sockets. Only values set explicitly are replayed.
//
// This is a documented minimum. Other options observable through the
// getters are not carried over.
type shadowOptions struct {
	receiveBuffer *int
	sendBuffer    *int
	hopLimit      *int
	keepAliveIdle *time.Duration
}

func (o *shadowOptions) setReceiveBuffer(n int)           { o.receiveBuffer = &n }
func (o *shadowOptions) setSendBuffer(n int)              { o.sendBuffer = &n }
func (o *shadowOptions) setHopLimit(n int)                { o.hopLimit = &n }
func (o *shadowOptions) setKeepAliveIdle(d time.Duration) { o.keepAliveIdle = &d }

func (o *shadowOptions) replay(conn *sysnet.Socket, family sysnet.Family) []error {
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if o.receiveBuffer != nil {
		keep(conn.SetRecvBuffer(*o.receiveBuffer))
	}
	if o.sendBuffer != nil {
		keep(conn.SetSendBuffer(*o.sendBuffer))
	}
	// IP_TTL is inherited; IPV6_UNICAST_HOPS is not.
	if family == sysnet.IPv6 && o.hopLimit != nil {
		keep(conn.SetHopLimit(*o.hopLimit))
	}
	if o.keepAliveIdle != nil {
		keep(conn.SetKeepAliveIdle(*o.keepAliveIdle))
	}
	return errs
}
