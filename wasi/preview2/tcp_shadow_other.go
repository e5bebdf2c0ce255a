//go:build !darwin

package preview2

import (
	"time"

	"github.com/wippyai/wasi-sockets/wasi/preview2/internal/sysnet"
)

// shadowOptions is empty where accepted sockets inherit listener options.
type shadowOptions struct{}

func (shadowOptions) setReceiveBuffer(int)                         {}
func (shadowOptions) setSendBuffer(int)                            {}
func (shadowOptions) setHopLimit(int)                              {}
func (shadowOptions) setKeepAliveIdle(time.Duration)               {}
func (shadowOptions) replay(*sysnet.Socket, sysnet.Family) []error { return nil }
