package runtime

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"reflect"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-sockets/wasi/preview2"
	"github.com/wippyai/wasi-sockets/wasi/preview2/sockets"
)

// Flat ABI used by the host modules.
//
// Scalars map to one core value: bool, uint8, uint16 and uint32 to i32,
// uint64 to i64. An ip-socket-address is four values
// (family i32, hi i64, lo i64, port i32): family 0 is IPv4 with the address
// in the low 32 bits of lo, family 1 is IPv6 with the 16 bytes big-endian
// across hi and lo. A []uint32 or []byte parameter is (ptr i32, len i32)
// into guest memory.
//
// A returned list or string adds two trailing parameters (ptr i32, cap i32)
// naming a guest buffer of cap elements. At most cap elements are written
// and the full element count is returned as i32, so a short buffer can be
// retried with the right size.
//
// A *sockets.NetworkError result becomes a leading i32 error code: 0 on
// success, code+1 on failure. A *preview2.StreamError result becomes two
// leading i32s (tag, error handle) with tag 0 for success, 1 for
// last-operation-failed and 2 for closed. When either reports failure the
// remaining results are zero. A non-nil plain error result traps.

var (
	contextType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
	networkErrorType = reflect.TypeOf((*sockets.NetworkError)(nil))
	streamErrorType  = reflect.TypeOf((*preview2.StreamError)(nil))
	addrPortType     = reflect.TypeOf(netip.AddrPort{})
	handleListType   = reflect.TypeOf([]uint32(nil))
	byteListType     = reflect.TypeOf([]byte(nil))
	stringType       = reflect.TypeOf("")
)

const (
	familyIPv4 = 0
	familyIPv6 = 1
)

const (
	streamOK = iota
	streamLastOperationFailed
	streamClosed
)

var addrFlat = []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeI64, api.ValueTypeI32}

// codec moves one Go value across the flat ABI.
type codec struct {
	flat   []api.ValueType
	decode func(mod api.Module, stack []uint64) reflect.Value
	encode func(v reflect.Value, stack []uint64)
	out    func(mod api.Module, ptr, capacity uint32, v reflect.Value) uint32
}

// loweredFunc is a host handler adapted to api.GoModuleFunc.
type loweredFunc struct {
	fn       reflect.Value
	args     []codec
	rets     []codec
	retIndex []int // Go result index of each rets entry
	netErr   int   // Go result index of *sockets.NetworkError, or -1
	strErr   int   // Go result index of *preview2.StreamError, or -1
	trap     int   // Go result index of error, or -1
	hasOut   bool
	params   []api.ValueType
	results  []api.ValueType
}

func lower(handler any) (*loweredFunc, error) {
	v := reflect.ValueOf(handler)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler is %T, not a function", handler)
	}
	t := v.Type()
	if t.NumIn() == 0 || t.In(0) != contextType {
		return nil, fmt.Errorf("handler %s must take context.Context first", t)
	}

	lf := &loweredFunc{fn: v, netErr: -1, strErr: -1, trap: -1}
	for i := 1; i < t.NumIn(); i++ {
		c, err := paramCodec(t.In(i))
		if err != nil {
			return nil, err
		}
		lf.args = append(lf.args, c)
		lf.params = append(lf.params, c.flat...)
	}

	for i := 0; i < t.NumOut(); i++ {
		switch out := t.Out(i); out {
		case networkErrorType, streamErrorType:
			if lf.netErr >= 0 || lf.strErr >= 0 {
				return nil, fmt.Errorf("handler %s returns more than one error code", t)
			}
			if out == networkErrorType {
				lf.netErr = i
			} else {
				lf.strErr = i
			}
		case errorType:
			lf.trap = i
		default:
			c, err := resultCodec(out)
			if err != nil {
				return nil, err
			}
			if c.out != nil {
				if lf.hasOut {
					return nil, fmt.Errorf("handler %s returns more than one list", t)
				}
				lf.hasOut = true
				lf.params = append(lf.params, api.ValueTypeI32, api.ValueTypeI32)
			}
			lf.rets = append(lf.rets, c)
			lf.retIndex = append(lf.retIndex, i)
		}
	}

	switch {
	case lf.netErr >= 0:
		lf.results = append(lf.results, api.ValueTypeI32)
	case lf.strErr >= 0:
		lf.results = append(lf.results, api.ValueTypeI32, api.ValueTypeI32)
	}
	for _, c := range lf.rets {
		lf.results = append(lf.results, c.flat...)
	}
	return lf, nil
}

func (lf *loweredFunc) call(ctx context.Context, mod api.Module, stack []uint64) {
	args := make([]reflect.Value, 0, len(lf.args)+1)
	args = append(args, reflect.ValueOf(ctx))

	pos := 0
	for _, c := range lf.args {
		args = append(args, c.decode(mod, stack[pos:]))
		pos += len(c.flat)
	}
	var outPtr, outCap uint32
	if lf.hasOut {
		outPtr, outCap = api.DecodeU32(stack[pos]), api.DecodeU32(stack[pos+1])
	}

	out := lf.fn.Call(args)

	if lf.trap >= 0 && !out[lf.trap].IsNil() {
		panic(out[lf.trap].Interface().(error))
	}

	pos = 0
	failed := false
	switch {
	case lf.netErr >= 0:
		stack[0] = 0
		if v := out[lf.netErr]; !v.IsNil() {
			stack[0] = api.EncodeU32(uint32(v.Interface().(*sockets.NetworkError).Code) + 1)
			failed = true
		}
		pos = 1
	case lf.strErr >= 0:
		stack[0], stack[1] = streamOK, 0
		if v := out[lf.strErr]; !v.IsNil() {
			serr := v.Interface().(*preview2.StreamError)
			if serr.Closed {
				stack[0] = streamClosed
			} else {
				stack[0], stack[1] = streamLastOperationFailed, api.EncodeU32(serr.Handle)
			}
			failed = true
		}
		pos = 2
	}

	for i, c := range lf.rets {
		switch {
		case failed:
			for j := range c.flat {
				stack[pos+j] = 0
			}
		case c.out != nil:
			stack[pos] = api.EncodeU32(c.out(mod, outPtr, outCap, out[lf.retIndex[i]]))
		default:
			c.encode(out[lf.retIndex[i]], stack[pos:])
		}
		pos += len(c.flat)
	}
}

func paramCodec(t reflect.Type) (codec, error) {
	switch t {
	case addrPortType:
		return codec{
			flat: addrFlat,
			decode: func(_ api.Module, stack []uint64) reflect.Value {
				return reflect.ValueOf(DecodeAddrPort(stack))
			},
		}, nil
	case handleListType:
		return codec{
			flat: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			decode: func(mod api.Module, stack []uint64) reflect.Value {
				buf := readMemory(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), 4)
				handles := make([]uint32, len(buf)/4)
				for i := range handles {
					handles[i] = binary.LittleEndian.Uint32(buf[i*4:])
				}
				return reflect.ValueOf(handles)
			},
		}, nil
	case byteListType:
		return codec{
			flat: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			decode: func(mod api.Module, stack []uint64) reflect.Value {
				buf := readMemory(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), 1)
				// guest memory may change once the handler returns
				return reflect.ValueOf(append([]byte{}, buf...))
			},
		}, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return codec{
			flat: []api.ValueType{api.ValueTypeI32},
			decode: func(_ api.Module, stack []uint64) reflect.Value {
				return reflect.ValueOf(api.DecodeU32(stack[0]) != 0).Convert(t)
			},
		}, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		// Out of range values saturate so enum checks still reject them.
		limit := uint32(1<<t.Bits() - 1)
		return codec{
			flat: []api.ValueType{api.ValueTypeI32},
			decode: func(_ api.Module, stack []uint64) reflect.Value {
				return reflect.ValueOf(min(api.DecodeU32(stack[0]), limit)).Convert(t)
			},
		}, nil
	case reflect.Uint64:
		return codec{
			flat: []api.ValueType{api.ValueTypeI64},
			decode: func(_ api.Module, stack []uint64) reflect.Value {
				return reflect.ValueOf(stack[0]).Convert(t)
			},
		}, nil
	}
	return codec{}, fmt.Errorf("unsupported parameter type %s", t)
}

func resultCodec(t reflect.Type) (codec, error) {
	i32 := []api.ValueType{api.ValueTypeI32}

	switch t {
	case addrPortType:
		return codec{
			flat: addrFlat,
			encode: func(v reflect.Value, stack []uint64) {
				EncodeAddrPort(v.Interface().(netip.AddrPort), stack)
			},
		}, nil
	case handleListType:
		return codec{
			flat: i32,
			out: func(mod api.Module, ptr, capacity uint32, v reflect.Value) uint32 {
				handles := v.Interface().([]uint32)
				n := min(uint32(len(handles)), capacity)
				buf := make([]byte, n*4)
				for i := uint32(0); i < n; i++ {
					binary.LittleEndian.PutUint32(buf[i*4:], handles[i])
				}
				writeMemory(mod, ptr, buf)
				return uint32(len(handles))
			},
		}, nil
	case byteListType, stringType:
		return codec{
			flat: i32,
			out: func(mod api.Module, ptr, capacity uint32, v reflect.Value) uint32 {
				var buf []byte
				if v.Kind() == reflect.String {
					buf = []byte(v.String())
				} else {
					buf = v.Bytes()
				}
				writeMemory(mod, ptr, buf[:min(uint32(len(buf)), capacity)])
				return uint32(len(buf))
			},
		}, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return codec{
			flat: i32,
			encode: func(v reflect.Value, stack []uint64) {
				stack[0] = 0
				if v.Bool() {
					stack[0] = 1
				}
			},
		}, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return codec{
			flat: i32,
			encode: func(v reflect.Value, stack []uint64) {
				stack[0] = api.EncodeU32(uint32(v.Uint()))
			},
		}, nil
	case reflect.Uint64:
		return codec{
			flat: []api.ValueType{api.ValueTypeI64},
			encode: func(v reflect.Value, stack []uint64) {
				stack[0] = v.Uint()
			},
		}, nil
	}
	return codec{}, fmt.Errorf("unsupported result type %s", t)
}

// readMemory returns n elements of size bytes at ptr. Out of range access
// traps the guest.
func readMemory(mod api.Module, ptr, n, size uint32) []byte {
	if n == 0 {
		return nil
	}
	mem := mod.Memory()
	if mem == nil {
		panic(fmt.Errorf("module %q has no memory", mod.Name()))
	}
	buf, ok := mem.Read(ptr, n*size)
	if !ok {
		panic(fmt.Errorf("read %d bytes at %#x: out of range", n*size, ptr))
	}
	return buf
}

func writeMemory(mod api.Module, ptr uint32, buf []byte) {
	if len(buf) == 0 {
		return
	}
	mem := mod.Memory()
	if mem == nil {
		panic(fmt.Errorf("module %q has no memory", mod.Name()))
	}
	if !mem.Write(ptr, buf) {
		panic(fmt.Errorf("write %d bytes at %#x: out of range", len(buf), ptr))
	}
}

// DecodeAddrPort reads a flat ip-socket-address from four stack slots.
// An unknown family yields the zero AddrPort, which the socket host rejects
// as an invalid argument.
func DecodeAddrPort(stack []uint64) netip.AddrPort {
	family, hi, lo := api.DecodeU32(stack[0]), stack[1], stack[2]
	port := uint16(api.DecodeU32(stack[3]))

	switch family {
	case familyIPv4:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(lo))
		return netip.AddrPortFrom(netip.AddrFrom4(b), port)
	case familyIPv6:
		var b [16]byte
		binary.BigEndian.PutUint64(b[:8], hi)
		binary.BigEndian.PutUint64(b[8:], lo)
		return netip.AddrPortFrom(netip.AddrFrom16(b), port)
	}
	return netip.AddrPort{}
}

// EncodeAddrPort writes addr as a flat ip-socket-address.
func EncodeAddrPort(addr netip.AddrPort, stack []uint64) {
	ip := addr.Addr()
	stack[3] = api.EncodeU32(uint32(addr.Port()))
	if ip.Is4() {
		b := ip.As4()
		stack[0], stack[1], stack[2] = familyIPv4, 0, uint64(binary.BigEndian.Uint32(b[:]))
		return
	}
	b := ip.As16()
	stack[0], stack[1], stack[2] = familyIPv6, binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:])
}
