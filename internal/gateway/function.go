package gateway

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/layout"
	"go.uber.org/zap"
)

// Status selects how a function reports failure through its return value.
type Status int

const (
	StatusNone Status = iota
	// StatusFalseIsError treats a false bool return as failure.
	StatusFalseIsError
	// StatusNullIsError treats a null pointer return as failure.
	StatusNullIsError
	// StatusNonZeroIsError treats any non-zero integer return as an error code.
	StatusNonZeroIsError
)

func (s Status) String() string {
	switch s {
	case StatusFalseIsError:
		return "false-is-error"
	case StatusNullIsError:
		return "null-is-error"
	case StatusNonZeroIsError:
		return "nonzero-is-error"
	default:
		return "none"
	}
}

func (s Status) accepts(k layout.Kind) bool {
	switch s {
	case StatusNone:
		return true
	case StatusFalseIsError:
		return k == layout.Bool
	case StatusNullIsError:
		return k == layout.Pointer
	case StatusNonZeroIsError:
		switch k {
		case layout.Uint8, layout.Int32, layout.Uint32, layout.Int64, layout.Uint64:
			return true
		}
	}
	return false
}

func (s Status) failed(r Result) bool {
	switch s {
	case StatusFalseIsError, StatusNullIsError:
		return r.IsZero()
	case StatusNonZeroIsError:
		return !r.IsZero()
	}
	return false
}

// Addresser is anything that stands for native memory, such as a scratch
// buffer or a wrapper object.
type Addresser interface {
	Addr() uintptr
}

// Function is a resolved native symbol. It is immutable and safe for
// concurrent use.
type Function struct {
	symbol string
	addr   uintptr
	sig    Signature
	fn     reflect.Value
	status Status
	args   *argPool
	calls  *atomic.Uint64
	log    *zap.Logger
}

func (f *Function) Symbol() string       { return f.symbol }
func (f *Function) Addr() uintptr        { return f.addr }
func (f *Function) Signature() Signature { return f.sig }
func (f *Function) Status() Status       { return f.status }

// Calls counts invocations through every status variant of the function.
func (f *Function) Calls() uint64 { return f.calls.Load() }

// WithStatus returns the same function with a failure policy applied to its
// return value. It panics when the policy cannot apply to the return kind.
func (f *Function) WithStatus(s Status) *Function {
	if !s.accepts(f.sig.Ret) {
		panic(&fault.SignatureError{Symbol: f.symbol, Reason: fmt.Sprintf("status %s does not apply to %s return", s, f.sig.Ret)})
	}
	g := *f
	g.status = s
	return &g
}

// Invoke converts args per the signature, calls the native function, and
// applies the status policy. A panic raised during the call is returned as a
// fault.ErrNativeCallFailed error.
func (f *Function) Invoke(args ...any) (Result, error) {
	if len(args) != len(f.sig.Args) {
		return Result{}, &fault.SignatureError{
			Symbol: f.symbol,
			Reason: fmt.Sprintf("called with %d arguments, signature %s takes %d", len(args), f.sig, len(f.sig.Args)),
		}
	}

	in := f.args.Get()
	defer f.args.Put(in)
	for i, a := range args {
		v, err := convert(a, f.sig.Args[i])
		if err != nil {
			return Result{}, &fault.SignatureError{Symbol: f.symbol, Reason: fmt.Sprintf("argument %d: %v", i, err)}
		}
		(*in)[i] = v
	}

	out, err := f.call(*in)
	if err != nil {
		return Result{}, err
	}
	res := resultOf(f.sig.Ret, out)
	if f.status.failed(res) {
		err := &fault.CallError{Symbol: f.symbol, Code: res.code()}
		f.log.Debug("native call reported failure", zap.String("symbol", f.symbol), zap.Int64("code", err.Code))
		return res, err
	}
	return res, nil
}

func (f *Function) call(in []reflect.Value) (out []reflect.Value, err error) {
	f.calls.Add(1)
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = &fault.CallError{Symbol: f.symbol, Cause: cause}
			f.log.Error("native call failed", zap.String("symbol", f.symbol), zap.Error(cause))
		}
	}()
	return f.fn.Call(in), nil
}

// isNilPointer reports a typed nil such as (*arena.Buffer)(nil), whose Addr
// would dereference nil.
func isNilPointer(a any) bool {
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func convert(a any, k layout.Kind) (reflect.Value, error) {
	t := goTypes[k]
	switch k {
	case layout.Pointer:
		switch p := a.(type) {
		case nil:
			return reflect.ValueOf(uintptr(0)), nil
		case uintptr:
			return reflect.ValueOf(p), nil
		case unsafe.Pointer:
			return reflect.ValueOf(uintptr(p)), nil
		case Addresser:
			if isNilPointer(p) {
				return reflect.Value{}, fmt.Errorf("nil %T", a)
			}
			return reflect.ValueOf(p.Addr()), nil
		}
		return reflect.Value{}, fmt.Errorf("%T is not a pointer", a)
	case layout.Bool:
		if b, ok := a.(bool); ok {
			return reflect.ValueOf(b), nil
		}
		return reflect.Value{}, fmt.Errorf("%T is not a bool", a)
	case layout.Float32, layout.Float64:
		v := reflect.ValueOf(a)
		if !v.IsValid() || (v.Kind() != reflect.Float32 && v.Kind() != reflect.Float64) {
			return reflect.Value{}, fmt.Errorf("%T is not a float", a)
		}
		return v.Convert(t), nil
	}

	v := reflect.ValueOf(a)
	z := reflect.New(t).Elem()
	switch {
	case v.CanInt():
		n := v.Int()
		if z.CanInt() && z.OverflowInt(n) || z.CanUint() && (n < 0 || z.OverflowUint(uint64(n))) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, k)
		}
	case v.CanUint():
		n := v.Uint()
		if z.CanUint() && z.OverflowUint(n) || z.CanInt() && (n > 1<<63-1 || z.OverflowInt(int64(n))) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, k)
		}
	default:
		return reflect.Value{}, fmt.Errorf("%T is not an integer", a)
	}
	return v.Convert(t), nil
}
