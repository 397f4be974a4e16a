package gateway

import (
	"math"
	"reflect"

	"github.com/san-kum/jphbridge/internal/layout"
)

// Result is the raw return value of a downcall, read back by kind.
type Result struct {
	kind layout.Kind
	bits uint64
}

func resultOf(k layout.Kind, out []reflect.Value) Result {
	r := Result{kind: k}
	if len(out) == 0 {
		return r
	}
	v := out[0]
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			r.bits = 1
		}
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		r.bits = uint64(v.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint, reflect.Uintptr:
		r.bits = v.Uint()
	case reflect.Float32:
		r.bits = uint64(math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		r.bits = math.Float64bits(v.Float())
	}
	return r
}

func (r Result) Kind() layout.Kind { return r.kind }
func (r Result) IsZero() bool      { return r.bits == 0 }
func (r Result) Uintptr() uintptr  { return uintptr(r.bits) }
func (r Result) Bool() bool        { return r.bits != 0 }
func (r Result) Uint8() uint8      { return uint8(r.bits) }
func (r Result) Int32() int32      { return int32(r.bits) }
func (r Result) Uint32() uint32    { return uint32(r.bits) }
func (r Result) Int64() int64      { return int64(r.bits) }
func (r Result) Uint64() uint64    { return r.bits }
func (r Result) Float32() float32  { return math.Float32frombits(uint32(r.bits)) }
func (r Result) Float64() float64  { return math.Float64frombits(r.bits) }

// code is the result as a signed status value.
func (r Result) code() int64 {
	switch r.kind {
	case layout.Int32:
		return int64(int32(r.bits))
	case layout.Uint8:
		return int64(uint8(r.bits))
	case layout.Uint32:
		return int64(uint32(r.bits))
	default:
		return int64(r.bits)
	}
}
