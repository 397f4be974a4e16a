package gateway

import (
	"reflect"
	"sync"
)

// argPool recycles argument vectors of one function's arity so a downcall
// does not allocate a fresh slice per call.
type argPool struct {
	pool sync.Pool
	size int
}

func newArgPool(size int) *argPool {
	return &argPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				v := make([]reflect.Value, size)
				return &v
			},
		},
	}
}

func (p *argPool) Get() *[]reflect.Value {
	return p.pool.Get().(*[]reflect.Value)
}

func (p *argPool) Put(v *[]reflect.Value) {
	if len(*v) != p.size {
		return
	}
	clear(*v)
	p.pool.Put(v)
}
