package jph

import (
	"github.com/san-kum/jphbridge/internal/native"
)

type PhysicsMaterial struct {
	handle

	UserTag any
}

// NewPhysicsMaterial creates a material with a debug name and an RGBA
// debug color.
func (e *Engine) NewPhysicsMaterial(name string, color uint32) (*PhysicsMaterial, error) {
	r := e.scope("create-material")
	defer r.Close()
	cname, err := r.CString(name)
	if err != nil {
		return nil, err
	}
	res, err := e.call(symMaterialCreate, cname, color)
	if err != nil {
		return nil, err
	}
	return e.WrapMaterial(res.Uintptr()), nil
}

func (e *Engine) WrapMaterial(addr uintptr) *PhysicsMaterial {
	return e.fam.Materials.Wrap(addr, func(a uintptr) *PhysicsMaterial {
		return &PhysicsMaterial{handle: handle{e: e, addr: a}}
	})
}

func (m *PhysicsMaterial) DebugName() (string, error) {
	if err := m.check("material"); err != nil {
		return "", err
	}
	res, err := m.e.call(symMaterialName, m.addr)
	if err != nil {
		return "", err
	}
	return native.GoString(res.Uintptr()), nil
}

func (m *PhysicsMaterial) Destroy() error {
	if !m.destroyed.CompareAndSwap(false, true) {
		return m.check("material")
	}
	_, err := m.e.call(symMaterialDestroy, m.addr)
	m.e.fam.Materials.Unregister(m.addr)
	return err
}
