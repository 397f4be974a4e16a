package identity_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/jphbridge/internal/identity"
)

type material struct {
	addr uintptr
	name string
}

var _ = Describe("Table", func() {
	var tbl *identity.Table[material]
	ctor := func(addr uintptr) *material { return &material{addr: addr} }

	BeforeEach(func() {
		tbl = identity.NewTable[material]("materials")
	})

	It("hands out one wrapper per live address", func() {
		m := tbl.Wrap(0x40, ctor)
		m.name = "ice"
		Expect(tbl.Wrap(0x40, ctor)).To(BeIdenticalTo(m))
		Expect(tbl.Get(0x40).name).To(Equal("ice"))
	})

	It("builds a new wrapper once the address is unregistered", func() {
		m := tbl.Wrap(0x40, ctor)
		Expect(tbl.Unregister(0x40)).To(BeTrue())
		Expect(tbl.Get(0x40)).To(BeNil())
		Expect(tbl.Wrap(0x40, ctor)).NotTo(BeIdenticalTo(m))
	})

	It("keeps the first registration when two race", func() {
		a, b := ctor(0x80), ctor(0x80)
		w, inserted := tbl.Register(0x80, a)
		Expect(inserted).To(BeTrue())
		Expect(w).To(BeIdenticalTo(a))

		w, inserted = tbl.Register(0x80, b)
		Expect(inserted).To(BeFalse())
		Expect(w).To(BeIdenticalTo(a))
	})

	It("agrees on a single winner under contention", func() {
		const n = 32
		results := make([]*material, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				results[i] = tbl.Wrap(0x100, ctor)
			}()
		}
		wg.Wait()
		for _, r := range results {
			Expect(r).To(BeIdenticalTo(results[0]))
		}
		Expect(tbl.Len()).To(Equal(1))
	})

	It("wraps the null address to nil", func() {
		Expect(tbl.Wrap(0, ctor)).To(BeNil())
		Expect(tbl.Len()).To(BeZero())
	})
})
