package jph_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/jphbridge/internal/config"
	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/jph"
	"github.com/san-kum/jphbridge/internal/native/nativetest"
)

var _ = Describe("Engine wrappers", func() {
	var (
		fake   *nativetest.Engine
		engine *jph.Engine
		box    *jph.Shape
	)

	BeforeEach(func() {
		fake = nativetest.NewEngine()
		var err error
		engine, err = jph.Open(config.DefaultConfig(), fake.Lib)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(engine.Close)

		box, err = engine.NewBox(jph.Vec3{X: 1, Y: 1, Z: 1}, jph.DefaultConvexRadius)
		Expect(err).NotTo(HaveOccurred())
	})

	create := func(x float64) *jph.Body {
		b, err := engine.CreateBody(jph.DefaultBodyCreationSettings(box, jph.RVec3{X: x}, jph.MotionDynamic))
		Expect(err).NotTo(HaveOccurred())
		return b
	}

	Describe("bodies", func() {
		It("resolve every ray hit to the wrapper that created them", func() {
			near, far := create(0), create(5)
			near.UserTag, far.UserTag = "near", "far"

			var tags []any
			hit, err := engine.CastRay(jph.Vec3{X: -5}, jph.Vec3{X: 20}, func(r *jph.RayCastResult) {
				b, err := engine.BodyByID(r.BodyID)
				Expect(err).NotTo(HaveOccurred())
				tags = append(tags, b.UserTag)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(hit).To(BeTrue())
			Expect(tags).To(Equal([]any{"near", "far"}))
		})

		It("get a fresh wrapper after the engine destroys them", func() {
			b := create(0)
			b.UserTag = "old"
			id := b.ID()
			Expect(engine.DestroyBody(b)).To(Succeed())

			again := create(0)
			Expect(again.ID()).NotTo(Equal(id))
			Expect(again.UserTag).To(BeNil())
		})

		It("refuse calls after destruction", func() {
			b := create(0)
			Expect(fake.RemoveBody(b.ID())).To(BeTrue())
			_, err := b.Position()
			Expect(err).To(MatchError(fault.ErrUseAfterRelease))
		})
	})

	Describe("hinge settings", func() {
		It("run the native destroy exactly once however they are released", func() {
			s, err := engine.NewHingeConstraintSettings()
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.HingeSettingsLive()).To(Equal(1))

			Expect(s.Close()).To(Succeed())
			Expect(s.Close()).To(Succeed())
			Expect(engine.Close()).To(Succeed())
			Expect(fake.Calls("JPH_HingeConstraintSettings_Destroy")).To(Equal(1))
		})
	})

	Describe("cast collectors", func() {
		It("leave no trampoline armed", func() {
			create(0)
			before := engine.Dispatcher().Live()
			_, err := engine.RayHits(jph.Vec3{X: -5}, jph.Vec3{X: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Dispatcher().Live()).To(Equal(before))
			Expect(engine.Dispatcher().Stale()).To(BeZero())
		})

		It("report a failing collector without losing the engine", func() {
			create(0)
			_, err := engine.CollidePoint(jph.Vec3{}, func(*jph.CollidePointResult) { panic("bad collector") })
			Expect(err).To(MatchError(ContainSubstring("bad collector")))

			var n int
			_, err = engine.CollidePoint(jph.Vec3{}, func(*jph.CollidePointResult) { n++ })
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})
	})
})
