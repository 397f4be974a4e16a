package jph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/san-kum/jphbridge/internal/arena"
	"github.com/san-kum/jphbridge/internal/config"
	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/gateway"
	"github.com/san-kum/jphbridge/internal/layout"
	"github.com/san-kum/jphbridge/internal/mem"
	"github.com/san-kum/jphbridge/internal/native"
	"github.com/san-kum/jphbridge/internal/upcall"
	"go.uber.org/zap"
)

// callChunkSize sizes the per-call regions used for argument marshalling and
// cast collectors. Most calls need a single Vec3 or Mat44.
const callChunkSize uintptr = 256

// Engine is an open connection to one native engine instance.
type Engine struct {
	cfg     *config.Config
	lib     native.Library
	gw      *gateway.Gateway
	disp    *upcall.Dispatcher
	layouts *layout.Registry
	alloc   mem.Allocator
	scratch *arena.Region
	fam     *Families
	log     *zap.Logger
	fns     map[string]*gateway.Function
	version *semver.Version
	unknown []layout.Tag

	system    uintptr
	bodyIface uintptr
	query     uintptr
	listener  *upcall.Trampoline[BodyEvent]

	closeOnce sync.Once
	closeErr  error
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

var (
	dispatchersMu sync.Mutex
	dispatchers   = make(map[native.Library]*upcall.Dispatcher)
)

// dispatcherFor returns the process-wide dispatcher of lib. Callback slots
// are never reclaimed, so engines opened on the same library share one.
func dispatcherFor(lib native.Library, log *zap.Logger) (*upcall.Dispatcher, error) {
	dispatchersMu.Lock()
	defer dispatchersMu.Unlock()
	if d, ok := dispatchers[lib]; ok {
		return d, nil
	}
	d, err := upcall.NewDispatcher(lib, upcall.WithLogger(log))
	if err != nil {
		return nil, err
	}
	dispatchers[lib] = d
	return d, nil
}

// Open checks lib against cfg and brings up a physics system. Errors for
// which fault.IsFatal holds mean the binary and the library disagree; no
// native call beyond the checks has been made when they are returned.
func Open(cfg *config.Config, lib native.Library, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		lib:     lib,
		layouts: layout.Default(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(zap.String("library", lib.Name()))

	alloc, err := mem.ByName(cfg.Allocator)
	if err != nil {
		return nil, err
	}
	e.alloc = alloc
	e.scratch = arena.New(alloc,
		arena.WithChunkSize(uintptr(cfg.ChunkSize)),
		arena.WithPoison(cfg.PoisonOnRelease),
		arena.WithLabel("engine"),
		arena.WithLogger(e.log))
	e.gw = gateway.New(lib, gateway.WithLogger(e.log))

	if err := e.start(); err != nil {
		e.scratch.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) start() error {
	if err := e.selfCheck(); err != nil {
		return err
	}
	if err := e.checkVersion(); err != nil {
		return err
	}
	fns, err := resolveSymbols(e.gw)
	if err != nil {
		return err
	}
	e.fns = fns

	if e.disp, err = dispatcherFor(e.lib, e.log); err != nil {
		return fmt.Errorf("jph: create dispatcher: %w", err)
	}
	e.fam = NewFamilies(e.log)

	if _, err := e.call(symInit); err != nil {
		return err
	}
	res, err := e.call(symSystemCreate, uint32(e.cfg.MaxBodies))
	if err != nil {
		e.call(symShutdown)
		return err
	}
	e.system = res.Uintptr()
	if err := e.fetchInterfaces(); err != nil {
		e.teardown()
		return err
	}
	if err := e.listen(); err != nil {
		e.teardown()
		return err
	}
	e.log.Info("engine open",
		zap.String("version", e.version.String()),
		zap.String("allocator", e.alloc.Name()),
		zap.Int("symbols", len(e.fns)))
	return nil
}

func (e *Engine) checkVersion() error {
	c, err := e.cfg.Constraint()
	if err != nil {
		return err
	}
	f, err := e.gw.Resolve(symGetVersionString, layout.Pointer)
	if err != nil {
		return err
	}
	res, err := f.Invoke()
	if err != nil {
		return err
	}
	raw := native.GoString(res.Uintptr())
	v, err := semver.NewVersion(raw)
	if err != nil || !c.Check(v) {
		return &fault.VersionError{Version: raw, Constraint: e.cfg.VersionConstraint}
	}
	e.version = v
	return nil
}

// selfCheck compares every registered layout with the sizes the library was
// compiled with. It always runs first, before any other native call. Libraries
// built without size introspection are accepted with a warning.
func (e *Engine) selfCheck() error {
	sizeOf, err := e.gw.Resolve(symGetStructSize, layout.Uint64, layout.Pointer)
	if errors.Is(err, fault.ErrSymbolNotFound) {
		e.log.Warn("library does not report struct sizes, layout self-check skipped")
		return nil
	}
	if err != nil {
		return err
	}

	r := e.scratch.Child(arena.WithChunkSize(callChunkSize), arena.WithLabel("engine/selfcheck"))
	defer r.Close()
	var callErr error
	unknown, err := layout.Validate(e.layouts, func(name string) (uintptr, bool) {
		s, err := r.CString(name)
		if err != nil {
			callErr = err
			return 0, false
		}
		res, err := sizeOf.Invoke(s)
		if err != nil {
			callErr = err
			return 0, false
		}
		return uintptr(res.Uint64()), res.Uint64() != 0
	})
	if err != nil {
		return err
	}
	if callErr != nil {
		return callErr
	}
	for _, tag := range unknown {
		e.log.Warn("library does not know layout", zap.String("layout", string(tag)))
	}
	e.unknown = unknown
	return nil
}

func (e *Engine) fetchInterfaces() error {
	res, err := e.call(symSystemBodyIface, e.system)
	if err != nil {
		return err
	}
	e.bodyIface = res.Uintptr()
	if res, err = e.call(symSystemQuery, e.system); err != nil {
		return err
	}
	e.query = res.Uintptr()
	return nil
}

// BodyEvent is the argument of the body-destroyed notification.
type BodyEvent struct {
	Body   uintptr
	BodyID uint32
}

func (ev *BodyEvent) Read(src layout.View) {
	ev.Body = src.Address("body")
	ev.BodyID = src.Uint32("bodyID")
}

// listen arms the trampoline through which the engine reports bodies it
// destroyed on its own, so their wrappers leave the identity table.
func (e *Engine) listen() error {
	t, err := upcall.New(e.disp, e.layouts.MustOf(layout.TagBodyEvent),
		func(v layout.View, ev *BodyEvent) { ev.Read(v) },
		func(ev *BodyEvent) {
			if b := e.fam.Bodies.Get(ev.Body); b != nil {
				b.destroyed.Store(true)
				if err := b.tmp.discard(); err != nil {
					e.log.Warn("release body temps", zap.Uint32("id", ev.BodyID), zap.Error(err))
				}
			}
			if e.fam.Bodies.Unregister(ev.Body) {
				e.log.Debug("body destroyed by engine", zap.Uint32("id", ev.BodyID), zap.Uintptr("addr", ev.Body))
			}
		},
		upcall.InRegion(e.scratch),
		upcall.WithLabel("body-destroyed"))
	if err != nil {
		return err
	}
	if _, err := e.call(symSetDestroyListener, e.system, t.Pointer(), t.Ctx()); err != nil {
		t.Release()
		return err
	}
	e.listener = t
	return nil
}

func (e *Engine) unlisten() error {
	if e.listener == nil {
		return nil
	}
	_, err := e.call(symSetDestroyListener, e.system, nil, nil)
	e.listener.Release()
	e.listener = nil
	return err
}

// teardown destroys the physics system and shuts the library down. It is
// the reverse of the native half of start.
func (e *Engine) teardown() error {
	var errs []error
	if err := e.unlisten(); err != nil {
		errs = append(errs, err)
	}
	if e.system != 0 {
		if _, err := e.call(symSystemDestroy, e.system); err != nil {
			errs = append(errs, err)
		}
		e.system = 0
	}
	if _, err := e.call(symShutdown); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases managed-owned objects still open, destroys the physics
// system and shuts the library down. Later calls return the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		listenErr := e.unlisten()
		scratchErr := e.scratch.Close()
		e.closeErr = errors.Join(listenErr, scratchErr, e.teardown())
		if e.closeErr != nil {
			e.log.Error("engine close", zap.Error(e.closeErr))
			return
		}
		e.log.Info("engine closed")
	})
	return e.closeErr
}

// call invokes a symbol from the resolved table.
func (e *Engine) call(symbol string, args ...any) (gateway.Result, error) {
	f, ok := e.fns[symbol]
	if !ok {
		return gateway.Result{}, &fault.SymbolError{Symbol: symbol}
	}
	return f.Invoke(args...)
}

// scope returns a short-lived region for one call's temporaries.
func (e *Engine) scope(label string) *arena.Region {
	return e.scratch.Child(arena.WithChunkSize(callChunkSize), arena.WithLabel("engine/"+label))
}

// Update advances the simulation by dt split into steps collision steps.
func (e *Engine) Update(dt float32, steps int) error {
	_, err := e.call(symSystemUpdate, e.system, dt, int32(steps))
	return err
}

func (e *Engine) Version() *semver.Version       { return e.version }
func (e *Engine) Gateway() *gateway.Gateway      { return e.gw }
func (e *Engine) Dispatcher() *upcall.Dispatcher { return e.disp }
func (e *Engine) Layouts() *layout.Registry      { return e.layouts }
func (e *Engine) Families() *Families            { return e.fam }
func (e *Engine) Logger() *zap.Logger            { return e.log }

// UnknownLayouts lists layouts the library could not size during the
// self-check.
func (e *Engine) UnknownLayouts() []layout.Tag { return e.unknown }

// Stats reports the engine's long-lived region.
func (e *Engine) Stats() arena.Stats { return e.scratch.Stats() }
