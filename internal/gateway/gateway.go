package gateway

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/san-kum/jphbridge/internal/fault"
	"github.com/san-kum/jphbridge/internal/layout"
	"github.com/san-kum/jphbridge/internal/native"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Gateway resolves and caches downcalls against one library.
type Gateway struct {
	lib native.Library
	log *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	fns   map[string]*Function
}

type Option func(*Gateway)

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

func New(lib native.Library, opts ...Option) *Gateway {
	g := &Gateway{
		lib: lib,
		log: zap.NewNop(),
		fns: make(map[string]*Function),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Library() native.Library { return g.lib }

// Resolve binds symbol to the given signature. The first successful
// resolution of a symbol is cached for the life of the gateway; concurrent
// first resolutions share a single lookup. Asking again with a different
// signature is a fault.ErrSignatureMismatch.
func (g *Gateway) Resolve(symbol string, ret layout.Kind, args ...layout.Kind) (*Function, error) {
	sig := Signature{Ret: ret, Args: slices.Clone(args)}
	if reason := sig.check(); reason != "" {
		return nil, &fault.SignatureError{Symbol: symbol, Reason: reason}
	}

	if f := g.cached(symbol); f != nil {
		return matching(f, sig)
	}

	v, err, _ := g.group.Do(symbol, func() (any, error) {
		if f := g.cached(symbol); f != nil {
			return f, nil
		}
		return g.bind(symbol, sig)
	})
	if err != nil {
		return nil, err
	}
	return matching(v.(*Function), sig)
}

// MustResolve is Resolve for startup paths where a missing symbol means the
// binary cannot run.
func (g *Gateway) MustResolve(symbol string, ret layout.Kind, args ...layout.Kind) *Function {
	f, err := g.Resolve(symbol, ret, args...)
	if err != nil {
		panic(err)
	}
	return f
}

func (g *Gateway) cached(symbol string) *Function {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fns[symbol]
}

func (g *Gateway) bind(symbol string, sig Signature) (*Function, error) {
	addr, err := g.lib.Lookup(symbol)
	if err != nil {
		g.log.Error("symbol lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, &fault.SymbolError{Symbol: symbol, Err: err}
	}
	fn, err := g.lib.Bind(addr, sig.FuncType())
	if err != nil {
		return nil, &fault.SignatureError{Symbol: symbol, Reason: err.Error()}
	}

	f := &Function{
		symbol: symbol,
		addr:   addr,
		sig:    sig,
		fn:     fn,
		args:   newArgPool(len(sig.Args)),
		calls:  new(atomic.Uint64),
		log:    g.log,
	}
	g.mu.Lock()
	g.fns[symbol] = f
	g.mu.Unlock()

	g.log.Debug("resolved symbol",
		zap.String("symbol", symbol),
		zap.Uintptr("addr", addr),
		zap.Stringer("signature", sig))
	return f, nil
}

func matching(f *Function, sig Signature) (*Function, error) {
	if !f.sig.Equal(sig) {
		return nil, &fault.SignatureError{
			Symbol: f.symbol,
			Reason: fmt.Sprintf("resolved as %s, requested as %s", f.sig, sig),
		}
	}
	return f, nil
}

// Symbols returns every resolved function, ordered by name.
func (g *Gateway) Symbols() []*Function {
	g.mu.RLock()
	out := make([]*Function, 0, len(g.fns))
	for _, f := range g.fns {
		out = append(out, f)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].symbol < out[j].symbol })
	return out
}
