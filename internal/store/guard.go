package store

import (
	"context"

	"github.com/xkilldash9x/punchclock/internal/hostctx"
)

// Guarded fails every call with hostctx.ErrContextInvalidated once the probe reports the host gone.
type Guarded struct {
	inner Store
	probe hostctx.Probe
}

// Guard wraps inner so every call first checks host liveness.
func Guard(inner Store, probe hostctx.Probe) *Guarded {
	return &Guarded{inner: inner, probe: probe}
}

// Probe exposes the liveness probe so components can subscribe to invalidation.
func (g *Guarded) Probe() hostctx.Probe { return g.probe }

func (g *Guarded) Get(ctx context.Context, key string) ([]byte, error) {
	if err := g.probe.Check(); err != nil {
		return nil, err
	}
	return g.inner.Get(ctx, key)
}

func (g *Guarded) Set(ctx context.Context, key string, value []byte) error {
	if err := g.probe.Check(); err != nil {
		return err
	}
	return g.inner.Set(ctx, key, value)
}

func (g *Guarded) Remove(ctx context.Context, keys ...string) error {
	if err := g.probe.Check(); err != nil {
		return err
	}
	return g.inner.Remove(ctx, keys...)
}

func (g *Guarded) Clear(ctx context.Context) error {
	if err := g.probe.Check(); err != nil {
		return err
	}
	return g.inner.Clear(ctx)
}

// Close always reaches the inner store so resources are released after invalidation.
func (g *Guarded) Close() error {
	return g.inner.Close()
}
