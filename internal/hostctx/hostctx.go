// Package hostctx tracks whether the host runtime that owns page-side
// components is still alive. Once the host is torn down, persistence calls
// fail with ErrContextInvalidated and components tear themselves down.
package hostctx

import (
	"errors"
	"sync"
)

// ErrContextInvalidated means the host runtime went away. The only recovery is reloading the page.
var ErrContextInvalidated = errors.New("host context invalidated; reload the page")

// Probe reports host liveness.
type Probe interface {
	// Check returns ErrContextInvalidated once the host is gone.
	Check() error
}

// Runtime is a Probe that can be invalidated exactly once.
type Runtime struct {
	mu        sync.Mutex
	done      chan struct{}
	nextID    int
	callbacks map[int]func()
}

// New returns a live Runtime.
func New() *Runtime {
	return &Runtime{
		done:      make(chan struct{}),
		callbacks: make(map[int]func()),
	}
}

// Check implements Probe.
func (r *Runtime) Check() error {
	select {
	case <-r.done:
		return ErrContextInvalidated
	default:
		return nil
	}
}

// Valid reports whether the host is still alive.
func (r *Runtime) Valid() bool {
	return r.Check() == nil
}

// Done is closed when the runtime is invalidated.
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// Invalidate marks the host as gone and runs every registered callback once.
// Later calls are no-ops.
func (r *Runtime) Invalidate() {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return
	default:
	}
	close(r.done)
	callbacks := r.callbacks
	r.callbacks = nil
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// OnInvalidate registers fn to run when the runtime is invalidated. If it
// already is, fn runs immediately. The returned function unregisters fn.
func (r *Runtime) OnInvalidate(fn func()) (cancel func()) {
	r.mu.Lock()
	if r.callbacks == nil {
		r.mu.Unlock()
		fn()
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.callbacks[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.callbacks, id)
	}
}

// Always is a Probe for hosts that never go away, such as the CLI.
type Always struct{}

// Check implements Probe.
func (Always) Check() error { return nil }

// Invalidatable is implemented by probes that can notify about invalidation.
type Invalidatable interface {
	Probe
	OnInvalidate(fn func()) (cancel func())
}

// Subscribe registers fn with p when p supports notifications. Otherwise it returns a no-op cancel.
func Subscribe(p Probe, fn func()) (cancel func()) {
	if inv, ok := p.(Invalidatable); ok {
		return inv.OnInvalidate(fn)
	}
	return func() {}
}
