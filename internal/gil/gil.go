// Package gil implements the global runtime lock guarding an embedded
// scripting runtime.
//
// At most one call chain holds the lock. Ownership travels in the
// context.Context returned by Acquire, so a chain that re-enters (native calls
// script calls native) passes the lock's own context back in and does not
// block. A context from a released acquisition no longer counts as owner.
package gil

import (
	"context"
	"sync"
	"sync/atomic"
)

type ownerKey struct {
	l *Lock
}

// Lock is a reentrant, context-carried mutual exclusion lock.
// The zero value is not usable; call New.
type Lock struct {
	sem   chan struct{}
	owner atomic.Uint64 // generation of the current holder, 0 when free
	gen   atomic.Uint64
}

// New creates an unlocked Lock
func New() *Lock {
	return &Lock{sem: make(chan struct{}, 1)}
}

// Held reports whether ctx carries the current ownership of l.
func (l *Lock) Held(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	g, ok := ctx.Value(ownerKey{l}).(uint64)
	return ok && g != 0 && l.owner.Load() == g
}

// Acquire takes the lock, or joins the caller's existing ownership when ctx
// already holds it. The returned release func is idempotent and must be
// called on every path; when the lock was joined it does nothing.
// Acquire fails only when ctx is done before the lock becomes free.
func (l *Lock) Acquire(ctx context.Context) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if l.Held(ctx) {
		return ctx, func() {}, nil
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx, func() {}, ctx.Err()
	}

	g := l.gen.Add(1)
	l.owner.Store(g)

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.owner.CompareAndSwap(g, 0)
			<-l.sem
		})
	}
	return context.WithValue(ctx, ownerKey{l}, g), release, nil
}

// Do runs fn while holding the lock. The lock is released when fn returns or
// panics.
func (l *Lock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
