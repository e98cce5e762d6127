package engine

import (
	"context"

	"studyplan/internal/domain"
)

// syncBase wires a collection to its refresher and the shared runtime.
type syncBase[T any] struct {
	rt        *runtime
	name      string
	coll      *collection[T]
	refresher Refresher
}

func newSyncBase[T any](rt *runtime, opts Options, name string, coll *collection[T]) syncBase[T] {
	b := syncBase[T]{rt: rt, name: name, coll: coll}
	b.refresher = newRefresher(opts.Strategy, rt.hub, name, func(ctx context.Context, owner string) error {
		_, err := coll.refresh(ctx, owner)
		return err
	}, rt.logger)
	return b
}

func (b *syncBase[T]) start(owner string) {
	b.coll.show(owner)
	b.refresher.Start(owner)
}

func (b *syncBase[T]) stop() {
	b.refresher.Stop()
	b.coll.reset()
}

// converge publishes a committed write and waits until the visible list has caught up.
func (b *syncBase[T]) converge(ctx context.Context, owner, action, entityID string) error {
	b.coll.written()
	seq := b.rt.publish(owner, b.name, action, entityID)
	if err := b.refresher.AfterWrite(ctx, owner, seq); err != nil {
		return &domain.RefreshError{Op: b.name + " after " + action, Err: err}
	}
	return nil
}

// refreshCurrent force-reads the list for the signed-in owner.
func (b *syncBase[T]) refreshCurrent(ctx context.Context) ([]T, error) {
	owner, ok := b.rt.session.Owner()
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	return b.coll.refresh(ctx, owner)
}

// Visible returns the list last shown to the signed-in owner.
func (b *syncBase[T]) Visible() []T {
	return b.coll.snapshot()
}

func requireOwner(owner string) error {
	if owner == "" {
		return domain.ErrUnauthorized
	}
	return nil
}
