package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyplan/internal/domain"
)

type slowStore struct {
	Store
	err error
}

func (s slowStore) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGuardTimeoutIsTransient(t *testing.T) {
	g := Guard(slowStore{}, 20*time.Millisecond)
	_, err := g.ListTasks(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuardPassesDomainErrors(t *testing.T) {
	g := Guard(slowStore{err: domain.ErrNotFound}, time.Second)
	_, err := g.ListTasks(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, domain.IsTransient(err))

	g = Guard(slowStore{err: errors.New("disk I/O error")}, time.Second)
	_, err = g.ListTasks(context.Background(), "alice")
	assert.True(t, domain.IsTransient(err))
}

func TestGuardWithoutBackend(t *testing.T) {
	var g Guarded
	g.Timeout = time.Second
	_, err := g.ListTasks(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
