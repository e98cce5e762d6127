// Package store defines the remote document store the synchronizers read and
// write. Every read is filtered by owner; owner is set on insert and never
// rewritten.
package store

import (
	"context"

	"studyplan/internal/domain"
)

type Store interface {
	ListTasks(ctx context.Context, owner string) ([]domain.Task, error)
	GetTask(ctx context.Context, owner, id string) (domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	// ReplaceTask overwrites the task matching t.ID and t.Owner; ErrNotFound otherwise.
	ReplaceTask(ctx context.Context, t domain.Task) error
	// DeleteTask succeeds when the task is already gone.
	DeleteTask(ctx context.Context, owner, id string) error
	// ToggleTask flips completed in a single store operation and returns the new record.
	ToggleTask(ctx context.Context, owner, id string) (domain.Task, error)

	ListTests(ctx context.Context, owner string) ([]domain.Test, error)
	GetTest(ctx context.Context, owner, id string) (domain.Test, error)
	// InsertTests writes all tests or none.
	InsertTests(ctx context.Context, tests []domain.Test) error
	DeleteTest(ctx context.Context, owner, id string) error
	DeleteTestsByOwner(ctx context.Context, owner string) (int, error)

	GetSyllabus(ctx context.Context, owner string) (domain.SyllabusTopics, error)
	PutSyllabus(ctx context.Context, s domain.SyllabusTopics) error

	// CreateAccount returns ErrConflict when the email is taken.
	CreateAccount(ctx context.Context, a domain.Account) error
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	GetAccount(ctx context.Context, id string) (domain.Account, error)

	Close() error
}

// EventLog is implemented by backends that keep an audit log of writes.
type EventLog interface {
	// EventsAfter returns events with ids above cursor in ascending order.
	// An empty owner matches every owner.
	EventsAfter(ctx context.Context, limit int, cursor int64, owner string) ([]domain.Event, error)
	LatestEventID(ctx context.Context, owner string) (int64, error)
	// LatestEvents returns the newest events first, below before when it is positive.
	LatestEvents(ctx context.Context, limit int, before int64, owner string) ([]domain.Event, error)
}
