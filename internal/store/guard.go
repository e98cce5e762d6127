package store

import (
	"context"
	"errors"
	"time"

	"studyplan/internal/domain"
)

const DefaultTimeout = 10 * time.Second

// Guarded bounds every call to the wrapped store with a timeout and reports
// I/O failures as domain.TransientError. Domain errors pass through unchanged.
type Guarded struct {
	Inner   Store
	Timeout time.Duration
}

func Guard(s Store, timeout time.Duration) Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Guarded{Inner: s, Timeout: timeout}
}

// Classify maps a raw backend error onto the domain taxonomy.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrNotConfigured),
		errors.Is(err, domain.ErrUnauthorized),
		domain.IsValidation(err),
		domain.IsTransient(err):
		return err
	}
	return domain.Transient(op, err)
}

func call[T any](g Guarded, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	if g.Inner == nil {
		var zero T
		return zero, domain.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()
	v, err := fn(ctx)
	return v, Classify(op, err)
}

func exec(g Guarded, ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := call(g, ctx, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (g Guarded) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	return call(g, ctx, "list tasks", func(ctx context.Context) ([]domain.Task, error) {
		return g.Inner.ListTasks(ctx, owner)
	})
}

func (g Guarded) GetTask(ctx context.Context, owner, id string) (domain.Task, error) {
	return call(g, ctx, "get task", func(ctx context.Context) (domain.Task, error) {
		return g.Inner.GetTask(ctx, owner, id)
	})
}

func (g Guarded) InsertTask(ctx context.Context, t domain.Task) error {
	return exec(g, ctx, "insert task", func(ctx context.Context) error { return g.Inner.InsertTask(ctx, t) })
}

func (g Guarded) ReplaceTask(ctx context.Context, t domain.Task) error {
	return exec(g, ctx, "replace task", func(ctx context.Context) error { return g.Inner.ReplaceTask(ctx, t) })
}

func (g Guarded) DeleteTask(ctx context.Context, owner, id string) error {
	return exec(g, ctx, "delete task", func(ctx context.Context) error { return g.Inner.DeleteTask(ctx, owner, id) })
}

func (g Guarded) ToggleTask(ctx context.Context, owner, id string) (domain.Task, error) {
	return call(g, ctx, "toggle task", func(ctx context.Context) (domain.Task, error) {
		return g.Inner.ToggleTask(ctx, owner, id)
	})
}

func (g Guarded) ListTests(ctx context.Context, owner string) ([]domain.Test, error) {
	return call(g, ctx, "list tests", func(ctx context.Context) ([]domain.Test, error) {
		return g.Inner.ListTests(ctx, owner)
	})
}

func (g Guarded) GetTest(ctx context.Context, owner, id string) (domain.Test, error) {
	return call(g, ctx, "get test", func(ctx context.Context) (domain.Test, error) {
		return g.Inner.GetTest(ctx, owner, id)
	})
}

func (g Guarded) InsertTests(ctx context.Context, tests []domain.Test) error {
	return exec(g, ctx, "insert tests", func(ctx context.Context) error { return g.Inner.InsertTests(ctx, tests) })
}

func (g Guarded) DeleteTest(ctx context.Context, owner, id string) error {
	return exec(g, ctx, "delete test", func(ctx context.Context) error { return g.Inner.DeleteTest(ctx, owner, id) })
}

func (g Guarded) DeleteTestsByOwner(ctx context.Context, owner string) (int, error) {
	return call(g, ctx, "clear tests", func(ctx context.Context) (int, error) {
		return g.Inner.DeleteTestsByOwner(ctx, owner)
	})
}

func (g Guarded) GetSyllabus(ctx context.Context, owner string) (domain.SyllabusTopics, error) {
	return call(g, ctx, "get syllabus", func(ctx context.Context) (domain.SyllabusTopics, error) {
		return g.Inner.GetSyllabus(ctx, owner)
	})
}

func (g Guarded) PutSyllabus(ctx context.Context, s domain.SyllabusTopics) error {
	return exec(g, ctx, "put syllabus", func(ctx context.Context) error { return g.Inner.PutSyllabus(ctx, s) })
}

func (g Guarded) CreateAccount(ctx context.Context, a domain.Account) error {
	return exec(g, ctx, "create account", func(ctx context.Context) error { return g.Inner.CreateAccount(ctx, a) })
}

func (g Guarded) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	return call(g, ctx, "get account", func(ctx context.Context) (domain.Account, error) {
		return g.Inner.GetAccountByEmail(ctx, email)
	})
}

func (g Guarded) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return call(g, ctx, "get account", func(ctx context.Context) (domain.Account, error) {
		return g.Inner.GetAccount(ctx, id)
	})
}

func (g Guarded) Close() error {
	if g.Inner == nil {
		return nil
	}
	return g.Inner.Close()
}
