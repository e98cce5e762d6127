package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyplan/internal/db"
	"studyplan/internal/domain"
)

var fixedNow = time.Date(2025, 7, 15, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	s.Now = func() time.Time { return fixedNow }
	t.Cleanup(func() { s.Close() })
	return s
}

func task(id, owner string, at time.Time) domain.Task {
	return domain.Task{
		ID: id, Owner: owner, Topic: "Topic " + id, ActivityType: domain.ActivityRevise,
		ScheduledAt: at, DurationMinutes: 30,
	}
}

func TestTasksAreScopedAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertTask(ctx, task("b", "alice", fixedNow.Add(2*time.Hour))))
	require.NoError(t, s.InsertTask(ctx, task("a", "alice", fixedNow.Add(time.Hour))))
	require.NoError(t, s.InsertTask(ctx, task("c", "bob", fixedNow)))

	list, err := s.ListTasks(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.True(t, list[0].ScheduledAt.Equal(fixedNow.Add(time.Hour)))

	_, err = s.GetTask(ctx, "bob", "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	empty, err := s.ListTasks(ctx, "carol")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestToggleAndReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertTask(ctx, task("a", "alice", fixedNow)))

	got, err := s.ToggleTask(ctx, "alice", "a")
	require.NoError(t, err)
	assert.True(t, got.Completed)
	got, err = s.ToggleTask(ctx, "alice", "a")
	require.NoError(t, err)
	assert.False(t, got.Completed)

	_, err = s.ToggleTask(ctx, "bob", "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got.Topic = "Integrals"
	require.NoError(t, s.ReplaceTask(ctx, got))
	again, err := s.GetTask(ctx, "alice", "a")
	require.NoError(t, err)
	assert.Equal(t, "Integrals", again.Topic)

	got.Owner = "bob"
	assert.ErrorIs(t, s.ReplaceTask(ctx, got), domain.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertTask(ctx, task("a", "alice", fixedNow)))
	require.NoError(t, s.DeleteTask(ctx, "alice", "a"))
	require.NoError(t, s.DeleteTask(ctx, "alice", "a"))
	require.NoError(t, s.DeleteTest(ctx, "alice", "missing"))
}

func TestInsertTestsIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertTests(ctx, []domain.Test{
		{ID: "t1", Owner: "alice", TestName: "Unit 1", StartDate: "2025-03-01", EndDate: "2025-03-02"},
	}))

	// t1 collides on the primary key, so the whole batch must roll back.
	err := s.InsertTests(ctx, []domain.Test{
		{ID: "t2", Owner: "alice", TestName: "Unit 2", StartDate: "2025-04-01", EndDate: "2025-04-02"},
		{ID: "t1", Owner: "alice", TestName: "Dup", StartDate: "2025-05-01", EndDate: "2025-05-02"},
	})
	require.Error(t, err)

	list, err := s.ListTests(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Unit 1", list[0].TestName)

	n, err := s.DeleteTestsByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyllabusReplacedWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.GetSyllabus(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.PutSyllabus(ctx, domain.SyllabusTopics{Owner: "alice", Topics: []string{"a", "b"}, UpdatedAt: fixedNow}))
	require.NoError(t, s.PutSyllabus(ctx, domain.SyllabusTopics{Owner: "alice", Topics: []string{"c"}, UpdatedAt: fixedNow}))
	got, err := s.GetSyllabus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got.Topics)
}

func TestAccountsAndEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := domain.Account{ID: "u1", Email: "a@example.com", PasswordHash: "x", CreatedAt: fixedNow}
	require.NoError(t, s.CreateAccount(ctx, acct))
	assert.ErrorIs(t, s.CreateAccount(ctx, domain.Account{ID: "u2", Email: "a@example.com", PasswordHash: "y", CreatedAt: fixedNow}), domain.ErrConflict)

	got, err := s.GetAccountByEmail(ctx, "A@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	require.NoError(t, s.InsertTask(ctx, task("a", "u1", fixedNow)))
	latest, err := s.LatestEventID(ctx, "u1")
	require.NoError(t, err)
	evts, err := s.EventsAfter(ctx, 10, 0, "u1")
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "account.created", evts[0].Type)
	assert.Equal(t, "task.created", evts[1].Type)
	assert.Equal(t, latest, evts[1].ID)

	recent, err := s.LatestEvents(ctx, 1, 0, "")
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "task.created", recent[0].Type)

	older, err := s.LatestEvents(ctx, 5, recent[0].ID, "u1")
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "account.created", older[0].Type)
}
