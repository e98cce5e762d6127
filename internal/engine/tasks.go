package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studyplan/internal/cache"
	"studyplan/internal/domain"
	"studyplan/internal/events"
	"studyplan/internal/views"
)

type TaskSync struct {
	syncBase[domain.Task]
}

func newTaskSync(rt *runtime, opts Options) *TaskSync {
	coll := newCollection("list tasks", cache.New[domain.Task](opts.Freshness, opts.Now), rt.store.ListTasks, views.SortTasks)
	return &TaskSync{syncBase: newSyncBase(rt, opts, events.CollectionTasks, coll)}
}

// List returns the owner's tasks ordered by scheduled time. A signed-out
// caller (empty owner) gets an empty list.
func (s *TaskSync) List(ctx context.Context, owner string) ([]domain.Task, error) {
	return s.coll.list(ctx, owner)
}

// Refresh re-reads the signed-in owner's tasks, bypassing the cache.
func (s *TaskSync) Refresh(ctx context.Context) ([]domain.Task, error) {
	return s.refreshCurrent(ctx)
}

func (s *TaskSync) Get(ctx context.Context, owner, id string) (domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Task{}, err
	}
	return s.rt.store.GetTask(ctx, owner, id)
}

func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Create validates the draft, stores a new incomplete task and waits for the
// visible list to include it. On a refresh failure the created task is still
// returned together with the error.
func (s *TaskSync) Create(ctx context.Context, owner string, draft domain.TaskDraft) (domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Task{}, err
	}
	d := draft.Normalize()
	if err := d.Validate(); err != nil {
		return domain.Task{}, err
	}
	release, err := s.rt.guard.acquire(owner, "create task", d.Topic+"@"+d.ScheduledAt.UTC().Format(time.RFC3339))
	if err != nil {
		return domain.Task{}, err
	}
	defer release()

	t := domain.Task{
		ID:              uuid.NewString(),
		Owner:           owner,
		Subject:         d.Subject,
		Topic:           d.Topic,
		ActivityType:    d.ActivityType,
		ScheduledAt:     storedTime(d.ScheduledAt),
		DurationMinutes: d.DurationMinutes,
		Notes:           d.Notes,
		Completed:       false,
	}
	if err := s.rt.store.InsertTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	return t, s.converge(ctx, owner, "create", t.ID)
}

// Update replaces the whole task record. The owner is always the caller's.
func (s *TaskSync) Update(ctx context.Context, owner string, t domain.Task) (domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Task{}, err
	}
	d := domain.TaskDraft{
		Subject:         t.Subject,
		Topic:           t.Topic,
		ActivityType:    t.ActivityType,
		ScheduledAt:     t.ScheduledAt,
		DurationMinutes: t.DurationMinutes,
		Notes:           t.Notes,
	}.Normalize()
	t.Subject, t.Topic, t.ActivityType, t.Notes = d.Subject, d.Topic, d.ActivityType, d.Notes
	t.ScheduledAt = storedTime(t.ScheduledAt)
	t.Owner = owner
	if err := domain.ValidateTask(t); err != nil {
		return domain.Task{}, err
	}
	release, err := s.rt.guard.acquire(owner, "update task", t.ID)
	if err != nil {
		return domain.Task{}, err
	}
	defer release()

	if err := s.rt.store.ReplaceTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	return t, s.converge(ctx, owner, "update", t.ID)
}

// Delete removes the task; deleting a missing task is not an error.
func (s *TaskSync) Delete(ctx context.Context, owner, id string) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	release, err := s.rt.guard.acquire(owner, "delete task", id)
	if err != nil {
		return err
	}
	defer release()

	if err := s.rt.store.DeleteTask(ctx, owner, id); err != nil {
		return err
	}
	return s.converge(ctx, owner, "delete", id)
}

// ToggleCompletion flips completed with a single store-side update, so the
// result never depends on a cached copy of the task.
func (s *TaskSync) ToggleCompletion(ctx context.Context, owner, id string) (domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Task{}, err
	}
	release, err := s.rt.guard.acquire(owner, "toggle task", id)
	if err != nil {
		return domain.Task{}, err
	}
	defer release()

	t, err := s.rt.store.ToggleTask(ctx, owner, id)
	if err != nil {
		return domain.Task{}, err
	}
	return t, s.converge(ctx, owner, "toggle", id)
}

// ScheduleSuggested lays suggested topics out back to back from start and
// creates one task per suggestion. Every suggestion is validated before the
// first write; tasks created before a store failure are returned with a
// *domain.PartialWriteError naming the suggestion that failed.
func (s *TaskSync) ScheduleSuggested(ctx context.Context, owner, subject string, start time.Time, activity domain.ActivityType, suggestions []domain.SuggestedTask) ([]domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if len(suggestions) == 0 {
		return nil, domain.Invalid("suggestions", "at least one suggestion is required")
	}
	if start.IsZero() {
		return nil, domain.Invalid("start", "is required")
	}
	drafts := make([]domain.TaskDraft, 0, len(suggestions))
	at := start
	for i, sg := range suggestions {
		d := domain.TaskDraft{
			Subject:         subject,
			Topic:           sg.Topic,
			ActivityType:    activity,
			ScheduledAt:     at,
			DurationMinutes: sg.DurationMinutes,
		}.Normalize()
		if err := d.Validate(); err != nil {
			return nil, indexed("suggestions", i, err)
		}
		drafts = append(drafts, d)
		at = at.Add(time.Duration(d.DurationMinutes) * time.Minute)
	}
	release, err := s.rt.guard.acquire(owner, "schedule tasks", subject+"@"+start.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer release()

	created := make([]domain.Task, 0, len(drafts))
	var writeErr error
	for _, d := range drafts {
		t := domain.Task{
			ID:              uuid.NewString(),
			Owner:           owner,
			Subject:         d.Subject,
			Topic:           d.Topic,
			ActivityType:    d.ActivityType,
			ScheduledAt:     storedTime(d.ScheduledAt),
			DurationMinutes: d.DurationMinutes,
		}
		if writeErr = s.rt.store.InsertTask(ctx, t); writeErr != nil {
			break
		}
		created = append(created, t)
	}
	if len(created) == 0 {
		return nil, writeErr
	}
	if writeErr != nil {
		writeErr = &domain.PartialWriteError{Index: len(created), Err: writeErr}
	}
	if err := s.converge(ctx, owner, "schedule", ""); err != nil {
		return created, errors.Join(writeErr, err)
	}
	return created, writeErr
}

// indexed prefixes a validation failure with the position of the offending entry.
func indexed(field string, i int, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return domain.Invalid(fmt.Sprintf("%s[%d].%s", field, i, verr.Field), verr.Reason)
	}
	return err
}
