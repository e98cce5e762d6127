package engine

import (
	"context"

	"github.com/google/uuid"

	"studyplan/internal/cache"
	"studyplan/internal/domain"
	"studyplan/internal/events"
	"studyplan/internal/views"
)

type TestSync struct {
	syncBase[domain.Test]
}

func newTestSync(rt *runtime, opts Options) *TestSync {
	coll := newCollection("list tests", cache.New[domain.Test](opts.Freshness, opts.Now), rt.store.ListTests, views.SortTests)
	return &TestSync{syncBase: newSyncBase(rt, opts, events.CollectionTests, coll)}
}

// List returns the owner's tests ordered by start date.
func (s *TestSync) List(ctx context.Context, owner string) ([]domain.Test, error) {
	return s.coll.list(ctx, owner)
}

func (s *TestSync) Refresh(ctx context.Context) ([]domain.Test, error) {
	return s.refreshCurrent(ctx)
}

func (s *TestSync) Get(ctx context.Context, owner, id string) (domain.Test, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Test{}, err
	}
	return s.rt.store.GetTest(ctx, owner, id)
}

// Upcoming returns the next test that has not ended as of now.
func (s *TestSync) Upcoming(ctx context.Context, owner string) (domain.Test, bool, error) {
	tests, err := s.List(ctx, owner)
	if err != nil {
		return domain.Test{}, false, err
	}
	t, ok := views.FindUpcoming(tests, s.rt.now())
	return t, ok, nil
}

func (s *TestSync) Create(ctx context.Context, owner string, draft domain.TestDraft) (domain.Test, error) {
	created, err := s.insert(ctx, owner, "create test", []domain.TestDraft{draft})
	if len(created) == 0 {
		return domain.Test{}, err
	}
	return created[0], err
}

// ImportBatch creates every draft in one store write; one invalid draft
// rejects the whole batch before anything is written.
func (s *TestSync) ImportBatch(ctx context.Context, owner string, drafts []domain.TestDraft) ([]domain.Test, error) {
	return s.insert(ctx, owner, "import tests", drafts)
}

func (s *TestSync) insert(ctx context.Context, owner, op string, drafts []domain.TestDraft) ([]domain.Test, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, domain.Invalid("tests", "at least one test is required")
	}
	tests := make([]domain.Test, 0, len(drafts))
	target := ""
	for i, draft := range drafts {
		d := draft.Normalize()
		if err := d.Validate(); err != nil {
			if len(drafts) > 1 {
				return nil, indexed("tests", i, err)
			}
			return nil, err
		}
		tests = append(tests, domain.Test{
			ID:        uuid.NewString(),
			Owner:     owner,
			TestName:  d.TestName,
			StartDate: d.StartDate,
			EndDate:   d.EndDate,
			Syllabus:  d.Syllabus,
		})
		target += d.TestName + "@" + d.StartDate + ";"
	}
	release, err := s.rt.guard.acquire(owner, op, target)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.rt.store.InsertTests(ctx, tests); err != nil {
		return nil, err
	}
	action := "create"
	entityID := tests[0].ID
	if len(tests) > 1 {
		action, entityID = "import", ""
	}
	return tests, s.converge(ctx, owner, action, entityID)
}

// Delete removes one test; a missing test is not an error.
func (s *TestSync) Delete(ctx context.Context, owner, id string) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	release, err := s.rt.guard.acquire(owner, "delete test", id)
	if err != nil {
		return err
	}
	defer release()

	if err := s.rt.store.DeleteTest(ctx, owner, id); err != nil {
		return err
	}
	return s.converge(ctx, owner, "delete", id)
}

// ClearAll deletes every test of the owner and reports how many were removed.
// Callers are expected to have confirmed the action with the user.
func (s *TestSync) ClearAll(ctx context.Context, owner string) (int, error) {
	if err := requireOwner(owner); err != nil {
		return 0, err
	}
	release, err := s.rt.guard.acquire(owner, "clear tests", "*")
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := s.rt.store.DeleteTestsByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	return n, s.converge(ctx, owner, "clear", "")
}
