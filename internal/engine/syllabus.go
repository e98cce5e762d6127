package engine

import (
	"context"
	"errors"
	"strings"

	"studyplan/internal/cache"
	"studyplan/internal/domain"
	"studyplan/internal/events"
)

// SyllabusSync caches the owner's topic set as a list of at most one entry.
type SyllabusSync struct {
	syncBase[domain.SyllabusTopics]
}

func newSyllabusSync(rt *runtime, opts Options) *SyllabusSync {
	fetch := func(ctx context.Context, owner string) ([]domain.SyllabusTopics, error) {
		syl, err := rt.store.GetSyllabus(ctx, owner)
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.SyllabusTopics{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []domain.SyllabusTopics{syl}, nil
	}
	coll := newCollection("get syllabus", cache.New[domain.SyllabusTopics](opts.Freshness, opts.Now), fetch, func([]domain.SyllabusTopics) {})
	return &SyllabusSync{syncBase: newSyncBase(rt, opts, events.CollectionSyllabus, coll)}
}

// Get returns the owner's topics and whether a syllabus was ever saved.
func (s *SyllabusSync) Get(ctx context.Context, owner string) (domain.SyllabusTopics, bool, error) {
	items, err := s.coll.list(ctx, owner)
	if err != nil {
		return domain.SyllabusTopics{}, false, err
	}
	if len(items) == 0 {
		return domain.SyllabusTopics{Owner: owner, Topics: []string{}}, false, nil
	}
	syl := items[0]
	syl.Topics = append([]string(nil), syl.Topics...)
	return syl, true, nil
}

// SetTopics replaces the owner's topic set wholesale.
func (s *SyllabusSync) SetTopics(ctx context.Context, owner string, topics []string) (domain.SyllabusTopics, error) {
	if err := requireOwner(owner); err != nil {
		return domain.SyllabusTopics{}, err
	}
	release, err := s.rt.guard.acquire(owner, "set syllabus", "")
	if err != nil {
		return domain.SyllabusTopics{}, err
	}
	defer release()

	syl := domain.SyllabusTopics{
		Owner:     owner,
		Topics:    CleanTopics(topics),
		UpdatedAt: storedTime(s.rt.now()),
	}
	if err := s.rt.store.PutSyllabus(ctx, syl); err != nil {
		return domain.SyllabusTopics{}, err
	}
	return syl, s.converge(ctx, owner, "set", owner)
}

// CleanTopics trims topics, drops blanks and keeps the first of any duplicates.
func CleanTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
