// Package engine keeps a signed-in owner's tasks, tests and syllabus in step
// with the store: cached reads, validated writes, and a refresh after every
// write so callers always see their own changes.
package engine

import (
	"context"
	"log"
	"time"

	"studyplan/internal/cache"
	"studyplan/internal/domain"
	"studyplan/internal/events"
	"studyplan/internal/identity"
	"studyplan/internal/store"
	"studyplan/internal/views"
)

type Options struct {
	Freshness time.Duration
	Timeout   time.Duration
	Strategy  Strategy
	Hub       *events.Hub
	Logger    *log.Logger
	Now       func() time.Time
	// Prefetch loads the task list in the background on sign-in.
	Prefetch bool
}

// Planner composes the synchronizers for one identity session. Each planner
// owns its caches; nothing is shared between planners.
type Planner struct {
	Tasks    *TaskSync
	Tests    *TestSync
	Syllabus *SyllabusSync

	session *identity.Session
	unsub   func()
	rt      *runtime
}

// runtime is the state the synchronizers share.
type runtime struct {
	store    store.Store
	hub      *events.Hub
	logger   *log.Logger
	now      func() time.Time
	guard    *inflight
	session  *identity.Session
	prefetch bool
}

func (r *runtime) publish(owner, collection, action, entityID string) uint64 {
	if r.hub == nil {
		return 0
	}
	return r.hub.Publish(events.Change{
		Owner:      owner,
		Collection: collection,
		Action:     action,
		EntityID:   entityID,
		At:         r.now().UTC(),
	})
}

func New(st store.Store, session *identity.Session, opts Options) *Planner {
	if session == nil {
		session = identity.NewSession()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Freshness <= 0 {
		opts.Freshness = cache.DefaultFreshness
	}
	rt := &runtime{
		store:    store.Guard(st, opts.Timeout),
		hub:      opts.Hub,
		logger:   opts.Logger,
		now:      opts.Now,
		guard:    &inflight{},
		session:  session,
		prefetch: opts.Prefetch,
	}
	p := &Planner{
		Tasks:    newTaskSync(rt, opts),
		Tests:    newTestSync(rt, opts),
		Syllabus: newSyllabusSync(rt, opts),
		session:  session,
		rt:       rt,
	}
	p.unsub = session.Subscribe(p.onSession)
	if owner, ok := session.Owner(); ok {
		p.onSession(identity.State{Owner: owner, SignedIn: true})
	}
	return p
}

// Session returns the identity session driving the planner.
func (p *Planner) Session() *identity.Session { return p.session }

func (p *Planner) onSession(st identity.State) {
	if !st.SignedIn {
		p.Tasks.stop()
		p.Tests.stop()
		p.Syllabus.stop()
		return
	}
	p.Tasks.start(st.Owner)
	p.Tests.start(st.Owner)
	p.Syllabus.start(st.Owner)
	if p.rt.prefetch {
		go func(owner string) {
			if _, err := p.Tasks.List(context.Background(), owner); err != nil {
				p.rt.logger.Printf("prefetch tasks for %s failed: %v", owner, err)
			}
		}(st.Owner)
	}
}

// Close detaches from the session and stops background refreshers.
// The underlying store is left open.
func (p *Planner) Close() {
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	p.Tasks.stop()
	p.Tests.stop()
	p.Syllabus.stop()
}

// Dashboard is the summary shown on the home screen.
type Dashboard struct {
	Upcoming         *domain.Test  `json:"upcoming,omitempty"`
	DaysUntil        int           `json:"days_until"`
	Today            []domain.Task `json:"today"`
	Incomplete       int           `json:"incomplete"`
	Completed        int           `json:"completed"`
	PlannedMinutes   int           `json:"planned_minutes"`
	TopicsInSyllabus int           `json:"topics_in_syllabus"`
}

// Dashboard gathers the owner's lists and derives the summary views.
func (p *Planner) Dashboard(ctx context.Context, owner string, loc *time.Location) (Dashboard, error) {
	if loc == nil {
		loc = time.Local
	}
	now := p.rt.now().In(loc)
	tasks, err := p.Tasks.List(ctx, owner)
	if err != nil {
		return Dashboard{}, err
	}
	tests, err := p.Tests.List(ctx, owner)
	if err != nil {
		return Dashboard{}, err
	}
	syl, _, err := p.Syllabus.Get(ctx, owner)
	if err != nil {
		return Dashboard{}, err
	}
	incomplete, completed := views.PartitionByCompletion(tasks)
	days := views.GroupByCalendarDay(tasks, loc)
	d := Dashboard{
		Today:            days[now.Format(domain.DateLayout)],
		Incomplete:       len(incomplete),
		Completed:        len(completed),
		PlannedMinutes:   views.TotalMinutes(incomplete),
		TopicsInSyllabus: len(syl.Topics),
	}
	if d.Today == nil {
		d.Today = []domain.Task{}
	}
	if next, ok := views.FindUpcoming(tests, now); ok {
		d.Upcoming = &next
		d.DaysUntil = views.DaysUntil(next, now)
	}
	return d, nil
}
