// Package consistency orders writes across the record store, the ancestry
// graph and the snapshot cache.
//
// Every write runs in three stages: commit the record, update the graph,
// invalidate snapshots. Only the first stage decides success. The other two
// are best-effort; their failures go to a FailureReporter and never roll the
// commit back.
//
// With a Propagator, stage 2 is only enqueued when stage 3 runs, so snapshots
// may be dropped before the graph catches up. Snapshots hold record fields
// only, never parentage, so a refill in that window is still current.
package consistency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/metrics"
	"noahs-ark/backend/internal/records"
	"noahs-ark/backend/internal/snapshot"
	arkerrors "noahs-ark/backend/pkg/errors"
	"noahs-ark/backend/pkg/logger"
)

const (
	defaultInlineRetries  = 3
	defaultInlineInterval = 50 * time.Millisecond
)

// Coordinator runs record writes through the three stages. Each stage is
// also exposed on its own so callers (and tests) can drive them separately.
type Coordinator struct {
	records    records.Store
	graph      GraphIndex
	cache      *snapshot.Cache
	reporter   FailureReporter
	propagator *Propagator
	logger     *zap.Logger

	inlineRetries  int
	inlineInterval time.Duration

	familyLocks sync.Map // genealogy.FamilyID -> *sync.Mutex
}

// Option configures a Coordinator
type Option func(*Coordinator)

func WithReporter(r FailureReporter) Option {
	return func(c *Coordinator) {
		c.reporter = r
	}
}

// WithPropagator hands graph plans to an async worker pool instead of
// applying them before the write returns
func WithPropagator(p *Propagator) Option {
	return func(c *Coordinator) {
		c.propagator = p
	}
}

// WithInlineRetry bounds the constant backoff used for inline graph updates
func WithInlineRetry(retries int, interval time.Duration) Option {
	return func(c *Coordinator) {
		c.inlineRetries = retries
		c.inlineInterval = interval
	}
}

func NewCoordinator(store records.Store, graph GraphIndex, cache *snapshot.Cache, opts ...Option) *Coordinator {
	c := &Coordinator{
		records:        store,
		graph:          graph,
		cache:          cache,
		logger:         logger.Component("consistency"),
		inlineRetries:  defaultInlineRetries,
		inlineInterval: defaultInlineInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reporter == nil {
		c.reporter = NewLogReporter()
	}
	return c
}

// Stage 1

// CommitPerson stores a new person and returns the graph plan it implies
func (c *Coordinator) CommitPerson(ctx context.Context, person genealogy.Person) (*genealogy.Person, GraphPlan, error) {
	created, err := c.records.CreatePerson(ctx, person)
	if err != nil {
		return nil, GraphPlan{}, err
	}
	return created, planForPerson(created), nil
}

// CommitPersonUpdate applies update. Person fields never move graph edges.
func (c *Coordinator) CommitPersonUpdate(ctx context.Context, id genealogy.PersonID, update genealogy.PersonUpdate) (*genealogy.Person, error) {
	updated, err := c.records.UpdatePerson(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, arkerrors.NewNotFound("person", id.String())
	}
	return updated, nil
}

func (c *Coordinator) CommitFamily(ctx context.Context, draft genealogy.FamilyDraft) (*genealogy.Family, GraphPlan, error) {
	family, err := c.records.CreateFamily(ctx, draft)
	if err != nil {
		return nil, GraphPlan{}, err
	}
	return family, planForFamily(family), nil
}

func (c *Coordinator) CommitFamilyChanges(ctx context.Context, id genealogy.FamilyID, changes genealogy.FamilyChanges) (*records.FamilyRevision, GraphPlan, error) {
	rev, err := c.records.UpdateFamily(ctx, id, changes)
	if err != nil {
		return nil, GraphPlan{}, err
	}
	if rev == nil {
		return nil, GraphPlan{}, arkerrors.NewNotFound("family", id.String())
	}
	return rev, planForRevision(rev), nil
}

// Stage 2

// SyncGraph applies plan to the graph index, or enqueues it when a
// propagator is configured. Inline failures are retried with a constant
// backoff, then reported and returned.
func (c *Coordinator) SyncGraph(ctx context.Context, plan GraphPlan) error {
	if plan.Empty() {
		return nil
	}

	if c.propagator != nil {
		if err := c.propagator.Enqueue(ctx, plan); err != nil {
			c.reporter.ReportFailure(ctx, StageGraph, plan.Affected(), err)
			return err
		}
		return nil
	}

	defer metrics.ObserveSince(metrics.GraphSyncDuration.WithLabelValues("inline"), time.Now())

	var errs []error
	var failed []genealogy.PersonID
	for _, s := range plan.steps() {
		err := backoff.Retry(func() error {
			err := s.apply(ctx, c.graph)
			if err != nil && !arkerrors.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(c.inlineBackoff(), ctx))
		if err != nil {
			errs = append(errs, err)
			failed = append(failed, s.person)
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		c.reporter.ReportFailure(ctx, StageGraph, failed, err)
		return err
	}
	return nil
}

func (c *Coordinator) inlineBackoff() backoff.BackOff {
	if c.inlineRetries <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(c.inlineInterval), uint64(c.inlineRetries))
}

// Stage 3

// InvalidateSnapshots drops cached snapshots for ids. Backend failures are
// reported and otherwise absorbed; the stale entries expire with their TTL.
func (c *Coordinator) InvalidateSnapshots(ctx context.Context, ids ...genealogy.PersonID) {
	if c.cache == nil || len(ids) == 0 {
		return
	}
	if err := c.cache.InvalidateAll(ctx, ids...); err != nil {
		c.reporter.ReportFailure(ctx, StageCache, ids, err)
	}
}

// Composed writes

// CreatePerson commits person, adds it to the graph and clears any snapshot
// under its identifier
func (c *Coordinator) CreatePerson(ctx context.Context, person genealogy.Person) (*genealogy.Person, error) {
	created, plan, err := c.CommitPerson(ctx, person)
	if err != nil {
		return nil, err
	}
	c.afterCommit(ctx, plan, plan.Affected())
	return created, nil
}

// UpdatePerson commits update and invalidates the person's snapshot, so the
// next read is served from the record store
func (c *Coordinator) UpdatePerson(ctx context.Context, id genealogy.PersonID, update genealogy.PersonUpdate) (*genealogy.Person, error) {
	updated, err := c.CommitPersonUpdate(ctx, id, update)
	if err != nil {
		return nil, err
	}
	c.afterCommit(ctx, GraphPlan{}, []genealogy.PersonID{id})
	return updated, nil
}

func (c *Coordinator) CreateFamily(ctx context.Context, draft genealogy.FamilyDraft) (*genealogy.Family, error) {
	family, plan, err := c.CommitFamily(ctx, draft)
	if err != nil {
		return nil, err
	}
	c.afterCommit(ctx, plan, plan.Affected())
	return family, nil
}

// UpdateFamily commits changes. When parents or children moved, each affected
// child's edges are replaced wholesale.
func (c *Coordinator) UpdateFamily(ctx context.Context, id genealogy.FamilyID, changes genealogy.FamilyChanges) (*genealogy.Family, error) {
	unlock := c.lockFamily(id)
	defer unlock()
	return c.updateFamilyLocked(ctx, id, changes)
}

func (c *Coordinator) updateFamilyLocked(ctx context.Context, id genealogy.FamilyID, changes genealogy.FamilyChanges) (*genealogy.Family, error) {
	rev, plan, err := c.CommitFamilyChanges(ctx, id, changes)
	if err != nil {
		return nil, err
	}
	c.afterCommit(ctx, plan, invalidationSet(rev, plan))
	after := rev.After
	return &after, nil
}

// AppendChild adds child at the end of the family's children. Appending a
// child already listed is a no-op.
func (c *Coordinator) AppendChild(ctx context.Context, id genealogy.FamilyID, child genealogy.PersonID) (*genealogy.Family, error) {
	unlock := c.lockFamily(id)
	defer unlock()

	family, err := c.GetFamily(ctx, id)
	if err != nil {
		return nil, err
	}
	if family.HasChild(child) {
		return family, nil
	}
	children := append(append([]genealogy.PersonID{}, family.Children...), child)
	return c.updateFamilyLocked(ctx, id, genealogy.FamilyChanges{Children: &children})
}

// RemoveChild drops child from the family; the child loses its parent edges
func (c *Coordinator) RemoveChild(ctx context.Context, id genealogy.FamilyID, child genealogy.PersonID) (*genealogy.Family, error) {
	unlock := c.lockFamily(id)
	defer unlock()

	family, err := c.GetFamily(ctx, id)
	if err != nil {
		return nil, err
	}
	if !family.HasChild(child) {
		return nil, arkerrors.NewNotFound("child", child.String())
	}
	children := make([]genealogy.PersonID, 0, len(family.Children)-1)
	for _, existing := range family.Children {
		if existing != child {
			children = append(children, existing)
		}
	}
	return c.updateFamilyLocked(ctx, id, genealogy.FamilyChanges{Children: &children})
}

func (c *Coordinator) SetFamilyPrivacy(ctx context.Context, id genealogy.FamilyID, public bool) (*genealogy.Family, error) {
	return c.UpdateFamily(ctx, id, genealogy.FamilyChanges{Public: &public})
}

// AddFamilyEvent records an event on an existing family
func (c *Coordinator) AddFamilyEvent(ctx context.Context, event genealogy.FamilyEvent) (*genealogy.FamilyEvent, error) {
	if _, err := c.GetFamily(ctx, event.FamilyID); err != nil {
		return nil, err
	}
	return c.records.AddFamilyEvent(ctx, event)
}

// afterCommit runs stages 2 and 3. The caller's cancellation no longer
// applies once the record is committed.
func (c *Coordinator) afterCommit(ctx context.Context, plan GraphPlan, invalidate []genealogy.PersonID) {
	ctx = context.WithoutCancel(ctx)
	if err := c.SyncGraph(ctx, plan); err != nil {
		c.logger.Warn("Graph index lags behind committed record", zap.Error(err))
	}
	c.InvalidateSnapshots(ctx, invalidate...)
}

func (c *Coordinator) lockFamily(id genealogy.FamilyID) func() {
	v, _ := c.familyLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Reads

// GetPerson serves the person from the snapshot cache, loading from the
// record store on a miss
func (c *Coordinator) GetPerson(ctx context.Context, id genealogy.PersonID) (*genealogy.Person, error) {
	load := func(ctx context.Context) (*genealogy.Person, error) {
		return c.records.GetPerson(ctx, id)
	}

	var (
		person *genealogy.Person
		err    error
	)
	if c.cache != nil {
		person, err = c.cache.GetOrLoad(ctx, id, load)
	} else {
		person, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	if person == nil {
		return nil, arkerrors.NewNotFound("person", id.String())
	}
	return person, nil
}

func (c *Coordinator) GetFamily(ctx context.Context, id genealogy.FamilyID) (*genealogy.Family, error) {
	family, err := c.records.GetFamily(ctx, id)
	if err != nil {
		return nil, err
	}
	if family == nil {
		return nil, arkerrors.NewNotFound("family", id.String())
	}
	return family, nil
}

func (c *Coordinator) SearchPersons(ctx context.Context, surname, firstName string, limit int) ([]genealogy.Person, error) {
	return c.records.SearchByName(ctx, surname, firstName, limit)
}

func (c *Coordinator) Ping(ctx context.Context) error {
	return c.records.Ping(ctx)
}
