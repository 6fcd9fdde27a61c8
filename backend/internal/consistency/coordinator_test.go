package consistency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/graph"
	"noahs-ark/backend/internal/records"
	"noahs-ark/backend/internal/snapshot"
	arkerrors "noahs-ark/backend/pkg/errors"
)

type failure struct {
	stage Stage
	ids   []genealogy.PersonID
	err   error
}

type failureLog struct {
	mu      sync.Mutex
	entries []failure
}

func (l *failureLog) reporter() FailureReporter {
	return ReporterFunc(func(_ context.Context, stage Stage, ids []genealogy.PersonID, err error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.entries = append(l.entries, failure{stage: stage, ids: ids, err: err})
	})
}

func (l *failureLog) all() []failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]failure(nil), l.entries...)
}

type harness struct {
	records  *records.MemoryStore
	graph    *graph.MemoryStore
	index    *graph.Index
	cache    *snapshot.Cache
	failures *failureLog
	coord    *Coordinator
}

type harnessOption func(*harness)

// withGraph shares an existing graph store with the harness
func withGraph(store *graph.MemoryStore, index *graph.Index) harnessOption {
	return func(h *harness) {
		h.graph, h.index = store, index
	}
}

// withCache replaces the harness snapshot cache
func withCache(cache *snapshot.Cache) harnessOption {
	return func(h *harness) {
		h.cache = cache
	}
}

// failingDeletes is a local backend whose deletes always fail
type failingDeletes struct {
	*snapshot.LocalBackend
}

func (failingDeletes) Delete(context.Context, string) error {
	return errors.New("redis unreachable")
}

// newHarness accepts Option values for the coordinator and harnessOption
// values for the harness itself
func newHarness(t *testing.T, opts ...any) *harness {
	t.Helper()
	h := &harness{
		records:  records.NewMemoryStore(),
		graph:    graph.NewMemoryStore(),
		cache:    snapshot.NewCache(snapshot.NewLocalBackend(64, time.Minute), time.Minute),
		failures: &failureLog{},
	}
	h.index = graph.NewIndex(h.graph)

	coordOpts := []Option{
		WithReporter(h.failures.reporter()),
		WithInlineRetry(2, time.Millisecond),
	}
	for _, opt := range opts {
		switch o := opt.(type) {
		case harnessOption:
			o(h)
		case Option:
			coordOpts = append(coordOpts, o)
		default:
			t.Fatalf("unknown harness option %T", opt)
		}
	}
	h.coord = NewCoordinator(h.records, h.index, h.cache, coordOpts...)
	return h
}

func (h *harness) person(t *testing.T, first string) genealogy.PersonID {
	t.Helper()
	p, err := h.coord.CreatePerson(context.Background(), genealogy.Person{FirstName: first, Surname: "Noé"})
	require.NoError(t, err)
	return p.ID
}

func (h *harness) parents(t *testing.T, child genealogy.PersonID) genealogy.Parentage {
	t.Helper()
	p, err := h.index.Parentage(context.Background(), child)
	require.NoError(t, err)
	return p
}

func family(father, mother genealogy.PersonID, children ...genealogy.PersonID) genealogy.FamilyDraft {
	return genealogy.FamilyDraft{Father: &father, Mother: &mother, Children: children}
}

func TestCoordinator_CreatePersonAddsNode(t *testing.T) {
	h := newHarness(t)
	id := h.person(t, "Noé")
	assert.True(t, h.graph.HasPerson(id))
	assert.Empty(t, h.failures.all())
}

func TestCoordinator_CreateFamilyWritesEdges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	father, mother := h.person(t, "Noé"), h.person(t, "Naama")
	sem, cham := h.person(t, "Sem"), h.person(t, "Cham")

	fam, err := h.coord.CreateFamily(ctx, family(father, mother, sem, cham))
	require.NoError(t, err)
	assert.Equal(t, []genealogy.PersonID{sem, cham}, fam.Children)

	for _, child := range []genealogy.PersonID{sem, cham} {
		p := h.parents(t, child)
		assert.Equal(t, []genealogy.PersonID{father, mother}, p.Ordered())
	}
}

func TestCoordinator_UpdatePersonInvalidatesSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.person(t, "Japhet")

	_, err := h.coord.GetPerson(ctx, id)
	require.NoError(t, err)
	_, cached := h.cache.Get(ctx, id)
	require.True(t, cached)

	name := "Yafet"
	_, err = h.coord.UpdatePerson(ctx, id, genealogy.PersonUpdate{FirstName: &name})
	require.NoError(t, err)

	_, cached = h.cache.Get(ctx, id)
	assert.False(t, cached, "the write must evict the snapshot")

	got, err := h.coord.GetPerson(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Yafet", got.FirstName)
}

func TestCoordinator_UpdatePersonMissing(t *testing.T) {
	h := newHarness(t)
	name := "nobody"
	_, err := h.coord.UpdatePerson(context.Background(), genealogy.NewPersonID(), genealogy.PersonUpdate{FirstName: &name})
	assert.True(t, arkerrors.IsNotFound(err))
}

func TestCoordinator_GetPersonMissing(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.GetPerson(context.Background(), genealogy.NewPersonID())
	assert.True(t, arkerrors.IsNotFound(err))
}

func TestCoordinator_RecordFailureStopsWrite(t *testing.T) {
	h := newHarness(t)
	h.records.FailWith(errors.New("db down"))

	_, err := h.coord.CreatePerson(context.Background(), genealogy.Person{FirstName: "Sem"})
	require.Error(t, err)
	assert.True(t, arkerrors.IsErrorType(err, arkerrors.ErrorTypeRecord))
	assert.Equal(t, 0, h.graph.Calls(), "nothing reaches the graph without a commit")
}

func TestCoordinator_CacheFailureIsReported(t *testing.T) {
	ctx := context.Background()
	cache := snapshot.NewCache(failingDeletes{snapshot.NewLocalBackend(16, time.Minute)}, time.Minute)
	h := newHarness(t, withCache(cache))

	p, err := h.coord.CreatePerson(ctx, genealogy.Person{FirstName: "Sem", Surname: "Noé"})
	require.NoError(t, err, "cache failures never fail the committed write")
	shem := "Shem"
	_, err = h.coord.UpdatePerson(ctx, p.ID, genealogy.PersonUpdate{FirstName: &shem})
	require.NoError(t, err)

	failures := h.failures.all()
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, StageCache, f.stage)
		assert.Equal(t, []genealogy.PersonID{p.ID}, f.ids)
		assert.Error(t, f.err)
	}
}

func TestCoordinator_GraphFailureKeepsCommit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	father, mother, child := h.person(t, "Noé"), h.person(t, "Naama"), h.person(t, "Sem")

	h.graph.FailWith(errors.New("neo4j unreachable"))
	fam, err := h.coord.CreateFamily(ctx, family(father, mother, child))
	require.NoError(t, err, "graph failures never fail the committed write")

	stored, err := h.records.GetFamily(ctx, fam.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	failures := h.failures.all()
	require.Len(t, failures, 1)
	assert.Equal(t, StageGraph, failures[0].stage)
	assert.Contains(t, failures[0].ids, child)
	assert.True(t, arkerrors.IsGraphUnavailable(failures[0].err))

	h.graph.FailWith(nil)
	assert.Equal(t, 0, h.parents(t, child).Count())
}

func TestCoordinator_InlineRetryRecovers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	father, mother, child := h.person(t, "Noé"), h.person(t, "Naama"), h.person(t, "Sem")

	h.graph.FailNext(2, errors.New("transient"))
	_, err := h.coord.CreateFamily(ctx, family(father, mother, child))
	require.NoError(t, err)

	assert.Empty(t, h.failures.all())
	assert.True(t, h.parents(t, child).Contains(mother))
}

func TestCoordinator_StagesRunSeparately(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	father, mother, child := h.person(t, "Noé"), h.person(t, "Naama"), h.person(t, "Sem")

	_, err := h.coord.GetPerson(ctx, child)
	require.NoError(t, err)

	fam, plan, err := h.coord.CommitFamily(ctx, family(father, mother, child))
	require.NoError(t, err)

	// Between stages the record is committed and the graph still lags
	stored, err := h.records.GetFamily(ctx, fam.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasChild(child))
	assert.Equal(t, 0, h.parents(t, child).Count())

	require.NoError(t, h.coord.SyncGraph(ctx, plan))
	assert.Equal(t, 2, h.parents(t, child).Count())

	_, cached := h.cache.Get(ctx, child)
	assert.True(t, cached)
	h.coord.InvalidateSnapshots(ctx, plan.Affected()...)
	_, cached = h.cache.Get(ctx, child)
	assert.False(t, cached)
}

func TestCoordinator_UpdateFamilyReplacesEdges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	father, mother, other := h.person(t, "Noé"), h.person(t, "Naama"), h.person(t, "Emzara")
	sem, cham := h.person(t, "Sem"), h.person(t, "Cham")

	fam, err := h.coord.CreateFamily(ctx, family(father, mother, sem, cham))
	require.NoError(t, err)

	_, err = h.coord.UpdateFamily(ctx, fam.ID, genealogy.FamilyChanges{Mother: genealogy.SetTo(other)})
	require.NoError(t, err)
	for _, child := range []genealogy.PersonID{sem, cham} {
		p := h.parents(t, child)
		assert.Equal(t, []genealogy.PersonID{father, other}, p.Ordered())
	}

	_, err = h.coord.UpdateFamily(ctx, fam.ID, genealogy.FamilyChanges{Father: genealogy.SetNull[genealogy.PersonID]()})
	require.NoError(t, err)
	assert.Equal(t, []genealogy.PersonID{other}, h.parents(t, sem).Ordered())

	_, err = h.coord.UpdateFamily(ctx, genealogy.NewFamilyID(), genealogy.FamilyChanges{Public: new(bool)})
	assert.True(t, arkerrors.IsNotFound(err))
}

func TestCoordinator_AppendAndRemoveChild(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	father, mother := h.person(t, "Noé"), h.person(t, "Naama")
	sem, japhet := h.person(t, "Sem"), h.person(t, "Japhet")

	fam, err := h.coord.CreateFamily(ctx, family(father, mother, sem))
	require.NoError(t, err)

	fam2, err := h.coord.AppendChild(ctx, fam.ID, japhet)
	require.NoError(t, err)
	assert.Equal(t, []genealogy.PersonID{sem, japhet}, fam2.Children)
	assert.Equal(t, 2, h.parents(t, japhet).Count())

	again, err := h.coord.AppendChild(ctx, fam.ID, japhet)
	require.NoError(t, err)
	assert.Len(t, again.Children, 2)

	fam3, err := h.coord.RemoveChild(ctx, fam.ID, sem)
	require.NoError(t, err)
	assert.Equal(t, []genealogy.PersonID{japhet}, fam3.Children)
	assert.Equal(t, 0, h.parents(t, sem).Count(), "a removed child loses its parents")

	_, err = h.coord.RemoveChild(ctx, fam.ID, sem)
	assert.True(t, arkerrors.IsNotFound(err))
}

func TestCoordinator_AppendChildConcurrent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	father, mother := h.person(t, "Noé"), h.person(t, "Naama")
	fam, err := h.coord.CreateFamily(ctx, family(father, mother))
	require.NoError(t, err)

	children := make([]genealogy.PersonID, 8)
	for i := range children {
		children[i] = h.person(t, "child")
	}

	var wg sync.WaitGroup
	for _, child := range children {
		wg.Add(1)
		go func(child genealogy.PersonID) {
			defer wg.Done()
			_, err := h.coord.AppendChild(ctx, fam.ID, child)
			assert.NoError(t, err)
		}(child)
	}
	wg.Wait()

	stored, err := h.coord.GetFamily(ctx, fam.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, children, stored.Children)
}

func TestCoordinator_FamilyPrivacyAndEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	fam, err := h.coord.CreateFamily(ctx, genealogy.FamilyDraft{})
	require.NoError(t, err)

	updated, err := h.coord.SetFamilyPrivacy(ctx, fam.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Public)

	_, err = h.coord.AddFamilyEvent(ctx, genealogy.FamilyEvent{FamilyID: fam.ID, EventType: "Marriage"})
	require.NoError(t, err)
	assert.Len(t, h.records.FamilyEvents(fam.ID), 1)

	_, err = h.coord.AddFamilyEvent(ctx, genealogy.FamilyEvent{FamilyID: genealogy.NewFamilyID(), EventType: "Marriage"})
	assert.True(t, arkerrors.IsNotFound(err))
}

func TestCoordinator_CommitSurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t)
	father, mother, child := h.person(t, "Noé"), h.person(t, "Naama"), h.person(t, "Sem")

	ctx, cancel := context.WithCancel(context.Background())
	fam, plan, err := h.coord.CommitFamily(ctx, family(father, mother, child))
	require.NoError(t, err)
	cancel()

	// Post-commit stages detach from the caller
	h.coord.afterCommit(ctx, plan, plan.Affected())
	assert.True(t, h.parents(t, child).Contains(father))
	assert.NotNil(t, fam)
	assert.Empty(t, h.failures.all())
}

func TestCoordinator_SearchPersons(t *testing.T) {
	h := newHarness(t)
	h.person(t, "Sem")
	h.person(t, "Cham")

	found, err := h.coord.SearchPersons(context.Background(), "Noé", "", 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestGraphPlan_Revision(t *testing.T) {
	father, mother := genealogy.NewPersonID(), genealogy.NewPersonID()
	kept, dropped := genealogy.NewPersonID(), genealogy.NewPersonID()
	rev := &records.FamilyRevision{
		Before: genealogy.Family{Father: &father, Children: []genealogy.PersonID{kept, dropped}},
		After:  genealogy.Family{Father: &father, Mother: &mother, Children: []genealogy.PersonID{kept}},
	}

	plan := planForRevision(rev)
	require.Len(t, plan.Edges, 2)
	assert.Equal(t, kept, plan.Edges[0].Child)
	assert.Equal(t, 2, plan.Edges[0].Parentage.Count())
	assert.Equal(t, dropped, plan.Edges[1].Child)
	assert.Equal(t, 0, plan.Edges[1].Parentage.Count())

	assert.Equal(t, []genealogy.PersonID{father, mother, kept, dropped}, plan.Affected())

	unchanged := &records.FamilyRevision{Before: rev.After, After: rev.After}
	assert.True(t, planForRevision(unchanged).Empty())
}
