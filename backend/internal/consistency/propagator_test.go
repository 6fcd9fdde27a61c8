package consistency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/graph"
)

func newAsyncHarness(t *testing.T, opts ...PropagatorOption) (*harness, *Propagator) {
	t.Helper()
	failures := &failureLog{}
	store := graph.NewMemoryStore()
	index := graph.NewIndex(store)
	prop := startPropagator(t, index, failures, opts...)
	h := newHarness(t, withGraph(store, index), WithReporter(failures.reporter()), WithPropagator(prop))
	h.failures = failures
	return h, prop
}

func startPropagator(t *testing.T, index GraphIndex, failures *failureLog, opts ...PropagatorOption) *Propagator {
	t.Helper()
	p := NewPropagator(index, failures.reporter(), opts...)
	p.Start(context.Background())
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPropagator_EventualConvergence(t *testing.T) {
	ctx := context.Background()
	h, prop := newAsyncHarness(t,
		WithWorkers(3),
		WithRetryWindow(5*time.Millisecond, 5*time.Second),
	)
	store, index, failures := h.graph, h.index, h.failures

	father, mother := h.person(t, "Noé"), h.person(t, "Naama")
	children := []genealogy.PersonID{h.person(t, "Sem"), h.person(t, "Cham"), h.person(t, "Japhet")}

	store.FailNext(4, errors.New("leader election"))
	_, err := h.coord.CreateFamily(ctx, family(father, mother, children...))
	require.NoError(t, err, "the write returns once the record is committed")

	assert.Eventually(t, func() bool {
		for _, child := range children {
			p, err := index.Parentage(ctx, child)
			if err != nil || !p.Equal(genealogy.Parentage{Father: &father, Mother: &mother}) {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, prop.Flush(ctx))
	assert.Empty(t, failures.all())
	assert.Equal(t, int64(0), prop.Pending())
}

func TestPropagator_ReportsAfterRetryWindow(t *testing.T) {
	ctx := context.Background()
	failures := &failureLog{}
	store := graph.NewMemoryStore()
	prop := startPropagator(t, graph.NewIndex(store), failures,
		WithWorkers(1),
		WithRetryWindow(5*time.Millisecond, 40*time.Millisecond),
	)

	child, father := genealogy.NewPersonID(), genealogy.NewPersonID()
	store.FailWith(errors.New("down for maintenance"))

	require.NoError(t, prop.Enqueue(ctx, GraphPlan{
		Edges: []ChildParents{{Child: child, Parentage: genealogy.Parentage{Father: &father}}},
	}))

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, prop.Flush(flushCtx))

	got := failures.all()
	require.Len(t, got, 1)
	assert.Equal(t, StageGraph, got[0].stage)
	assert.Equal(t, []genealogy.PersonID{child}, got[0].ids)
}

func TestPropagator_PerPersonOrder(t *testing.T) {
	ctx := context.Background()
	failures := &failureLog{}
	store := graph.NewMemoryStore()
	index := graph.NewIndex(store)
	prop := startPropagator(t, index, failures, WithWorkers(4))

	child := genealogy.NewPersonID()
	var last genealogy.PersonID
	for i := 0; i < 50; i++ {
		last = genealogy.NewPersonID()
		father := last
		require.NoError(t, prop.Enqueue(ctx, GraphPlan{
			Edges: []ChildParents{{Child: child, Parentage: genealogy.Parentage{Father: &father}}},
		}))
	}
	require.NoError(t, prop.Flush(ctx))

	p, err := index.Parentage(ctx, child)
	require.NoError(t, err)
	require.NotNil(t, p.Father)
	assert.Equal(t, last, *p.Father, "the last write for a child wins")
}

func TestPropagator_Closed(t *testing.T) {
	failures := &failureLog{}
	prop := NewPropagator(graph.NewIndex(graph.NewMemoryStore()), failures.reporter())

	err := prop.Enqueue(context.Background(), GraphPlan{Ensure: []genealogy.PersonID{genealogy.NewPersonID()}})
	assert.ErrorIs(t, err, ErrPropagatorClosed, "not started")

	prop.Start(context.Background())
	require.NoError(t, prop.Close())
	require.NoError(t, prop.Close())

	err = prop.Enqueue(context.Background(), GraphPlan{Ensure: []genealogy.PersonID{genealogy.NewPersonID()}})
	assert.ErrorIs(t, err, ErrPropagatorClosed)
}

func TestPropagator_CloseDrainsQueue(t *testing.T) {
	ctx := context.Background()
	failures := &failureLog{}
	store := graph.NewMemoryStore()
	prop := NewPropagator(graph.NewIndex(store), failures.reporter(), WithWorkers(2))
	prop.Start(ctx)

	ids := make([]genealogy.PersonID, 20)
	for i := range ids {
		ids[i] = genealogy.NewPersonID()
	}
	require.NoError(t, prop.Enqueue(ctx, GraphPlan{Ensure: ids}))
	require.NoError(t, prop.Close())

	for _, id := range ids {
		assert.True(t, store.HasPerson(id))
	}
}

func TestPropagator_SnapshotsRefillWhileGraphLags(t *testing.T) {
	ctx := context.Background()
	h, prop := newAsyncHarness(t, WithRetryWindow(5*time.Millisecond, 10*time.Second))
	father, mother, child := h.person(t, "Noé"), h.person(t, "Naama"), h.person(t, "Sem")
	_, err := h.coord.GetPerson(ctx, child)
	require.NoError(t, err)

	h.graph.FailWith(errors.New("neo4j unreachable"))
	_, err = h.coord.CreateFamily(ctx, family(father, mother, child))
	require.NoError(t, err)

	// Snapshots are dropped before the graph applies the plan; a refill in
	// that window still matches the record store.
	got, err := h.coord.GetPerson(ctx, child)
	require.NoError(t, err)
	snap, ok := h.cache.Get(ctx, child)
	require.True(t, ok)
	stored, err := h.records.GetPerson(ctx, child)
	require.NoError(t, err)
	for _, p := range []genealogy.Person{snap.Person, *got} {
		assert.Equal(t, stored.ID, p.ID)
		assert.Equal(t, stored.FirstName, p.FirstName)
		assert.Equal(t, stored.Surname, p.Surname)
	}

	h.graph.FailWith(nil)
	require.NoError(t, prop.Flush(ctx))
	assert.Equal(t, []genealogy.PersonID{father, mother}, h.parents(t, child).Ordered())
}
