package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noahs-ark/backend/internal/genealogy"
)

func TestMemoryStore_UpsertEdge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	child, dad, other := genealogy.NewPersonID(), genealogy.NewPersonID(), genealogy.NewPersonID()

	require.NoError(t, s.UpsertEdge(ctx, child, dad, genealogy.SlotFather))
	require.NoError(t, s.UpsertEdge(ctx, child, dad, genealogy.SlotFather))
	assert.ErrorIs(t, s.UpsertEdge(ctx, child, other, genealogy.SlotFather), ErrSlotTaken)

	assert.True(t, s.HasPerson(child))
	assert.True(t, s.HasPerson(dad))
	assert.False(t, s.HasPerson(other))
}

func TestMemoryStore_FailNext(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")
	id := genealogy.NewPersonID()

	s.FailNext(2, boom)
	assert.ErrorIs(t, s.EnsurePerson(ctx, id), boom)
	_, err := s.Parentage(ctx, id)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, s.EnsurePerson(ctx, id))
	assert.Equal(t, 3, s.Calls())
}

func TestMemoryStore_FailWith(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	s.FailWith(boom)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, s.EnsurePerson(ctx, genealogy.NewPersonID()), boom)
	}
	s.FailWith(nil)
	assert.NoError(t, s.EnsurePerson(ctx, genealogy.NewPersonID()))
}

func TestMemoryStore_ReplaceParentsClears(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	child, dad := genealogy.NewPersonID(), genealogy.NewPersonID()

	require.NoError(t, s.UpsertEdge(ctx, child, dad, genealogy.SlotFather))
	require.NoError(t, s.ReplaceParents(ctx, child, genealogy.Parentage{}))

	parentage, err := s.Parentage(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, 0, parentage.Count())
}
