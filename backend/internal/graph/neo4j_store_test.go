package graph

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noahs-ark/backend/internal/genealogy"
)

// The Neo4j tests require a running instance. NEO4J_URI, NEO4J_USER and
// NEO4J_PASSWORD override the local defaults.
func TestNeo4jStore_EdgesAndAncestors(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.EnsureSchema(ctx))

	child, dad, mum, gpa := genealogy.NewPersonID(), genealogy.NewPersonID(), genealogy.NewPersonID(), genealogy.NewPersonID()
	defer func() {
		for _, id := range []genealogy.PersonID{child, dad, mum, gpa} {
			_ = store.DeletePerson(ctx, id)
		}
	}()

	require.NoError(t, store.UpsertEdge(ctx, child, dad, genealogy.SlotFather))
	require.NoError(t, store.UpsertEdge(ctx, child, dad, genealogy.SlotFather))
	require.NoError(t, store.UpsertEdge(ctx, child, mum, genealogy.SlotMother))
	require.NoError(t, store.UpsertEdge(ctx, dad, gpa, genealogy.SlotFather))

	parentage, err := store.Parentage(ctx, child)
	require.NoError(t, err)
	require.NotNil(t, parentage.Father)
	require.NotNil(t, parentage.Mother)
	assert.Equal(t, dad, *parentage.Father)
	assert.Equal(t, mum, *parentage.Mother)

	ancestors, err := store.AncestorsWithin(ctx, child, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []genealogy.PersonID{dad, mum}, ancestors)

	ancestors, err = store.AncestorsWithin(ctx, child, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []genealogy.PersonID{dad, mum, gpa}, ancestors)
}

func TestNeo4jStore_ReplaceParents(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	store := openTestStore(t)

	child, dad, mum := genealogy.NewPersonID(), genealogy.NewPersonID(), genealogy.NewPersonID()
	defer func() {
		for _, id := range []genealogy.PersonID{child, dad, mum} {
			_ = store.DeletePerson(ctx, id)
		}
	}()

	require.NoError(t, store.UpsertEdge(ctx, child, dad, genealogy.SlotFather))
	require.NoError(t, store.ReplaceParents(ctx, child, genealogy.Parentage{}.With(genealogy.SlotMother, mum)))

	parentage, err := store.Parentage(ctx, child)
	require.NoError(t, err)
	assert.Nil(t, parentage.Father)
	require.NotNil(t, parentage.Mother)
	assert.Equal(t, mum, *parentage.Mother)
}

func openTestStore(t *testing.T) *Neo4jStore {
	t.Helper()

	uri := envOr("NEO4J_URI", "bolt://localhost:7687")
	user := envOr("NEO4J_USER", "neo4j")
	password := envOr("NEO4J_PASSWORD", "password")

	store, err := Connect(context.Background(), uri, user, password)
	if err != nil {
		t.Skipf("Neo4j not reachable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
