package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noahs-ark/backend/internal/app"
	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/pkg/config"
)

// memoryApp returns a factory handing out one shared in-memory application so
// state survives between command runs
func memoryApp(t *testing.T) (*app.App, appFactory) {
	t.Helper()
	a, err := app.New(context.Background(), &config.Config{
		Env:            "test",
		Neo4jURI:       config.BackendMemory,
		DatabaseURL:    config.BackendMemory,
		CacheBackend:   config.BackendLocal,
		CacheTTL:       time.Minute,
		CacheSize:      10,
		GraphSyncMode:  config.SyncModeInline,
		MaxGenerations: 8,
	})
	require.NoError(t, err)
	return a, func(context.Context) (*app.App, error) { return a, nil }
}

func run(t *testing.T, open appFactory, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPingDB(t *testing.T) {
	_, open := memoryApp(t)
	out, err := run(t, open, "ping-db")
	require.NoError(t, err)
	assert.Contains(t, out, "records")
	assert.Contains(t, out, "ok")
}

func TestMigrate_MemoryBackends(t *testing.T) {
	_, open := memoryApp(t)
	out, err := run(t, open, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "records: in-memory")
	assert.Contains(t, out, "graph: in-memory")
}

func TestSeedPersonThenAnalytics(t *testing.T) {
	ctx := context.Background()
	a, open := memoryApp(t)

	out, err := run(t, open, "seed-person", "--first-name", "Sem", "--surname", "Noé", "--sex", "male")
	require.NoError(t, err)
	child, err := genealogy.ParsePersonID(strings.TrimSpace(out))
	require.NoError(t, err)

	father, err := a.Coordinator.CreatePerson(ctx, genealogy.Person{FirstName: "Noé", Surname: "Lamech", Sex: genealogy.SexMale})
	require.NoError(t, err)
	_, err = a.Coordinator.CreateFamily(ctx, genealogy.FamilyDraft{Father: &father.ID, Children: []genealogy.PersonID{child}})
	require.NoError(t, err)

	out, err = run(t, open, "sosa", child.String())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Noé Lamech")
	assert.Contains(t, lines[1], "gen 1")

	out, err = run(t, open, "consanguinity", child.String())
	require.NoError(t, err)
	assert.Equal(t, child.String()+" 0.000000\n", out)
}

func TestSeedPerson_RequiresNames(t *testing.T) {
	_, open := memoryApp(t)
	_, err := run(t, open, "seed-person", "--first-name", "Sem")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	a, open := memoryApp(t)
	p, err := a.Coordinator.CreatePerson(context.Background(), genealogy.Person{FirstName: "Cham", Surname: "Noé"})
	require.NoError(t, err)

	out, err := run(t, open, "export", p.ID.String())
	require.NoError(t, err)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "Cham /Noé/", rec["name"])

	out, err = run(t, open, "export", p.ID.String(), "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"first_name": "Cham"`)

	_, err = run(t, open, "export", p.ID.String(), "--format", "xml")
	assert.Error(t, err)
}

func TestSosa_BadID(t *testing.T) {
	_, open := memoryApp(t)
	_, err := run(t, open, "sosa", "nope")
	assert.Error(t, err)
}
