package records

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noahs-ark/backend/internal/genealogy"
	arkerrors "noahs-ark/backend/pkg/errors"
)

func TestMemoryStore_PersonLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.CreatePerson(ctx, genealogy.Person{FirstName: "Noé", Surname: "Lamech"})
	require.NoError(t, err)
	assert.False(t, created.ID.IsZero())
	assert.Equal(t, genealogy.SexUnknown, created.Sex)
	assert.Equal(t, []string{}, created.Nicknames)

	// Mutating the returned value must not reach the store
	created.FirstName = "changed"
	got, err := store.GetPerson(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Noé", got.FirstName)

	missing, err := store.GetPerson(ctx, genealogy.NewPersonID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_UpdatePerson(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	notes := "builder"
	p, err := store.CreatePerson(ctx, genealogy.Person{FirstName: "Noé", Surname: "Lamech", Notes: &notes})
	require.NoError(t, err)

	wizard := genealogy.WizardID(genealogy.NewPersonID())
	public := true
	updated, err := store.UpdatePerson(ctx, p.ID, genealogy.PersonUpdate{
		Notes:     genealogy.SetNull[string](),
		Public:    &public,
		UpdatedBy: &wizard,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Notes)
	assert.True(t, updated.Public)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, wizard, *updated.UpdatedBy)

	logs := store.PrivacyLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, p.ID, logs[0].PersonID)
	assert.False(t, logs[0].OldPublic)
	assert.True(t, logs[0].NewPublic)

	// Same value again is not a privacy change
	_, err = store.UpdatePerson(ctx, p.ID, genealogy.PersonUpdate{Public: &public})
	require.NoError(t, err)
	assert.Len(t, store.PrivacyLogs(), 1)

	absent, err := store.UpdatePerson(ctx, genealogy.NewPersonID(), genealogy.PersonUpdate{Public: &public})
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestMemoryStore_SearchByName(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, first := range []string{"Sem", "Cham", "Japhet"} {
		_, err := store.CreatePerson(ctx, genealogy.Person{FirstName: first, Surname: "Noé"})
		require.NoError(t, err)
	}
	_, err := store.CreatePerson(ctx, genealogy.Person{FirstName: "Mathusalem", Surname: "Hénoch"})
	require.NoError(t, err)

	found, err := store.SearchByName(ctx, "noé", "", 0)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "Cham", found[0].FirstName)
	assert.Equal(t, "Japhet", found[1].FirstName)
	assert.Equal(t, "Sem", found[2].FirstName)

	found, err = store.SearchByName(ctx, "Noé", "Ja", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Japhet", found[0].FirstName)

	found, err = store.SearchByName(ctx, "Noé", "", 2)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestMemoryStore_SearchByName_Limit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < 60; i++ {
		_, err := store.CreatePerson(ctx, genealogy.Person{FirstName: fmt.Sprintf("child%02d", i), Surname: "Noé"})
		require.NoError(t, err)
	}

	found, err := store.SearchByName(ctx, "Noé", "", 1000)
	require.NoError(t, err)
	assert.Len(t, found, 50)
}

func TestMemoryStore_UpdateFamily(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	father, mother := genealogy.NewPersonID(), genealogy.NewPersonID()
	a, b := genealogy.NewPersonID(), genealogy.NewPersonID()

	family, err := store.CreateFamily(ctx, genealogy.FamilyDraft{Father: &father, Children: []genealogy.PersonID{a, b}})
	require.NoError(t, err)

	rev, err := store.UpdateFamily(ctx, family.ID, genealogy.FamilyChanges{Mother: genealogy.SetTo(mother)})
	require.NoError(t, err)
	assert.Nil(t, rev.Before.Mother)
	assert.Equal(t, mother, *rev.After.Mother)
	assert.Equal(t, []genealogy.PersonID{a, b}, rev.AffectedChildren())

	notes := "married late"
	rev, err = store.UpdateFamily(ctx, family.ID, genealogy.FamilyChanges{Notes: genealogy.SetTo(notes)})
	require.NoError(t, err)
	assert.Nil(t, rev.AffectedChildren(), "notes do not touch parent edges")

	only := []genealogy.PersonID{b}
	rev, err = store.UpdateFamily(ctx, family.ID, genealogy.FamilyChanges{Children: &only})
	require.NoError(t, err)
	assert.Equal(t, []genealogy.PersonID{b, a}, rev.AffectedChildren())
	assert.False(t, rev.ParentageFor(a).Contains(father))

	stored, err := store.GetFamily(ctx, family.ID)
	require.NoError(t, err)
	assert.Equal(t, []genealogy.PersonID{b}, stored.Children)

	absent, err := store.UpdateFamily(ctx, genealogy.NewFamilyID(), genealogy.FamilyChanges{Notes: genealogy.SetTo(notes)})
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestMemoryStore_FamilyEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	family, err := store.CreateFamily(ctx, genealogy.FamilyDraft{})
	require.NoError(t, err)

	_, err = store.AddFamilyEvent(ctx, genealogy.FamilyEvent{FamilyID: family.ID, EventType: "Marriage"})
	require.NoError(t, err)
	_, err = store.AddFamilyEvent(ctx, genealogy.FamilyEvent{FamilyID: family.ID, EventType: " "})
	assert.Error(t, err)

	events := store.FamilyEvents(family.ID)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
}

func TestMemoryStore_FailWith(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("disk full")

	store.FailWith(boom)
	_, err := store.CreatePerson(ctx, genealogy.Person{FirstName: "Sem"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, arkerrors.IsErrorType(err, arkerrors.ErrorTypeRecord))
	assert.Error(t, store.Ping(ctx))

	store.FailWith(nil)
	assert.NoError(t, store.Ping(ctx))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetPerson(ctx, genealogy.NewPersonID())
	assert.ErrorIs(t, err, context.Canceled)
}
