// Package records is the authoritative store for persons and families. The
// ancestry graph and the snapshot cache are both derived from it.
package records

import (
	"context"

	"noahs-ark/backend/internal/genealogy"
)

// Store is the record store contract. Every successful write is durably
// committed before it returns. Lookups return (nil, nil) when the entity does
// not exist.
type Store interface {
	CreatePerson(ctx context.Context, person genealogy.Person) (*genealogy.Person, error)
	GetPerson(ctx context.Context, id genealogy.PersonID) (*genealogy.Person, error)
	UpdatePerson(ctx context.Context, id genealogy.PersonID, update genealogy.PersonUpdate) (*genealogy.Person, error)
	SearchByName(ctx context.Context, surname, firstName string, limit int) ([]genealogy.Person, error)

	CreateFamily(ctx context.Context, draft genealogy.FamilyDraft) (*genealogy.Family, error)
	GetFamily(ctx context.Context, id genealogy.FamilyID) (*genealogy.Family, error)
	UpdateFamily(ctx context.Context, id genealogy.FamilyID, changes genealogy.FamilyChanges) (*FamilyRevision, error)
	AddFamilyEvent(ctx context.Context, event genealogy.FamilyEvent) (*genealogy.FamilyEvent, error)

	Ping(ctx context.Context) error
}

// FamilyRevision is a family as it was before and after one update. The
// consistency layer diffs the two to know which children's edges to rewrite.
type FamilyRevision struct {
	Before genealogy.Family
	After  genealogy.Family
}

// AffectedChildren lists every child whose parent edges may have changed:
// the union of old and new children when the parentage or child list moved,
// nothing otherwise. Removed children come last.
func (r FamilyRevision) AffectedChildren() []genealogy.PersonID {
	sameParents := r.Before.Parentage().Equal(r.After.Parentage())
	if sameParents && sameChildren(r.Before.Children, r.After.Children) {
		return nil
	}

	var out []genealogy.PersonID
	seen := genealogy.NewIDSet()
	for _, c := range r.After.Children {
		if !seen.Has(c) {
			seen.Add(c)
			out = append(out, c)
		}
	}
	for _, c := range r.Before.Children {
		if !seen.Has(c) {
			seen.Add(c)
			out = append(out, c)
		}
	}
	return out
}

// ParentageFor is the parentage child must have after the revision: the
// family's parents if it is still listed, none if it was removed.
func (r FamilyRevision) ParentageFor(child genealogy.PersonID) genealogy.Parentage {
	if r.After.HasChild(child) {
		return r.After.Parentage()
	}
	return genealogy.Parentage{}
}

func sameChildren(a, b []genealogy.PersonID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
