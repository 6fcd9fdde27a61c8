package graph

import (
	"context"
	"errors"

	"noahs-ark/backend/internal/genealogy"
)

// ErrSlotTaken is returned by a Store when asked to put a parent into a slot
// already held by someone else.
var ErrSlotTaken = errors.New("parent slot already taken")

// Store is the narrow contract the ancestry index needs from a graph backend.
// Edge writes must be idempotent.
type Store interface {
	EnsurePerson(ctx context.Context, id genealogy.PersonID) error
	Parentage(ctx context.Context, child genealogy.PersonID) (genealogy.Parentage, error)
	UpsertEdge(ctx context.Context, child, parent genealogy.PersonID, slot genealogy.Slot) error
	// ReplaceParents drops every CHILD_OF edge of child and inserts the given
	// pair, in one store-local transaction.
	ReplaceParents(ctx context.Context, child genealogy.PersonID, parents genealogy.Parentage) error
}

// AncestorQuerier is implemented by stores that can answer a generation-bounded
// ancestor query natively instead of one parent lookup per node.
type AncestorQuerier interface {
	AncestorsWithin(ctx context.Context, id genealogy.PersonID, maxGenerations int) ([]genealogy.PersonID, error)
}
