// Package graphtest builds small named pedigrees on an in-memory graph store.
package graphtest

import (
	"context"

	"github.com/google/uuid"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/graph"
)

// Pedigree names people with short labels and derives stable identifiers from
// them, so two pedigrees built the same way share identifiers.
type Pedigree struct {
	Store *graph.MemoryStore
	Index *graph.Index
	names map[genealogy.PersonID]string
}

// New returns an empty pedigree
func New(opts ...graph.Option) *Pedigree {
	store := graph.NewMemoryStore()
	return &Pedigree{
		Store: store,
		Index: graph.NewIndex(store, opts...),
		names: make(map[genealogy.PersonID]string),
	}
}

// ID returns the identifier for name
func (p *Pedigree) ID(name string) genealogy.PersonID {
	id := genealogy.PersonID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("pedigree/"+name)))
	p.names[id] = name
	return id
}

// Name maps an identifier back to its label
func (p *Pedigree) Name(id genealogy.PersonID) string {
	if name, ok := p.names[id]; ok {
		return name
	}
	return id.String()
}

// Names labels a set, in sorted identifier order
func (p *Pedigree) Names(set genealogy.IDSet) []string {
	out := make([]string, 0, len(set))
	for _, id := range set.Sorted() {
		out = append(out, p.Name(id))
	}
	return out
}

// Parents records father and mother of child. An empty name leaves the slot
// unknown. It panics on store failure, which only happens after fault injection.
func (p *Pedigree) Parents(child, father, mother string) *Pedigree {
	var parentage genealogy.Parentage
	if father != "" {
		parentage = parentage.With(genealogy.SlotFather, p.ID(father))
	}
	if mother != "" {
		parentage = parentage.With(genealogy.SlotMother, p.ID(mother))
	}
	if err := p.Store.ReplaceParents(context.Background(), p.ID(child), parentage); err != nil {
		panic(err)
	}
	return p
}
