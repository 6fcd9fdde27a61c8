package consistency

import (
	"context"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/records"
)

// GraphIndex is the part of the ancestry graph the write path updates
type GraphIndex interface {
	EnsurePerson(ctx context.Context, id genealogy.PersonID) error
	ReplaceParents(ctx context.Context, child genealogy.PersonID, parents genealogy.Parentage) error
}

// ChildParents is the full parent set a child must have in the graph
type ChildParents struct {
	Child     genealogy.PersonID
	Parentage genealogy.Parentage
}

// GraphPlan lists the graph writes implied by one committed record change.
// Edge entries replace a child's parents wholesale.
type GraphPlan struct {
	Ensure []genealogy.PersonID
	Edges  []ChildParents
}

func (p GraphPlan) Empty() bool {
	return len(p.Ensure) == 0 && len(p.Edges) == 0
}

// Affected lists every person the plan touches, in plan order without
// duplicates. These are the snapshots to invalidate.
func (p GraphPlan) Affected() []genealogy.PersonID {
	seen := genealogy.NewIDSet()
	var out []genealogy.PersonID
	add := func(id genealogy.PersonID) {
		if !seen.Has(id) {
			seen.Add(id)
			out = append(out, id)
		}
	}
	for _, id := range p.Ensure {
		add(id)
	}
	for _, e := range p.Edges {
		add(e.Child)
		for _, parent := range e.Parentage.Ordered() {
			add(parent)
		}
	}
	return out
}

// step is one graph write keyed by the person it belongs to. Steps for the
// same person must be applied in order; steps for different persons commute.
type step struct {
	person  genealogy.PersonID
	parents *genealogy.Parentage
}

func (s step) apply(ctx context.Context, g GraphIndex) error {
	if s.parents == nil {
		return g.EnsurePerson(ctx, s.person)
	}
	return g.ReplaceParents(ctx, s.person, *s.parents)
}

func (p GraphPlan) steps() []step {
	out := make([]step, 0, len(p.Ensure)+len(p.Edges))
	for _, id := range p.Ensure {
		out = append(out, step{person: id})
	}
	for _, e := range p.Edges {
		parents := e.Parentage
		out = append(out, step{person: e.Child, parents: &parents})
	}
	return out
}

func planForPerson(p *genealogy.Person) GraphPlan {
	return GraphPlan{Ensure: []genealogy.PersonID{p.ID}}
}

// planForFamily gives every child of a new family the family's parents
func planForFamily(f *genealogy.Family) GraphPlan {
	plan := GraphPlan{Ensure: f.Parentage().Ordered()}
	for _, child := range f.Children {
		plan.Edges = append(plan.Edges, ChildParents{Child: child, Parentage: f.Parentage()})
	}
	return plan
}

// planForRevision rewrites the edges of every child whose parents may have
// moved. Children dropped from the family lose their parents.
func planForRevision(rev *records.FamilyRevision) GraphPlan {
	affected := rev.AffectedChildren()
	if len(affected) == 0 && rev.Before.Parentage().Equal(rev.After.Parentage()) {
		return GraphPlan{}
	}
	plan := GraphPlan{Ensure: rev.After.Parentage().Ordered()}
	for _, child := range affected {
		plan.Edges = append(plan.Edges, ChildParents{Child: child, Parentage: rev.ParentageFor(child)})
	}
	return plan
}

// invalidationSet is every person whose snapshot a family revision may have
// made stale: the plan's persons plus the previous parents.
func invalidationSet(rev *records.FamilyRevision, plan GraphPlan) []genealogy.PersonID {
	ids := plan.Affected()
	seen := genealogy.NewIDSet(ids...)
	for _, parent := range rev.Before.Parentage().Ordered() {
		if !seen.Has(parent) {
			seen.Add(parent)
			ids = append(ids, parent)
		}
	}
	return ids
}
