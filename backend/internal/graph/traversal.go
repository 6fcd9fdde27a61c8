package graph

import (
	"context"

	"noahs-ark/backend/internal/genealogy"
	arkerrors "noahs-ark/backend/pkg/errors"
)

type colour uint8

const (
	white colour = iota // not visited
	grey                // on the current DFS stack
	black               // fully explored
)

// closureWalker computes ancestor closures with a three-colour DFS. Meeting a
// grey node means the walk came back to itself: a cycle.
type closureWalker struct {
	ix      *Index
	colour  map[genealogy.PersonID]colour
	parents map[genealogy.PersonID][]genealogy.PersonID
}

func newClosureWalker(ix *Index) *closureWalker {
	return &closureWalker{
		ix:      ix,
		colour:  make(map[genealogy.PersonID]colour),
		parents: make(map[genealogy.PersonID][]genealogy.PersonID),
	}
}

func (w *closureWalker) visit(ctx context.Context, id genealogy.PersonID) error {
	switch w.colour[id] {
	case grey:
		return arkerrors.NewCyclicAncestry(id.String())
	case black:
		return nil
	}

	w.colour[id] = grey
	parents, err := w.ix.ParentsOf(ctx, id)
	if err != nil {
		return err
	}
	w.parents[id] = parents
	for _, p := range parents {
		if err := w.visit(ctx, p); err != nil {
			return err
		}
	}
	w.colour[id] = black
	return nil
}

// ancestorsOf must only be called for an already visited id
func (w *closureWalker) ancestorsOf(id genealogy.PersonID) genealogy.IDSet {
	out := genealogy.NewIDSet()
	stack := append([]genealogy.PersonID(nil), w.parents[id]...)
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if out.Has(cur) {
			continue
		}
		out.Add(cur)
		stack = append(stack, w.parents[cur]...)
	}
	return out
}

// pathWalker enumerates ascending paths by DFS. Nodes proven unable to reach
// the target are remembered in dead and never expanded again.
type pathWalker struct {
	ix      *Index
	to      genealogy.PersonID
	maxGen  int
	parents map[genealogy.PersonID][]genealogy.PersonID
	onPath  genealogy.IDSet
	dead    genealogy.IDSet
	stack   []genealogy.PersonID
	out     []genealogy.AncestorPath
}

// walk reports whether id reached the target and whether the depth bound cut
// the search short below id.
func (w *pathWalker) walk(ctx context.Context, id genealogy.PersonID, depth int) (found, truncated bool, err error) {
	if w.onPath.Has(id) {
		return false, false, arkerrors.NewCyclicAncestry(id.String())
	}

	w.stack = append(w.stack, id)
	defer func() { w.stack = w.stack[:len(w.stack)-1] }()

	if id == w.to {
		w.out = append(w.out, append(genealogy.AncestorPath(nil), w.stack...))
		return true, false, nil
	}
	if w.dead.Has(id) {
		return false, false, nil
	}
	if w.maxGen > 0 && depth >= w.maxGen {
		return false, true, nil
	}

	parents, ok := w.parents[id]
	if !ok {
		parents, err = w.ix.ParentsOf(ctx, id)
		if err != nil {
			return false, false, err
		}
		w.parents[id] = parents
	}

	w.onPath.Add(id)
	defer delete(w.onPath, id)

	for _, p := range parents {
		f, t, err := w.walk(ctx, p, depth+1)
		if err != nil {
			return false, false, err
		}
		found = found || f
		truncated = truncated || t
	}
	if !found && !truncated {
		w.dead.Add(id)
	}
	return found, truncated, nil
}
