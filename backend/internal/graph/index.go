package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"noahs-ark/backend/internal/genealogy"
	arkerrors "noahs-ark/backend/pkg/errors"
	"noahs-ark/backend/pkg/logger"
)

var (
	// ErrParentLimit is returned when a child already has two distinct parents
	ErrParentLimit = errors.New("child already has two parents")
	// ErrInvalidGenerations is returned for a generation bound below 1
	ErrInvalidGenerations = errors.New("generations must be at least 1")
)

// Index is the traversal-oriented view of the ancestry edges. It mirrors the
// record store and may lag behind it.
type Index struct {
	store       Store
	callTimeout time.Duration
	logger      *zap.Logger
}

// Option configures an Index
type Option func(*Index)

// WithCallTimeout bounds every individual store call. A call that runs out of
// time fails with GraphUnavailable.
func WithCallTimeout(d time.Duration) Option {
	return func(ix *Index) {
		ix.callTimeout = d
	}
}

// NewIndex creates an index over store
func NewIndex(store Store, opts ...Option) *Index {
	ix := &Index{
		store:  store,
		logger: logger.Component("graph.index"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Store returns the backing store
func (ix *Index) Store() Store {
	return ix.store
}

func (ix *Index) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return arkerrors.NewGraphUnavailable(operation, err)
	}
	if ix.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.callTimeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		return arkerrors.NewGraphUnavailable(operation, err)
	}
	return nil
}

// EnsurePerson creates the node for id
func (ix *Index) EnsurePerson(ctx context.Context, id genealogy.PersonID) error {
	return ix.call(ctx, "ensure person", func(ctx context.Context) error {
		return ix.store.EnsurePerson(ctx, id)
	})
}

// UpsertEdge asserts child -> parent in the first free slot. Asserting an edge
// that already exists is a no-op.
func (ix *Index) UpsertEdge(ctx context.Context, child, parent genealogy.PersonID) error {
	current, err := ix.Parentage(ctx, child)
	if err != nil {
		return err
	}
	if current.Contains(parent) {
		return nil
	}

	slot := genealogy.SlotFather
	if current.Father != nil {
		if current.Mother != nil {
			return ErrParentLimit
		}
		slot = genealogy.SlotMother
	}

	var slotErr error
	err = ix.call(ctx, "upsert edge", func(ctx context.Context) error {
		err := ix.store.UpsertEdge(ctx, child, parent, slot)
		if errors.Is(err, ErrSlotTaken) {
			// Lost a race with another writer; not a store outage.
			slotErr = ErrParentLimit
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return slotErr
}

// ReplaceParents swaps all of child's edges for parents in one store transaction
func (ix *Index) ReplaceParents(ctx context.Context, child genealogy.PersonID, parents genealogy.Parentage) error {
	return ix.call(ctx, "replace parents", func(ctx context.Context) error {
		return ix.store.ReplaceParents(ctx, child, parents)
	})
}

// Parentage returns child's parents by slot
func (ix *Index) Parentage(ctx context.Context, child genealogy.PersonID) (genealogy.Parentage, error) {
	var parentage genealogy.Parentage
	err := ix.call(ctx, "parents lookup", func(ctx context.Context) error {
		var err error
		parentage, err = ix.store.Parentage(ctx, child)
		return err
	})
	return parentage, err
}

// ParentsOf returns zero, one or two parents, father first
func (ix *Index) ParentsOf(ctx context.Context, person genealogy.PersonID) ([]genealogy.PersonID, error) {
	parentage, err := ix.Parentage(ctx, person)
	if err != nil {
		return nil, err
	}
	return parentage.Ordered(), nil
}

// AncestorsWithinDistance returns every ancestor at most maxGenerations edges
// above person. Any store failure fails the whole call.
func (ix *Index) AncestorsWithinDistance(ctx context.Context, person genealogy.PersonID, maxGenerations int) (genealogy.IDSet, error) {
	if maxGenerations < 1 {
		return nil, ErrInvalidGenerations
	}

	if q, ok := ix.store.(AncestorQuerier); ok {
		var ids []genealogy.PersonID
		err := ix.call(ctx, "ancestors query", func(ctx context.Context) error {
			var err error
			ids, err = q.AncestorsWithin(ctx, person, maxGenerations)
			return err
		})
		if err != nil {
			return nil, err
		}
		return genealogy.NewIDSet(ids...), nil
	}

	result := genealogy.NewIDSet()
	expanded := genealogy.NewIDSet(person)
	frontier := []genealogy.PersonID{person}
	for gen := 1; gen <= maxGenerations && len(frontier) > 0; gen++ {
		var next []genealogy.PersonID
		for _, id := range frontier {
			parents, err := ix.ParentsOf(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, parent := range parents {
				result.Add(parent)
				if !expanded.Has(parent) {
					expanded.Add(parent)
					next = append(next, parent)
				}
			}
		}
		frontier = next
	}
	return result, nil
}

// AncestorDistances maps person (at 0) and each of its ancestors to the
// shortest number of edges separating them.
func (ix *Index) AncestorDistances(ctx context.Context, person genealogy.PersonID) (map[genealogy.PersonID]int, error) {
	dist := map[genealogy.PersonID]int{person: 0}
	frontier := []genealogy.PersonID{person}
	for depth := 1; len(frontier) > 0; depth++ {
		var next []genealogy.PersonID
		for _, id := range frontier {
			parents, err := ix.ParentsOf(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, parent := range parents {
				if _, seen := dist[parent]; seen {
					continue
				}
				dist[parent] = depth
				next = append(next, parent)
			}
		}
		frontier = next
	}
	return dist, nil
}

// Ancestors returns the full set of strict ancestors of person, failing with
// CyclicAncestry if any of them lies on a cycle.
func (ix *Index) Ancestors(ctx context.Context, person genealogy.PersonID) (genealogy.IDSet, error) {
	w := newClosureWalker(ix)
	if err := w.visit(ctx, person); err != nil {
		return nil, err
	}
	return w.ancestorsOf(person), nil
}

// CheckAcyclic fails with CyclicAncestry if the ancestry above person has a cycle
func (ix *Index) CheckAcyclic(ctx context.Context, person genealogy.PersonID) error {
	return newClosureWalker(ix).visit(ctx, person)
}

// CommonAncestors returns the identifiers that are strict ancestors of both a
// and b. A person is not its own ancestor.
func (ix *Index) CommonAncestors(ctx context.Context, a, b genealogy.PersonID) (genealogy.IDSet, error) {
	w := newClosureWalker(ix)
	if err := w.visit(ctx, a); err != nil {
		return nil, err
	}
	if err := w.visit(ctx, b); err != nil {
		return nil, err
	}
	return w.ancestorsOf(a).Intersect(w.ancestorsOf(b)), nil
}

// PathsBetween enumerates every ascending path from `from` to `to`. The number
// of paths can grow exponentially with depth; maxGenerations > 0 caps the path
// length and 0 leaves it unbounded.
func (ix *Index) PathsBetween(ctx context.Context, from, to genealogy.PersonID, maxGenerations int) ([]genealogy.AncestorPath, error) {
	w := &pathWalker{
		ix:      ix,
		to:      to,
		maxGen:  maxGenerations,
		parents: make(map[genealogy.PersonID][]genealogy.PersonID),
		onPath:  genealogy.NewIDSet(),
		dead:    genealogy.NewIDSet(),
	}
	if _, _, err := w.walk(ctx, from, 0); err != nil {
		return nil, err
	}
	return w.out, nil
}

// RelationshipDegree is the number of edges between a and b through their
// nearest shared ancestor (either may be that ancestor). ok is false when no
// blood relation is recorded.
func (ix *Index) RelationshipDegree(ctx context.Context, a, b genealogy.PersonID) (degree int, ok bool, err error) {
	da, err := ix.AncestorDistances(ctx, a)
	if err != nil {
		return 0, false, err
	}
	db, err := ix.AncestorDistances(ctx, b)
	if err != nil {
		return 0, false, err
	}

	degree = -1
	for id, x := range da {
		y, shared := db[id]
		if !shared {
			continue
		}
		if degree < 0 || x+y < degree {
			degree = x + y
		}
	}
	if degree < 0 {
		return 0, false, nil
	}
	return degree, true, nil
}

// DescribeDegree gives a human label for a relationship degree
func DescribeDegree(degree int) string {
	switch degree {
	case 0:
		return "Same person"
	case 1:
		return "Parent/child"
	case 2:
		return "Siblings or grandparent"
	case 3:
		return "Uncle/aunt or great-grandparent"
	default:
		return fmt.Sprintf("Relation in the %s degree", ordinal(degree))
	}
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
