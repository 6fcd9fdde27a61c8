// Package sosa numbers the ancestors of a root person following the
// Sosa-Stradonitz convention: the root is 1, the father of n is 2n and the
// mother of n is 2n+1.
package sosa

import (
	"context"
	"errors"
	"math"
	"sort"

	"noahs-ark/backend/internal/genealogy"
	arkerrors "noahs-ark/backend/pkg/errors"
)

// ErrNumberOverflow is returned when an ancestor lies too many generations up
// for its number to fit in 64 bits. Bound the run with MaxGenerations.
var ErrNumberOverflow = errors.New("sosa number overflows 64 bits")

// Graph is what numbering needs from the ancestry index
type Graph interface {
	Parentage(ctx context.Context, child genealogy.PersonID) (genealogy.Parentage, error)
	CheckAcyclic(ctx context.Context, person genealogy.PersonID) error
}

// Options bound a numbering run
type Options struct {
	// MaxGenerations stops numbering above this generation; 0 means unbounded
	MaxGenerations int
}

// Entry is one numbered ancestor
type Entry struct {
	Person genealogy.PersonID  `json:"person_id"`
	Number genealogy.SosaNumber `json:"sosa"`
}

// Result holds a numbering run. Every person appears at most once in Numbers;
// when the same ancestor is reached again through another line (pedigree
// collapse), the extra numbers are listed in Implex instead.
type Result struct {
	Root    genealogy.PersonID
	Numbers map[genealogy.PersonID]genealogy.SosaNumber
	Implex  map[genealogy.PersonID][]genealogy.SosaNumber
}

// Number returns the number given to id, if any
func (r *Result) Number(id genealogy.PersonID) (genealogy.SosaNumber, bool) {
	n, ok := r.Numbers[id]
	return n, ok
}

// Len is the number of numbered persons, root included
func (r *Result) Len() int {
	return len(r.Numbers)
}

// Sorted lists the numbered persons by ascending number
func (r *Result) Sorted() []Entry {
	out := make([]Entry, 0, len(r.Numbers))
	for id, n := range r.Numbers {
		out = append(out, Entry{Person: id, Number: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Generation lists the persons numbered in generation g (0 is the root)
func (r *Result) Generation(g int) []Entry {
	var out []Entry
	for _, e := range r.Sorted() {
		if e.Number.Generation() == g {
			out = append(out, e)
		}
	}
	return out
}

type queued struct {
	id     genealogy.PersonID
	number genealogy.SosaNumber
}

// Compute numbers every ancestor reachable from root, breadth first. Because
// the queue is processed in ascending number order, a person reached twice
// keeps the lowest number. A revisit triggers a cycle check over the root's
// ancestry; a cycle fails the run with CyclicAncestry.
func Compute(ctx context.Context, g Graph, root genealogy.PersonID, opts Options) (*Result, error) {
	res := &Result{
		Root:    root,
		Numbers: map[genealogy.PersonID]genealogy.SosaNumber{root: 1},
		Implex:  make(map[genealogy.PersonID][]genealogy.SosaNumber),
	}

	queue := []queued{{id: root, number: 1}}
	checkedCycles := false

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, arkerrors.NewContextCancelled("sosa numbering", err)
		}

		cur := queue[0]
		queue = queue[1:]

		if opts.MaxGenerations > 0 && cur.number.Generation() >= opts.MaxGenerations {
			continue
		}

		parentage, err := g.Parentage(ctx, cur.id)
		if err != nil {
			return nil, err
		}
		if parentage.Count() == 0 {
			continue
		}
		if uint64(cur.number) > math.MaxUint64>>1 {
			return nil, ErrNumberOverflow
		}

		for _, slot := range []genealogy.Slot{genealogy.SlotFather, genealogy.SlotMother} {
			parent := parentage.At(slot)
			if parent == nil {
				continue
			}
			number := 2*cur.number + genealogy.SosaNumber(slot)

			if _, seen := res.Numbers[*parent]; seen {
				if !checkedCycles {
					if err := g.CheckAcyclic(ctx, root); err != nil {
						return nil, err
					}
					checkedCycles = true
				}
				res.Implex[*parent] = append(res.Implex[*parent], number)
				continue
			}

			res.Numbers[*parent] = number
			queue = append(queue, queued{id: *parent, number: number})
		}
	}

	return res, nil
}
