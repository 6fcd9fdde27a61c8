package genealogy

import (
	"math/bits"
	"strings"
)

// Slot is the position of a parent on a child's ancestry edges
type Slot int

const (
	SlotFather Slot = 0
	SlotMother Slot = 1
)

// MaxParents is the number of parent slots per child
const MaxParents = 2

// Parentage is the pair of recorded parents of one child. Either may be
// unknown.
type Parentage struct {
	Father *PersonID `json:"father,omitempty"`
	Mother *PersonID `json:"mother,omitempty"`
}

// Ordered returns the known parents, father first
func (p Parentage) Ordered() []PersonID {
	out := make([]PersonID, 0, MaxParents)
	if p.Father != nil {
		out = append(out, *p.Father)
	}
	if p.Mother != nil {
		out = append(out, *p.Mother)
	}
	return out
}

func (p Parentage) Count() int { return len(p.Ordered()) }

func (p Parentage) Contains(id PersonID) bool {
	return (p.Father != nil && *p.Father == id) || (p.Mother != nil && *p.Mother == id)
}

// At returns the parent in slot, if any
func (p Parentage) At(slot Slot) *PersonID {
	if slot == SlotFather {
		return p.Father
	}
	return p.Mother
}

// With returns a copy with slot set to id
func (p Parentage) With(slot Slot, id PersonID) Parentage {
	if slot == SlotFather {
		p.Father = &id
	} else {
		p.Mother = &id
	}
	return p
}

// Equal compares by identifier, not pointer
func (p Parentage) Equal(other Parentage) bool {
	return samePtr(p.Father, other.Father) && samePtr(p.Mother, other.Mother)
}

func samePtr(a, b *PersonID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// AncestorPath runs from a descendant up to one of its ancestors, both ends
// included.
type AncestorPath []PersonID

// Len is the number of edges, i.e. the generational distance
func (p AncestorPath) Len() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

func (p AncestorPath) String() string {
	parts := make([]string, len(p))
	for i, id := range p {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}

// SosaNumber is a Sosa-Stradonitz ancestor number: root 1, father 2n, mother 2n+1
type SosaNumber uint64

// Generation is 0 for the root, 1 for parents, 2 for grandparents...
func (n SosaNumber) Generation() int {
	if n == 0 {
		return -1
	}
	return bits.Len64(uint64(n)) - 1
}

// IsPaternal reports whether the number is in the father's half of the tree
func (n SosaNumber) IsPaternal() bool {
	g := n.Generation()
	if g < 1 {
		return false
	}
	return (uint64(n)>>(g-1))&1 == 0
}
