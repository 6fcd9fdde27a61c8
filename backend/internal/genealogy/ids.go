package genealogy

import (
	"sort"

	"github.com/google/uuid"
)

// PersonID identifies a person for their whole lifetime
type PersonID uuid.UUID

// FamilyID identifies a family unit (two parents and their children)
type FamilyID uuid.UUID

// WizardID identifies the administrator who last touched a record
type WizardID uuid.UUID

func NewPersonID() PersonID { return PersonID(uuid.New()) }
func NewFamilyID() FamilyID { return FamilyID(uuid.New()) }

// ParsePersonID parses the canonical UUID form
func ParsePersonID(s string) (PersonID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PersonID{}, err
	}
	return PersonID(u), nil
}

func ParseFamilyID(s string) (FamilyID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return FamilyID{}, err
	}
	return FamilyID(u), nil
}

func ParseWizardID(s string) (WizardID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return WizardID{}, err
	}
	return WizardID(u), nil
}

func (id PersonID) String() string { return uuid.UUID(id).String() }
func (id FamilyID) String() string { return uuid.UUID(id).String() }
func (id WizardID) String() string { return uuid.UUID(id).String() }

func (id PersonID) IsZero() bool { return id == PersonID{} }

func (id PersonID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id FamilyID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id WizardID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *PersonID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = PersonID(u)
	return nil
}

func (id *FamilyID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = FamilyID(u)
	return nil
}

func (id *WizardID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = WizardID(u)
	return nil
}

// IDSet is an unordered set of person identifiers
type IDSet map[PersonID]struct{}

func NewIDSet(ids ...PersonID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id PersonID) { s[id] = struct{}{} }

func (s IDSet) Has(id PersonID) bool {
	_, ok := s[id]
	return ok
}

// Intersect returns the identifiers present in both sets
func (s IDSet) Intersect(other IDSet) IDSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(IDSet)
	for id := range small {
		if large.Has(id) {
			out.Add(id)
		}
	}
	return out
}

// Sorted returns the members in a stable order so that callers iterating the
// set (and summing floats over it) get reproducible results.
func (s IDSet) Sorted() []PersonID {
	ids := make([]PersonID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
