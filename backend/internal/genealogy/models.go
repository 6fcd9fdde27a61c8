package genealogy

import (
	"fmt"
	"strings"
	"time"
)

// Sex of a person as recorded
type Sex string

const (
	SexMale    Sex = "Male"
	SexFemale  Sex = "Female"
	SexUnknown Sex = "Unknown"
)

// ParseSex accepts the spellings found in imported records
func ParseSex(input string) Sex {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "male", "m":
		return SexMale
	case "female", "f":
		return SexFemale
	default:
		return SexUnknown
	}
}

// Person is the full authoritative person record
type Person struct {
	ID            PersonID  `json:"id"`
	FirstName     string    `json:"first_name"`
	Surname       string    `json:"surname"`
	SurnamePrefix *string   `json:"surname_prefix,omitempty"`
	Nicknames     []string  `json:"nicknames"`
	Sex           Sex       `json:"sex"`
	Notes         *string   `json:"notes,omitempty"`
	Public        bool      `json:"public"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	UpdatedBy     *WizardID `json:"updated_by,omitempty"`
}

// DisplayName renders "First prefix Surname"
func (p Person) DisplayName() string {
	parts := []string{p.FirstName}
	if p.SurnamePrefix != nil && *p.SurnamePrefix != "" {
		parts = append(parts, *p.SurnamePrefix)
	}
	parts = append(parts, p.Surname)
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Nullable is a partial-update field: unset leaves the column alone, set with
// a nil Value clears it.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func SetTo[T any](v T) Nullable[T] { return Nullable[T]{Set: true, Value: &v} }
func SetNull[T any]() Nullable[T]  { return Nullable[T]{Set: true} }

// PersonUpdate holds the fields to change on a person; nil/unset means untouched
type PersonUpdate struct {
	FirstName     *string
	Surname       *string
	SurnamePrefix Nullable[string]
	Sex           *Sex
	Notes         Nullable[string]
	Public        *bool
	UpdatedBy     *WizardID
}

// HasChanges reports whether applying the update would modify anything
func (u PersonUpdate) HasChanges() bool {
	return u.FirstName != nil ||
		u.Surname != nil ||
		u.SurnamePrefix.Set ||
		u.Sex != nil ||
		u.Notes.Set ||
		u.Public != nil ||
		u.UpdatedBy != nil
}

// Family links two parents to an ordered list of children
type Family struct {
	ID        FamilyID   `json:"id"`
	Father    *PersonID  `json:"father,omitempty"`
	Mother    *PersonID  `json:"mother,omitempty"`
	Children  []PersonID `json:"children"`
	Notes     *string    `json:"notes,omitempty"`
	Public    bool       `json:"public"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Parentage is the parent pair every child of the family gets in the graph
func (f Family) Parentage() Parentage {
	return Parentage{Father: f.Father, Mother: f.Mother}
}

// HasChild reports whether id is listed among the children
func (f Family) HasChild(id PersonID) bool {
	for _, c := range f.Children {
		if c == id {
			return true
		}
	}
	return false
}

// FamilyDraft is the input for creating a family
type FamilyDraft struct {
	ID       FamilyID
	Father   *PersonID
	Mother   *PersonID
	Children []PersonID
	Notes    *string
	Public   bool
}

// FamilyChanges holds the fields to change on a family. Children, when
// non-nil, replaces the whole ordered child list.
type FamilyChanges struct {
	Father   Nullable[PersonID]
	Mother   Nullable[PersonID]
	Children *[]PersonID
	Notes    Nullable[string]
	Public   *bool
}

func (c FamilyChanges) HasChanges() bool {
	return c.Father.Set || c.Mother.Set || c.Children != nil || c.Notes.Set || c.Public != nil
}

// TouchesParentage reports whether the change alters any child's parent edges
func (c FamilyChanges) TouchesParentage() bool {
	return c.Father.Set || c.Mother.Set || c.Children != nil
}

// FamilyEvent is a dated event attached to a family (marriage, divorce...)
type FamilyEvent struct {
	ID        string     `json:"id"`
	FamilyID  FamilyID   `json:"family_id"`
	EventType string     `json:"event_type"`
	Date      *time.Time `json:"date,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
}

// Validate checks the event has the minimum needed to be stored
func (e FamilyEvent) Validate() error {
	if strings.TrimSpace(e.EventType) == "" {
		return fmt.Errorf("event type is required")
	}
	return nil
}
