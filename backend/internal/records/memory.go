package records

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"noahs-ark/backend/internal/constants"
	"noahs-ark/backend/internal/genealogy"
	arkerrors "noahs-ark/backend/pkg/errors"
)

// PrivacyLog is one recorded change of a person's public flag
type PrivacyLog struct {
	ID        string
	PersonID  genealogy.PersonID
	ChangedBy *genealogy.WizardID
	OldPublic bool
	NewPublic bool
	ChangedAt time.Time
}

// MemoryStore is an in-process Store used by tests and the "memory" database
// URL. It copies values in and out so callers never share state with it.
type MemoryStore struct {
	mu          sync.RWMutex
	persons     map[genealogy.PersonID]genealogy.Person
	families    map[genealogy.FamilyID]genealogy.Family
	events      []genealogy.FamilyEvent
	privacyLogs []PrivacyLog
	fail        error
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons:  make(map[genealogy.PersonID]genealogy.Person),
		families: make(map[genealogy.FamilyID]genealogy.Family),
		now:      time.Now,
	}
}

// FailWith makes every subsequent call fail with a RecordQueryFailed wrapping
// err. A nil err restores normal operation.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *MemoryStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return arkerrors.NewRecordQueryFailed(op, err)
	}
	if s.fail != nil {
		return arkerrors.NewRecordQueryFailed(op, s.fail)
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(ctx, "ping")
}

func (s *MemoryStore) CreatePerson(ctx context.Context, person genealogy.Person) (*genealogy.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "insert person"); err != nil {
		return nil, err
	}

	if person.ID.IsZero() {
		person.ID = genealogy.NewPersonID()
	}
	if person.Nicknames == nil {
		person.Nicknames = []string{}
	}
	if person.Sex == "" {
		person.Sex = genealogy.SexUnknown
	}
	now := s.now()
	person.CreatedAt, person.UpdatedAt = now, now

	stored := clonePerson(person)
	s.persons[person.ID] = stored
	out := clonePerson(stored)
	return &out, nil
}

func (s *MemoryStore) GetPerson(ctx context.Context, id genealogy.PersonID) (*genealogy.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "select person"); err != nil {
		return nil, err
	}
	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	out := clonePerson(p)
	return &out, nil
}

func (s *MemoryStore) UpdatePerson(ctx context.Context, id genealogy.PersonID, update genealogy.PersonUpdate) (*genealogy.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "update person"); err != nil {
		return nil, err
	}
	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	if !update.HasChanges() {
		out := clonePerson(p)
		return &out, nil
	}

	previousPublic := p.Public
	if update.FirstName != nil {
		p.FirstName = *update.FirstName
	}
	if update.Surname != nil {
		p.Surname = *update.Surname
	}
	if update.SurnamePrefix.Set {
		p.SurnamePrefix = cloneString(update.SurnamePrefix.Value)
	}
	if update.Sex != nil {
		p.Sex = *update.Sex
	}
	if update.Notes.Set {
		p.Notes = cloneString(update.Notes.Value)
	}
	if update.Public != nil {
		p.Public = *update.Public
	}
	if update.UpdatedBy != nil {
		by := *update.UpdatedBy
		p.UpdatedBy = &by
	}
	p.UpdatedAt = s.now()
	s.persons[id] = p

	if update.Public != nil && *update.Public != previousPublic {
		s.privacyLogs = append(s.privacyLogs, PrivacyLog{
			ID:        uuid.NewString(),
			PersonID:  id,
			ChangedBy: update.UpdatedBy,
			OldPublic: previousPublic,
			NewPublic: *update.Public,
			ChangedAt: p.UpdatedAt,
		})
	}

	out := clonePerson(p)
	return &out, nil
}

// SearchByName matches "surname first_name" case-insensitively against
// "%surname firstName%", ordered by surname then first name.
func (s *MemoryStore) SearchByName(ctx context.Context, surname, firstName string, limit int) ([]genealogy.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "search persons"); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > constants.SearchLimit {
		limit = constants.SearchLimit
	}

	needle := strings.ToLower(surname + " " + firstName)
	out := []genealogy.Person{}
	for _, p := range s.persons {
		if strings.Contains(strings.ToLower(p.Surname+" "+p.FirstName), needle) {
			out = append(out, clonePerson(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Surname != out[j].Surname {
			return out[i].Surname < out[j].Surname
		}
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateFamily(ctx context.Context, draft genealogy.FamilyDraft) (*genealogy.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "insert family"); err != nil {
		return nil, err
	}
	if draft.ID == (genealogy.FamilyID{}) {
		draft.ID = genealogy.NewFamilyID()
	}
	now := s.now()
	family := genealogy.Family{
		ID:        draft.ID,
		Father:    clonePersonID(draft.Father),
		Mother:    clonePersonID(draft.Mother),
		Children:  append([]genealogy.PersonID{}, draft.Children...),
		Notes:     cloneString(draft.Notes),
		Public:    draft.Public,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.families[family.ID] = family
	out := cloneFamily(family)
	return &out, nil
}

func (s *MemoryStore) GetFamily(ctx context.Context, id genealogy.FamilyID) (*genealogy.Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "select family"); err != nil {
		return nil, err
	}
	f, ok := s.families[id]
	if !ok {
		return nil, nil
	}
	out := cloneFamily(f)
	return &out, nil
}

func (s *MemoryStore) UpdateFamily(ctx context.Context, id genealogy.FamilyID, changes genealogy.FamilyChanges) (*FamilyRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "update family"); err != nil {
		return nil, err
	}
	before, ok := s.families[id]
	if !ok {
		return nil, nil
	}

	after := cloneFamily(before)
	if changes.Father.Set || changes.Mother.Set || changes.Notes.Set || changes.Public != nil {
		applyFamilyChanges(&after, changes)
		after.Father = clonePersonID(after.Father)
		after.Mother = clonePersonID(after.Mother)
		after.Notes = cloneString(after.Notes)
		after.UpdatedAt = s.now()
	}
	if changes.Children != nil {
		after.Children = append([]genealogy.PersonID{}, (*changes.Children)...)
	}
	s.families[id] = after

	return &FamilyRevision{Before: cloneFamily(before), After: cloneFamily(after)}, nil
}

func (s *MemoryStore) AddFamilyEvent(ctx context.Context, event genealogy.FamilyEvent) (*genealogy.FamilyEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "insert family event"); err != nil {
		return nil, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.events = append(s.events, event)
	return &event, nil
}

// FamilyEvents returns the events recorded for a family, oldest first
func (s *MemoryStore) FamilyEvents(id genealogy.FamilyID) []genealogy.FamilyEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []genealogy.FamilyEvent
	for _, e := range s.events {
		if e.FamilyID == id {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) PrivacyLogs() []PrivacyLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PrivacyLog(nil), s.privacyLogs...)
}

func clonePerson(p genealogy.Person) genealogy.Person {
	p.Nicknames = append([]string{}, p.Nicknames...)
	p.SurnamePrefix = cloneString(p.SurnamePrefix)
	p.Notes = cloneString(p.Notes)
	if p.UpdatedBy != nil {
		by := *p.UpdatedBy
		p.UpdatedBy = &by
	}
	return p
}

func cloneFamily(f genealogy.Family) genealogy.Family {
	f.Father = clonePersonID(f.Father)
	f.Mother = clonePersonID(f.Mother)
	f.Notes = cloneString(f.Notes)
	f.Children = append([]genealogy.PersonID{}, f.Children...)
	return f
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func clonePersonID(id *genealogy.PersonID) *genealogy.PersonID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
