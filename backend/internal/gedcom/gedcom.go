// Package gedcom converts person records to and from a simplified GEDCOM
// record: the GEDCOM-style name line plus the full record as JSON.
package gedcom

import (
	"encoding/json"
	"fmt"
	"strings"

	"noahs-ark/backend/internal/genealogy"
)

// Record is one exported person
type Record struct {
	// Name uses the GEDCOM NAME convention: "First /Surname/"
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// ExportPerson builds the record for p
func ExportPerson(p genealogy.Person) (Record, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode person %s: %w", p.ID, err)
	}
	return Record{Name: NameLine(p), Payload: payload}, nil
}

// ImportPerson decodes the person carried by r
func ImportPerson(r Record) (genealogy.Person, error) {
	var p genealogy.Person
	if len(r.Payload) == 0 {
		return p, fmt.Errorf("record %q has no payload", r.Name)
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode record %q: %w", r.Name, err)
	}
	if p.Nicknames == nil {
		p.Nicknames = []string{}
	}
	return p, nil
}

// NameLine renders the GEDCOM name of p. The surname prefix belongs inside the
// slashes.
func NameLine(p genealogy.Person) string {
	surname := p.Surname
	if p.SurnamePrefix != nil && *p.SurnamePrefix != "" {
		surname = *p.SurnamePrefix + " " + surname
	}
	return strings.TrimSpace(fmt.Sprintf("%s /%s/", p.FirstName, surname))
}

// ToJSON renders p as indented JSON
func ToJSON(p genealogy.Person) (string, error) {
	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode person %s: %w", p.ID, err)
	}
	return string(out), nil
}
