package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"noahs-ark/backend/internal/gedcom"
	"noahs-ark/backend/internal/genealogy"
)

var errWrongScope = errors.New("invocation does not carry the record this capability needs")

// Completeness scores how much of a person record is filled in
type Completeness struct{}

func (Completeness) Metadata() Metadata {
	return Metadata{
		Name:         "completeness",
		Version:      "1.0.0",
		Description:  "Scores how complete a person record is",
		Capabilities: []Capability{PersonInsights()},
	}
}

func (Completeness) Run(_ context.Context, _ Capability, inv Invocation) (Result, error) {
	p := inv.Person
	if p == nil {
		return Result{}, errWrongScope
	}

	checks := []struct {
		field  string
		filled bool
	}{
		{"first_name", strings.TrimSpace(p.FirstName) != ""},
		{"surname", strings.TrimSpace(p.Surname) != ""},
		{"sex", p.Sex != "" && p.Sex != genealogy.SexUnknown},
		{"nicknames", len(p.Nicknames) > 0},
		{"notes", p.Notes != nil && *p.Notes != ""},
	}

	var warnings []string
	filled := 0
	for _, c := range checks {
		if c.filled {
			filled++
		} else {
			warnings = append(warnings, "missing "+c.field)
		}
	}
	return Result{
		Result: map[string]interface{}{
			"score":  float64(filled) / float64(len(checks)),
			"filled": filled,
			"total":  len(checks),
		},
		Warnings: warnings,
	}, nil
}

// FamilyStatus summarizes a family's parents and children
type FamilyStatus struct{}

func (FamilyStatus) Metadata() Metadata {
	return Metadata{
		Name:         "family-status",
		Version:      "1.0.0",
		Description:  "Reports known parents and children of a family",
		Capabilities: []Capability{FamilyInsights()},
	}
}

func (FamilyStatus) Run(_ context.Context, _ Capability, inv Invocation) (Result, error) {
	f := inv.Family
	if f == nil {
		return Result{}, errWrongScope
	}

	var warnings []string
	if f.Father == nil {
		warnings = append(warnings, "unknown father")
	}
	if f.Mother == nil {
		warnings = append(warnings, "unknown mother")
	}
	if len(f.Children) == 0 {
		warnings = append(warnings, "no children recorded")
	}
	return Result{
		Result: map[string]interface{}{
			"parents":  f.Parentage().Count(),
			"children": len(f.Children),
			"public":   f.Public,
		},
		Warnings: warnings,
	}, nil
}

// GedcomExport exports a person as a simplified GEDCOM record
type GedcomExport struct{}

func (GedcomExport) Metadata() Metadata {
	return Metadata{
		Name:         "gedcom-export",
		Version:      "1.0.0",
		Description:  "Exports a person as a GEDCOM name line with a JSON payload",
		Capabilities: []Capability{Export("gedcom"), Export("json")},
	}
}

func (GedcomExport) Run(_ context.Context, c Capability, inv Invocation) (Result, error) {
	if inv.Person == nil {
		return Result{}, errWrongScope
	}
	switch c.Label {
	case "gedcom":
		rec, err := gedcom.ExportPerson(*inv.Person)
		if err != nil {
			return Result{}, err
		}
		return Result{Result: rec}, nil
	case "json":
		out, err := gedcom.ToJSON(*inv.Person)
		if err != nil {
			return Result{}, err
		}
		return Result{Result: out}, nil
	default:
		return Result{}, fmt.Errorf("unsupported export %q", c.Label)
	}
}
