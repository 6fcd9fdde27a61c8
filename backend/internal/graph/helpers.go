package graph

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"noahs-ark/backend/internal/genealogy"
)

// recordPersonID reads a person id stored as a string property
func recordPersonID(record *neo4j.Record, key string) (genealogy.PersonID, error) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return genealogy.PersonID{}, fmt.Errorf("record has no %q", key)
	}
	str, ok := val.(string)
	if !ok {
		return genealogy.PersonID{}, fmt.Errorf("%q is %T, not a string", key, val)
	}
	return genealogy.ParsePersonID(str)
}

// recordSlot reads the slot property of a CHILD_OF edge. Neo4j returns
// integers as int64.
func recordSlot(record *neo4j.Record, key string) (genealogy.Slot, error) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0, fmt.Errorf("record has no %q", key)
	}
	var n int64
	switch v := val.(type) {
	case int64:
		n = v
	case int:
		n = int64(v)
	default:
		return 0, fmt.Errorf("%q is %T, not an integer", key, val)
	}
	slot := genealogy.Slot(n)
	if slot != genealogy.SlotFather && slot != genealogy.SlotMother {
		return 0, fmt.Errorf("slot %d out of range", n)
	}
	return slot, nil
}
