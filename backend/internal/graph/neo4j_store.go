package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/pkg/logger"
)

// Neo4jStore keeps (:Person {id}) nodes and (child)-[:CHILD_OF {slot}]->(parent)
// edges in Neo4j.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore creates a new graph store on an open driver
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{
		driver: driver,
		logger: logger.Component("graph"),
	}
}

// Connect opens a driver and verifies connectivity
func Connect(ctx context.Context, uri, user, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}
	return NewNeo4jStore(driver), nil
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping checks the server is reachable
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// EnsureSchema creates the uniqueness constraint MERGE relies on
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `CREATE CONSTRAINT person_id_unique IF NOT EXISTS FOR (p:Person) REQUIRE p.id IS UNIQUE`
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("failed to create person constraint: %w", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to create person constraint: %w", err)
	}

	s.logger.Info("Graph schema ensured")
	return nil
}

// EnsurePerson creates the person node if it does not exist
func (s *Neo4jStore) EnsurePerson(ctx context.Context, id genealogy.PersonID) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MERGE (:Person {id: $id})`, map[string]interface{}{
		"id": id.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to merge person node: %w", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to merge person node: %w", err)
	}
	return nil
}

// Parentage reads the child's parents ordered by slot
func (s *Neo4jStore) Parentage(ctx context.Context, child genealogy.PersonID) (genealogy.Parentage, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (c:Person {id: $id})-[r:CHILD_OF]->(p:Person)
		RETURN p.id AS id, r.slot AS slot
		ORDER BY slot
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id": child.String(),
	})
	if err != nil {
		return genealogy.Parentage{}, fmt.Errorf("failed to query parents: %w", err)
	}

	var parentage genealogy.Parentage
	for result.Next(ctx) {
		record := result.Record()
		parent, err := recordPersonID(record, "id")
		if err != nil {
			return genealogy.Parentage{}, fmt.Errorf("invalid parent id on %s: %w", child, err)
		}
		slot, err := recordSlot(record, "slot")
		if err != nil {
			return genealogy.Parentage{}, fmt.Errorf("invalid parent edge on %s: %w", child, err)
		}
		if parentage.At(slot) != nil {
			// Two edges claiming one slot; keep the first and say so.
			s.logger.Warn("Duplicate parent slot",
				zap.String("child_id", child.String()),
				zap.Int("slot", int(slot)),
			)
			continue
		}
		parentage = parentage.With(slot, parent)
	}
	if err := result.Err(); err != nil {
		return genealogy.Parentage{}, fmt.Errorf("failed to read parents: %w", err)
	}

	return parentage, nil
}

// UpsertEdge merges a CHILD_OF edge. Re-asserting an existing edge is a no-op.
func (s *Neo4jStore) UpsertEdge(ctx context.Context, child, parent genealogy.PersonID, slot genealogy.Slot) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (c:Person {id: $child})
		MERGE (p:Person {id: $parent})
		MERGE (c)-[r:CHILD_OF]->(p)
		ON CREATE SET r.slot = $slot
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"child":  child.String(),
		"parent": parent.String(),
		"slot":   int64(slot),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert ancestry edge: %w", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to upsert ancestry edge: %w", err)
	}
	return nil
}

// ReplaceParents deletes then re-inserts the child's edges in one write transaction
func (s *Neo4jStore) ReplaceParents(ctx context.Context, child genealogy.PersonID, parents genealogy.Parentage) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		clear := `
			MERGE (c:Person {id: $child})
			WITH c
			OPTIONAL MATCH (c)-[r:CHILD_OF]->()
			DELETE r
		`
		res, err := tx.Run(ctx, clear, map[string]interface{}{"child": child.String()})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		link := `
			MATCH (c:Person {id: $child})
			MERGE (p:Person {id: $parent})
			MERGE (c)-[r:CHILD_OF]->(p)
			SET r.slot = $slot
		`
		for _, slot := range []genealogy.Slot{genealogy.SlotFather, genealogy.SlotMother} {
			parent := parents.At(slot)
			if parent == nil {
				continue
			}
			res, err := tx.Run(ctx, link, map[string]interface{}{
				"child":  child.String(),
				"parent": parent.String(),
				"slot":   int64(slot),
			})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace parents of %s: %w", child, err)
	}

	s.logger.Debug("Parent edges replaced",
		zap.String("child_id", child.String()),
		zap.Int("parents", parents.Count()),
	)
	return nil
}

// AncestorsWithin answers the bounded ancestor query in a single round trip.
// Cypher does not accept a parameter for the hop bound, so it is formatted in.
func (s *Neo4jStore) AncestorsWithin(ctx context.Context, id genealogy.PersonID, maxGenerations int) ([]genealogy.PersonID, error) {
	if maxGenerations < 1 {
		return nil, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (p:Person {id: $id})-[:CHILD_OF*1..%d]->(a:Person)
		RETURN DISTINCT a.id AS id
	`, maxGenerations)

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id": id.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query ancestors: %w", err)
	}

	var ids []genealogy.PersonID
	for result.Next(ctx) {
		ancestor, err := recordPersonID(result.Record(), "id")
		if err != nil {
			return nil, fmt.Errorf("invalid ancestor id: %w", err)
		}
		ids = append(ids, ancestor)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ancestors: %w", err)
	}
	return ids, nil
}

// DeletePerson detaches and removes a node. Only the integration tests use
// it; the index itself never deletes nodes.
func (s *Neo4jStore) DeletePerson(ctx context.Context, id genealogy.PersonID) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (p:Person {id: $id}) DETACH DELETE p`, map[string]interface{}{
		"id": id.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to delete person node: %w", err)
	}
	_, err = result.Consume(ctx)
	return err
}
