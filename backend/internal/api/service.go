// Package api exposes the record store and the ancestry analytics over REST
// (gin) and GraphQL.
package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"noahs-ark/backend/internal/consanguinity"
	"noahs-ark/backend/internal/consistency"
	"noahs-ark/backend/internal/constants"
	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/graph"
	"noahs-ark/backend/internal/metrics"
	"noahs-ark/backend/internal/plugins"
	"noahs-ark/backend/internal/sosa"
	arkerrors "noahs-ark/backend/pkg/errors"
	"noahs-ark/backend/pkg/logger"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the API serves from
type Deps struct {
	Coordinator    *consistency.Coordinator
	Index          *graph.Index
	Plugins        *plugins.Registry
	MaxGenerations int
	HealthChecks   map[string]HealthCheck
	Production     bool
}

// Service holds the read-side operations shared by the REST handlers and
// the GraphQL resolvers
type Service struct {
	coord          *consistency.Coordinator
	index          *graph.Index
	plugins        *plugins.Registry
	maxGenerations int
	checks         map[string]HealthCheck
	logger         *zap.Logger
}

func NewService(deps Deps) *Service {
	registry := deps.Plugins
	if registry == nil {
		registry = plugins.NewDefaultRegistry()
	}
	return &Service{
		coord:          deps.Coordinator,
		index:          deps.Index,
		plugins:        registry,
		maxGenerations: deps.MaxGenerations,
		checks:         deps.HealthChecks,
		logger:         logger.Component("api"),
	}
}

// PersonSummary is the short form of a person used in analytics results
type PersonSummary struct {
	ID        genealogy.PersonID `json:"id"`
	FirstName string             `json:"first_name,omitempty"`
	Surname   string             `json:"surname,omitempty"`
	Sex       genealogy.Sex      `json:"sex,omitempty"`
}

// SosaEntry is one numbered ancestor
type SosaEntry struct {
	PersonSummary
	Sosa       genealogy.SosaNumber `json:"sosa"`
	Generation int                  `json:"generation"`
	Paternal   bool                 `json:"paternal"`
}

// ImplexEntry lists the extra numbers of an ancestor reached through more
// than one line
type ImplexEntry struct {
	PersonID genealogy.PersonID     `json:"person_id"`
	Numbers  []genealogy.SosaNumber `json:"numbers"`
}

type SosaView struct {
	Root      genealogy.PersonID `json:"root"`
	Ancestors []SosaEntry        `json:"ancestors"`
	Implex    []ImplexEntry      `json:"implex"`
}

type ConsanguinityView struct {
	PersonID    genealogy.PersonID `json:"person_id"`
	Coefficient float64            `json:"coefficient"`
}

type RelationshipView struct {
	Person1     genealogy.PersonID `json:"person1"`
	Person2     genealogy.PersonID `json:"person2"`
	Related     bool               `json:"related"`
	Degree      *int               `json:"degree,omitempty"`
	Description string             `json:"description"`
}

// Person reads through the snapshot cache
func (s *Service) Person(ctx context.Context, id genealogy.PersonID) (*genealogy.Person, error) {
	return s.coord.GetPerson(ctx, id)
}

func (s *Service) Search(ctx context.Context, surname, firstName string, limit int) ([]genealogy.Person, error) {
	return s.coord.SearchPersons(ctx, surname, firstName, limit)
}

// Ancestors lists the ancestors of id up to generations edges away, sorted by
// identifier
func (s *Service) Ancestors(ctx context.Context, id genealogy.PersonID, generations int) ([]PersonSummary, error) {
	defer metrics.ObserveSince(metrics.ComputationDuration.WithLabelValues("ancestors"), time.Now())

	if generations <= 0 {
		generations = constants.DefaultAncestorGenerations
	}
	if generations > constants.MaxAncestorGenerations {
		generations = constants.MaxAncestorGenerations
	}
	if _, err := s.coord.GetPerson(ctx, id); err != nil {
		return nil, err
	}

	set, err := s.index.AncestorsWithinDistance(ctx, id, generations)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, set.Sorted())
}

// Sosa numbers the ancestors of id
func (s *Service) Sosa(ctx context.Context, id genealogy.PersonID) (*SosaView, error) {
	defer metrics.ObserveSince(metrics.ComputationDuration.WithLabelValues("sosa"), time.Now())

	if _, err := s.coord.GetPerson(ctx, id); err != nil {
		return nil, err
	}
	result, err := sosa.Compute(ctx, s.index, id, sosa.Options{MaxGenerations: s.maxGenerations})
	if err != nil {
		return nil, err
	}

	entries := result.Sorted()
	ids := make([]genealogy.PersonID, len(entries))
	for i, e := range entries {
		ids[i] = e.Person
	}
	people, err := s.summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &SosaView{Root: id, Ancestors: make([]SosaEntry, len(entries)), Implex: []ImplexEntry{}}
	for i, e := range entries {
		view.Ancestors[i] = SosaEntry{
			PersonSummary: people[i],
			Sosa:          e.Number,
			Generation:    e.Number.Generation(),
			Paternal:      e.Number.IsPaternal(),
		}
	}
	for _, e := range entries {
		if extra, ok := result.Implex[e.Person]; ok {
			view.Implex = append(view.Implex, ImplexEntry{PersonID: e.Person, Numbers: extra})
		}
	}
	return view, nil
}

// Consanguinity computes the inbreeding coefficient of id with a fresh
// calculator
func (s *Service) Consanguinity(ctx context.Context, id genealogy.PersonID) (*ConsanguinityView, error) {
	defer metrics.ObserveSince(metrics.ComputationDuration.WithLabelValues("consanguinity"), time.Now())

	if _, err := s.coord.GetPerson(ctx, id); err != nil {
		return nil, err
	}
	calc := consanguinity.NewCalculator(s.index, consanguinity.WithMaxGenerations(s.maxGenerations))
	f, err := calc.Calculate(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ConsanguinityView{PersonID: id, Coefficient: f}, nil
}

// Relationship finds the blood-relation degree between two persons
func (s *Service) Relationship(ctx context.Context, a, b genealogy.PersonID) (*RelationshipView, error) {
	defer metrics.ObserveSince(metrics.ComputationDuration.WithLabelValues("relationship"), time.Now())

	for _, id := range []genealogy.PersonID{a, b} {
		if _, err := s.coord.GetPerson(ctx, id); err != nil {
			return nil, err
		}
	}
	degree, ok, err := s.index.RelationshipDegree(ctx, a, b)
	if err != nil {
		return nil, err
	}
	view := &RelationshipView{Person1: a, Person2: b, Related: ok, Description: "No relation found"}
	if ok {
		view.Degree = &degree
		view.Description = graph.DescribeDegree(degree)
	}
	return view, nil
}

// RunPersonPlugins runs the plugins supporting capability on a person
func (s *Service) RunPersonPlugins(ctx context.Context, id genealogy.PersonID, capability plugins.Capability, config []byte) ([]plugins.Response, error) {
	person, err := s.coord.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.plugins.Run(ctx, capability, plugins.ForPerson(person).WithConfig(config))
}

// RunFamilyPlugins runs the plugins supporting capability on a family
func (s *Service) RunFamilyPlugins(ctx context.Context, id genealogy.FamilyID, capability plugins.Capability, config []byte) ([]plugins.Response, error) {
	family, err := s.coord.GetFamily(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.plugins.Run(ctx, capability, plugins.ForFamily(family).WithConfig(config))
}

// summaries materializes ids through the cache. A person known to the graph
// but missing from the records keeps only its identifier.
func (s *Service) summaries(ctx context.Context, ids []genealogy.PersonID) ([]PersonSummary, error) {
	out := make([]PersonSummary, len(ids))
	for i, id := range ids {
		out[i] = PersonSummary{ID: id}
		p, err := s.coord.GetPerson(ctx, id)
		if arkerrors.IsNotFound(err) {
			s.logger.Warn("Graph node without a record", zap.String("person_id", id.String()))
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i].FirstName = p.FirstName
		out[i].Surname = p.Surname
		out[i].Sex = p.Sex
	}
	return out, nil
}

// Health runs every check and returns the failures by name
func (s *Service) Health(ctx context.Context) map[string]string {
	failures := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}
