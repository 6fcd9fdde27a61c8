// Package consanguinity computes inbreeding coefficients from the ancestry
// graph.
//
// For a person whose father and mother share common ancestors, the
// coefficient is the sum, over every common ancestor a and every pair of
// ascending paths (father to a, mother to a), of 0.5^(n+1) * (1 + F(a)), where
// n counts the edges of both paths and F(a) is a's own coefficient.
package consanguinity

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"noahs-ark/backend/internal/genealogy"
	arkerrors "noahs-ark/backend/pkg/errors"
	"noahs-ark/backend/pkg/logger"
)

// Graph is what the calculator needs from the ancestry index
type Graph interface {
	ParentsOf(ctx context.Context, person genealogy.PersonID) ([]genealogy.PersonID, error)
	CommonAncestors(ctx context.Context, a, b genealogy.PersonID) (genealogy.IDSet, error)
	PathsBetween(ctx context.Context, from, to genealogy.PersonID, maxGenerations int) ([]genealogy.AncestorPath, error)
}

// Calculator memoizes coefficients for its own lifetime. It is not safe for
// concurrent use; give each goroutine its own or wrap it with Locked.
type Calculator struct {
	graph          Graph
	maxGenerations int
	memo           map[genealogy.PersonID]float64
	inProgress     genealogy.IDSet
	logger         *zap.Logger
}

// Option configures a Calculator
type Option func(*Calculator)

// WithMaxGenerations caps the length of the paths enumerated to each common
// ancestor. 0 leaves them unbounded.
func WithMaxGenerations(n int) Option {
	return func(c *Calculator) {
		c.maxGenerations = n
	}
}

// NewCalculator creates a calculator with an empty memo
func NewCalculator(g Graph, opts ...Option) *Calculator {
	c := &Calculator{
		graph:      g,
		memo:       make(map[genealogy.PersonID]float64),
		inProgress: genealogy.NewIDSet(),
		logger:     logger.Component("consanguinity"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate returns the inbreeding coefficient of person. On error nothing
// is memoized for person or for any ancestor whose computation it aborted.
func (c *Calculator) Calculate(ctx context.Context, person genealogy.PersonID) (float64, error) {
	if f, ok := c.memo[person]; ok {
		return f, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, arkerrors.NewContextCancelled("consanguinity", err)
	}
	// Re-entering a person whose own computation is still running means the
	// ancestry loops back on itself.
	if c.inProgress.Has(person) {
		return 0, arkerrors.NewCyclicAncestry(person.String())
	}
	c.inProgress.Add(person)
	defer delete(c.inProgress, person)

	parents, err := c.graph.ParentsOf(ctx, person)
	if err != nil {
		return 0, err
	}
	if len(parents) < 2 {
		c.memo[person] = 0
		return 0, nil
	}
	father, mother := parents[0], parents[1]

	common, err := c.graph.CommonAncestors(ctx, father, mother)
	if err != nil {
		return 0, err
	}

	var sum float64
	// Sorted so the float additions happen in the same order on every run.
	for _, ancestor := range common.Sorted() {
		term, err := c.contribution(ctx, father, mother, ancestor)
		if err != nil {
			return 0, err
		}
		sum += term
	}

	c.memo[person] = sum
	c.logger.Debug("Coefficient computed",
		zap.String("person_id", person.String()),
		zap.Int("common_ancestors", len(common)),
		zap.Float64("coefficient", sum),
	)
	return sum, nil
}

func (c *Calculator) contribution(ctx context.Context, father, mother, ancestor genealogy.PersonID) (float64, error) {
	fatherPaths, err := c.graph.PathsBetween(ctx, father, ancestor, c.maxGenerations)
	if err != nil {
		return 0, err
	}
	motherPaths, err := c.graph.PathsBetween(ctx, mother, ancestor, c.maxGenerations)
	if err != nil {
		return 0, err
	}
	if len(fatherPaths) == 0 || len(motherPaths) == 0 {
		return 0, nil
	}

	fa, err := c.Calculate(ctx, ancestor)
	if err != nil {
		return 0, err
	}

	var term float64
	for _, fp := range fatherPaths {
		for _, mp := range motherPaths {
			n := fp.Len() + mp.Len()
			term += math.Pow(0.5, float64(n+1)) * (1 + fa)
		}
	}
	return term, nil
}

// CacheLen is the number of memoized coefficients
func (c *Calculator) CacheLen() int {
	return len(c.memo)
}

// Cached returns the memoized coefficient for person, if any
func (c *Calculator) Cached(person genealogy.PersonID) (float64, bool) {
	f, ok := c.memo[person]
	return f, ok
}

// ClearCache drops every memoized coefficient
func (c *Calculator) ClearCache() {
	c.memo = make(map[genealogy.PersonID]float64)
}

// Locked serializes access to one Calculator so its memo can be shared
// between goroutines.
type Locked struct {
	mu   sync.Mutex
	calc *Calculator
}

// NewLocked wraps calc
func NewLocked(calc *Calculator) *Locked {
	return &Locked{calc: calc}
}

func (l *Locked) Calculate(ctx context.Context, person genealogy.PersonID) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calc.Calculate(ctx, person)
}

func (l *Locked) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calc.ClearCache()
}

func (l *Locked) CacheLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calc.CacheLen()
}
