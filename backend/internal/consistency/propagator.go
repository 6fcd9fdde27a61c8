package consistency

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/metrics"
	arkerrors "noahs-ark/backend/pkg/errors"
	"noahs-ark/backend/pkg/logger"
)

// ErrPropagatorClosed is returned by Enqueue after Close
var ErrPropagatorClosed = errors.New("graph propagator is closed")

const (
	defaultWorkers         = 4
	defaultQueueSize       = 256
	defaultInitialInterval = 50 * time.Millisecond
	defaultMaxElapsed      = 30 * time.Second
)

type job struct {
	step     step
	enqueued time.Time
}

// Propagator applies graph plans asynchronously. Steps are partitioned by
// person so writes for one person are applied in enqueue order by a single
// worker. Failed steps are retried with exponential backoff until
// maxElapsed, then handed to the reporter.
type Propagator struct {
	graph    GraphIndex
	reporter FailureReporter
	logger   *zap.Logger

	workers         int
	queueSize       int
	initialInterval time.Duration
	maxElapsed      time.Duration

	mu      sync.RWMutex
	closed  bool
	queues  []chan job
	group   *errgroup.Group
	pending atomic.Int64
}

// PropagatorOption configures a Propagator
type PropagatorOption func(*Propagator)

func WithWorkers(n int) PropagatorOption {
	return func(p *Propagator) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) PropagatorOption {
	return func(p *Propagator) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithRetryWindow sets the first retry delay and the total time a step may
// spend retrying
func WithRetryWindow(initial, maxElapsed time.Duration) PropagatorOption {
	return func(p *Propagator) {
		if initial > 0 {
			p.initialInterval = initial
		}
		if maxElapsed > 0 {
			p.maxElapsed = maxElapsed
		}
	}
}

func NewPropagator(graph GraphIndex, reporter FailureReporter, opts ...PropagatorOption) *Propagator {
	p := &Propagator{
		graph:           graph,
		reporter:        reporter,
		logger:          logger.Component("propagator"),
		workers:         defaultWorkers,
		queueSize:       defaultQueueSize,
		initialInterval: defaultInitialInterval,
		maxElapsed:      defaultMaxElapsed,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Cancelling ctx aborts in-flight retries; queued
// steps are then reported as failed while the queues drain.
func (p *Propagator) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queues = make([]chan job, p.workers)
	p.group, ctx = errgroup.WithContext(ctx)
	for i := range p.queues {
		queue := make(chan job, p.queueSize)
		p.queues[i] = queue
		p.group.Go(func() error {
			p.work(ctx, queue)
			return nil
		})
	}

	p.logger.Info("Graph propagator started", zap.Int("workers", p.workers))
}

// Enqueue schedules every step of plan. It blocks while the target queue is
// full, until ctx is done.
func (p *Propagator) Enqueue(ctx context.Context, plan GraphPlan) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.queues == nil {
		return ErrPropagatorClosed
	}

	now := time.Now()
	for _, s := range plan.steps() {
		queue := p.queues[p.partition(s.person)]
		p.pending.Add(1)
		metrics.GraphSyncQueueDepth.Inc()
		select {
		case queue <- job{step: s, enqueued: now}:
		case <-ctx.Done():
			p.pending.Add(-1)
			metrics.GraphSyncQueueDepth.Dec()
			return ctx.Err()
		}
	}
	return nil
}

func (p *Propagator) partition(id genealogy.PersonID) int {
	return int(binary.BigEndian.Uint32(id[:4]) % uint32(len(p.queues)))
}

// Pending is the number of steps enqueued and not yet settled
func (p *Propagator) Pending() int64 {
	return p.pending.Load()
}

// Flush waits until every step enqueued so far has been applied or reported
func (p *Propagator) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for p.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting work, drains the queues and waits for the workers
func (p *Propagator) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, queue := range p.queues {
		close(queue)
	}
	group := p.group
	p.mu.Unlock()

	if group == nil {
		return nil
	}
	err := group.Wait()
	p.logger.Info("Graph propagator stopped")
	return err
}

func (p *Propagator) work(ctx context.Context, queue <-chan job) {
	for j := range queue {
		metrics.GraphSyncQueueDepth.Dec()
		p.process(ctx, j)
		p.pending.Add(-1)
	}
}

func (p *Propagator) process(ctx context.Context, j job) {
	defer metrics.ObserveSince(metrics.GraphSyncDuration.WithLabelValues("async"), j.enqueued)

	err := p.retry(ctx, func() error {
		return j.step.apply(ctx, p.graph)
	})
	if err != nil {
		p.reporter.ReportFailure(ctx, StageGraph, []genealogy.PersonID{j.step.person}, err)
		return
	}
	p.logger.Debug("Graph step applied",
		zap.String("person_id", j.step.person.String()),
		zap.Duration("lag", time.Since(j.enqueued)),
	)
}

func (p *Propagator) retry(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.MaxElapsedTime = p.maxElapsed

	return backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		err := op()
		if err != nil && !arkerrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(eb, ctx))
}
