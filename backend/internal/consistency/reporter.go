package consistency

import (
	"context"

	"go.uber.org/zap"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/metrics"
	"noahs-ark/backend/pkg/logger"
)

// Stage names a best-effort step that runs after the record commit
type Stage string

const (
	StageGraph Stage = "graph"
	StageCache Stage = "cache"
)

// FailureReporter receives post-commit stages that could not complete. The
// committed record stays in place; the reporter is how an operator finds the
// identifiers whose derived state is stale.
type FailureReporter interface {
	ReportFailure(ctx context.Context, stage Stage, ids []genealogy.PersonID, err error)
}

// ReporterFunc adapts a function to FailureReporter
type ReporterFunc func(ctx context.Context, stage Stage, ids []genealogy.PersonID, err error)

func (f ReporterFunc) ReportFailure(ctx context.Context, stage Stage, ids []genealogy.PersonID, err error) {
	f(ctx, stage, ids, err)
}

// LogReporter logs failures and counts them per stage
type LogReporter struct {
	logger *zap.Logger
}

func NewLogReporter() *LogReporter {
	return &LogReporter{logger: logger.Component("consistency")}
}

func (r *LogReporter) ReportFailure(_ context.Context, stage Stage, ids []genealogy.PersonID, err error) {
	metrics.StageFailures.WithLabelValues(string(stage)).Inc()
	r.logger.Error("Post-commit stage failed",
		zap.String("stage", string(stage)),
		zap.Strings("person_ids", idStrings(ids)),
		zap.Error(err),
	)
}

func idStrings(ids []genealogy.PersonID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
