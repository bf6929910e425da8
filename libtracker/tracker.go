// Package libtracker provides lightweight operation tracking for service
// decorators: every tracked operation reports start, error, and state-change
// events to a pluggable sink (slog by default).
package libtracker

import (
	"context"
	"log/slog"
	"time"
)

// ActivityTracker observes service operations. Start returns three
// callbacks: report an error, report a resulting state change, and end the
// operation.
type ActivityTracker interface {
	Start(ctx context.Context, operation, subject string, kvArgs ...any) (func(error), func(id string, data map[string]interface{}), func())
}

// LogActivityTracker writes activity events through slog.
type LogActivityTracker struct {
	logger *slog.Logger
}

// NewLogActivityTracker creates an ActivityTracker backed by the given
// logger.
func NewLogActivityTracker(logger *slog.Logger) *LogActivityTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogActivityTracker{logger: logger}
}

func (t *LogActivityTracker) Start(ctx context.Context, operation, subject string, kvArgs ...any) (func(error), func(string, map[string]interface{}), func()) {
	start := time.Now()
	requestID, _ := ctx.Value(ContextKeyRequestID).(string)

	base := append([]any{
		"operation", operation,
		"subject", subject,
		"request_id", requestID,
	}, kvArgs...)

	t.logger.DebugContext(ctx, "operation started", base...)

	reportErr := func(err error) {
		t.logger.ErrorContext(ctx, "operation failed", append(base, "error", err)...)
	}
	reportChange := func(id string, data map[string]interface{}) {
		t.logger.InfoContext(ctx, "state changed", append(base, "entity_id", id, "data", data)...)
	}
	end := func() {
		t.logger.DebugContext(ctx, "operation finished", append(base, "duration", time.Since(start))...)
	}
	return reportErr, reportChange, end
}

// NoopTracker ignores all activity. Used in tests and as a default.
type NoopTracker struct{}

func (NoopTracker) Start(ctx context.Context, operation, subject string, kvArgs ...any) (func(error), func(string, map[string]interface{}), func()) {
	return func(error) {}, func(string, map[string]interface{}) {}, func() {}
}

// ChainedTracker fans every event out to all member trackers.
type ChainedTracker []ActivityTracker

func (c ChainedTracker) Start(ctx context.Context, operation, subject string, kvArgs ...any) (func(error), func(string, map[string]interface{}), func()) {
	reportErrs := make([]func(error), 0, len(c))
	reportChanges := make([]func(string, map[string]interface{}), 0, len(c))
	ends := make([]func(), 0, len(c))
	for _, tracker := range c {
		re, rc, end := tracker.Start(ctx, operation, subject, kvArgs...)
		reportErrs = append(reportErrs, re)
		reportChanges = append(reportChanges, rc)
		ends = append(ends, end)
	}
	return func(err error) {
			for _, re := range reportErrs {
				re(err)
			}
		}, func(id string, data map[string]interface{}) {
			for _, rc := range reportChanges {
				rc(id, data)
			}
		}, func() {
			for _, end := range ends {
				end()
			}
		}
}

var (
	_ ActivityTracker = (*LogActivityTracker)(nil)
	_ ActivityTracker = NoopTracker{}
	_ ActivityTracker = ChainedTracker{}
)
