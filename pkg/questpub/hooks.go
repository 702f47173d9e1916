package questpub

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// QuestPublished does nothing and returns nil
func (n *NoopEventSink) QuestPublished(ctx context.Context, quest *Quest) error {
	return nil
}

// QuestUnpublished does nothing and returns nil
func (n *NoopEventSink) QuestUnpublished(ctx context.Context, questID string) error {
	return nil
}

// LogEventSink writes every lifecycle event to a structured logger
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink logging at info level; nil uses slog.Default()
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) QuestPublished(ctx context.Context, quest *Quest) error {
	l.logger.InfoContext(ctx, "quest published",
		"quest_id", quest.ID,
		"owner_id", quest.OwnerID,
		"published_url", quest.PublishedURL)
	return nil
}

func (l *LogEventSink) QuestUnpublished(ctx context.Context, questID string) error {
	l.logger.InfoContext(ctx, "quest unpublished", "quest_id", questID)
	return nil
}

// Metrics receives operation outcomes from the service
type Metrics interface {
	// ObservePublish records a finished publish; outcome is one of the Outcome* values
	ObservePublish(outcome string, elapsed time.Duration)
	ObserveUnpublish(outcome string)
	// ObserveUploadFailure records a failed artifact upload that was tolerated or not
	ObserveUploadFailure(tolerated bool)
	ObserveSearch(outcome string, results int, elapsed time.Duration)
}

// Operation outcomes reported to Metrics
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeTombstoned = "tombstoned"
	OutcomeError      = "error"
)

// outcomeOf classifies err for metrics labels.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrTombstoned):
		return OutcomeTombstoned
	case IsClientError(err):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

type noopMetrics struct{}

func (noopMetrics) ObservePublish(string, time.Duration) {}
func (noopMetrics) ObserveUnpublish(string) {}
func (noopMetrics) ObserveUploadFailure(bool) {}
func (noopMetrics) ObserveSearch(string, int, time.Duration) {}
