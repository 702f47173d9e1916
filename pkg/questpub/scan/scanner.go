package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/questlore/questpub/pkg/questpub"
)

// Scanner pages through search results and processes each quest.
type Scanner struct {
	service questpub.Service
	logger  *slog.Logger
}

// New creates a new Scanner instance. A nil logger uses slog.Default().
func New(service questpub.Service, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{service: service, logger: logger}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// UserID is the caller the search runs as; it decides draft visibility.
	UserID string

	// Request selects the quests. Its Limit is the batch size and its Token
	// the starting offset.
	Request questpub.SearchRequest

	// Processor defines the processing logic (required unless DryRun is true)
	Processor QuestProcessor

	// DryRun if true, doesn't process quests, just counts them
	DryRun bool

	// OnProgress is called after each batch is processed (optional)
	OnProgress func(processed, found int)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	TotalFound     int
	TotalProcessed int
	TotalFailed    int

	// Failures maps the id of each quest that failed processing to its error
	Failures map[string]error

	failedOrder []string
}

// FailedIDs returns the ids of failed quests in scan order.
func (r *ScanResult) FailedIDs() []string {
	return r.failedOrder
}

// Scan runs the search page by page and processes every quest. A quest that
// fails processing is recorded and the scan continues.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{Failures: make(map[string]error)}

	if !opts.DryRun && opts.Processor == nil {
		return result, errors.New("processor is required when DryRun is false")
	}

	req := opts.Request
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := s.service.Search(ctx, opts.UserID, req)
		if err != nil {
			return result, fmt.Errorf("failed to search quests: %w", err)
		}

		result.TotalFound += len(page.Quests)

		for _, quest := range page.Quests {
			if opts.DryRun {
				s.logger.DebugContext(ctx, "Would process quest", "quest_id", quest.ID)
				result.TotalProcessed++
				continue
			}

			if err := opts.Processor.Process(ctx, quest); err != nil {
				result.TotalFailed++
				result.Failures[quest.ID] = err
				result.failedOrder = append(result.failedOrder, quest.ID)
				s.logger.WarnContext(ctx, "Failed to process quest", "quest_id", quest.ID, "err", err)
				continue
			}

			result.TotalProcessed++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}

		if !page.HasMore {
			break
		}

		next, err := strconv.Atoi(page.NextToken)
		if err != nil {
			return result, fmt.Errorf("bad continuation token %q: %w", page.NextToken, err)
		}
		req.Token = next
	}

	return result, nil
}

// ForEach processes each quest matched by req with fn.
func (s *Scanner) ForEach(ctx context.Context, userID string, req questpub.SearchRequest, fn func(context.Context, *questpub.Quest) error) (*ScanResult, error) {
	return s.Scan(ctx, ScanOptions{
		UserID:    userID,
		Request:   req,
		Processor: ProcessorFunc(fn),
	})
}
