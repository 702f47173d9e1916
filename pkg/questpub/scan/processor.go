package scan

import (
	"context"

	"github.com/questlore/questpub/pkg/questpub"
)

// QuestProcessor processes individual quests found by a scan.
//
// Example implementations:
//   - Auditor (re-validates stored records against the current schema)
//   - Exporter (writes quest metadata to a report)
//   - Artifact checker (confirms each published URL still resolves)
type QuestProcessor interface {
	// Process is called for each quest found during scan.
	// Return error to mark this quest as failed (scan continues with next quest).
	Process(ctx context.Context, quest *questpub.Quest) error
}

// ProcessorFunc adapts a function to the QuestProcessor interface.
type ProcessorFunc func(context.Context, *questpub.Quest) error

func (f ProcessorFunc) Process(ctx context.Context, quest *questpub.Quest) error {
	return f(ctx, quest)
}

// Auditor re-validates stored records with questpub.ValidateQuest. Records
// written before a schema change surface as failures.
type Auditor struct{}

func (Auditor) Process(ctx context.Context, quest *questpub.Quest) error {
	return questpub.ValidateQuest(quest)
}
