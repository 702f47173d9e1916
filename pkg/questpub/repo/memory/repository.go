package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/questlore/questpub/pkg/questpub"
)

// Repository implements questpub.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	quests map[string]*questpub.Quest
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		quests: make(map[string]*questpub.Quest),
	}
}

func (r *Repository) GetQuest(ctx context.Context, id string) (*questpub.Quest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	quest, exists := r.quests[id]
	if !exists {
		return nil, questpub.ErrQuestNotFound
	}
	// Return a copy to prevent external modifications
	return quest.Clone(), nil
}

func (r *Repository) UpsertQuest(ctx context.Context, q *questpub.Quest) error {
	if q.ID == "" {
		return fmt.Errorf("%w: upsert requires id", questpub.ErrInvalidRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.quests[q.ID]; ok && (existing.IsTombstoned() || existing.OwnerID != q.OwnerID) {
		return questpub.UpsertRefusal(existing)
	}
	r.quests[q.ID] = q.Clone()
	return nil
}

func (r *Repository) UpsertQuestColumns(ctx context.Context, id string, values questpub.ColumnValues) error {
	if id == "" {
		return fmt.Errorf("%w: upsert requires id", questpub.ErrInvalidRequest)
	}
	for col := range values {
		if _, known := questpub.QuestSchema.Field(col); !known {
			return fmt.Errorf("%w: unknown column %q", questpub.ErrInvalidRequest, col)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	quest, ok := r.quests[id]
	if ok {
		quest = quest.Clone()
	} else {
		quest = &questpub.Quest{}
	}
	if err := quest.Apply(values); err != nil {
		return fmt.Errorf("%w: %v", questpub.ErrInvalidRequest, err)
	}
	quest.ID = id
	r.quests[id] = quest
	return nil
}

func (r *Repository) SearchQuests(ctx context.Context, q *questpub.SearchQuery) ([]*questpub.Quest, error) {
	r.mu.RLock()
	var matched []*questpub.Quest
	for _, quest := range r.quests {
		if q.Matches(quest) {
			matched = append(matched, quest.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return q.Less(matched[i], matched[j])
	})

	if q.Offset >= len(matched) {
		return []*questpub.Quest{}, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Len returns the number of stored quests, tombstoned included.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.quests)
}
