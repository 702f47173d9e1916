// Package repotest holds the behavior every questpub.Repository must share.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlore/questpub/pkg/questpub"
)

// NewQuest builds a valid published quest.
func NewQuest(owner, doc, title string, minP, maxP int, published time.Time) *questpub.Quest {
	return &questpub.Quest{
		ID:           questpub.QuestID(owner, doc),
		OwnerID:      owner,
		Title:        title,
		MinPlayers:   minP,
		MaxPlayers:   maxP,
		PublishedAt:  &published,
		PublishedURL: "memory://quests/" + owner + "/" + doc + "/1.xml",
	}
}

// Run exercises newRepo against the shared repository contract. Each top
// level group gets a fresh repository.
func Run(t *testing.T, newRepo func(t *testing.T) questpub.Repository) {
	t.Run("QuestOperations", func(t *testing.T) { testQuestOperations(t, newRepo(t)) })
	t.Run("SearchQuests", func(t *testing.T) { testSearchQuests(t, newRepo(t)) })
	t.Run("Tombstones", func(t *testing.T) { testTombstones(t, newRepo(t)) })
	t.Run("PublishedAfter", func(t *testing.T) { testPublishedAfter(t, newRepo(t)) })
}

func testQuestOperations(t *testing.T, repo questpub.Repository) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("GetQuest not found", func(t *testing.T) {
		_, err := repo.GetQuest(ctx, "nobody_nothing")
		assert.ErrorIs(t, err, questpub.ErrQuestNotFound)
	})

	t.Run("UpsertQuest then GetQuest", func(t *testing.T) {
		q := NewQuest("u1", "d1", "Crypt", 2, 4, now)
		require.NoError(t, repo.UpsertQuest(ctx, q))

		got, err := repo.GetQuest(ctx, q.ID)
		require.NoError(t, err)
		assertSameQuest(t, q, got)

		// Stored value is isolated from the caller
		q.Title = "Changed"
		got, err = repo.GetQuest(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, "Crypt", got.Title)
	})

	t.Run("UpsertQuest replaces every column", func(t *testing.T) {
		q := NewQuest("u1", "d1", "Crypt II", 1, 3, now)
		q.Summary = ""
		require.NoError(t, repo.UpsertQuest(ctx, q))

		got, err := repo.GetQuest(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, "Crypt II", got.Title)
		assert.Equal(t, 1, got.MinPlayers)
	})

	t.Run("UpsertQuestColumns touches only named columns", func(t *testing.T) {
		id := questpub.QuestID("u1", "d1")
		require.NoError(t, repo.UpsertQuestColumns(ctx, id, questpub.ColumnValues{
			questpub.ColID:        id,
			questpub.ColTombstone: now,
		}))

		got, err := repo.GetQuest(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.IsTombstoned())
		assert.Equal(t, "Crypt II", got.Title)
	})

	t.Run("UpsertQuest refuses tombstoned rows", func(t *testing.T) {
		q := NewQuest("u1", "d1", "Back from the dead", 1, 3, now)
		err := repo.UpsertQuest(ctx, q)
		assert.ErrorIs(t, err, questpub.ErrTombstoned)

		got, err := repo.GetQuest(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, "Crypt II", got.Title)
		assert.True(t, got.IsTombstoned())
	})

	t.Run("UpsertQuest refuses another owner's row", func(t *testing.T) {
		mine := NewQuest("alpha", "x", "Mine", 1, 3, now)
		mine.ID = "shared_x"
		require.NoError(t, repo.UpsertQuest(ctx, mine))

		theirs := NewQuest("beta", "x", "Hijacked", 1, 3, now)
		theirs.ID = mine.ID
		err := repo.UpsertQuest(ctx, theirs)
		assert.ErrorIs(t, err, questpub.ErrOwnerMismatch)

		got, err := repo.GetQuest(ctx, mine.ID)
		require.NoError(t, err)
		assert.Equal(t, "alpha", got.OwnerID)
		assert.Equal(t, "Mine", got.Title)
	})

	t.Run("UpsertQuestColumns creates a partial row", func(t *testing.T) {
		id := questpub.QuestID("u9", "never-published")
		require.NoError(t, repo.UpsertQuestColumns(ctx, id, questpub.ColumnValues{
			questpub.ColID:        id,
			questpub.ColTombstone: now,
		}))

		got, err := repo.GetQuest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Empty(t, got.Title)
		assert.True(t, got.IsTombstoned())
	})

	t.Run("UpsertQuestColumns rejects unknown columns", func(t *testing.T) {
		err := repo.UpsertQuestColumns(ctx, "x_y", questpub.ColumnValues{"bogus": 1})
		assert.ErrorIs(t, err, questpub.ErrInvalidRequest)
	})
}

func testSearchQuests(t *testing.T, repo questpub.Repository) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	quests := []*questpub.Quest{
		NewQuest("alice", "a", "Dragon Hunt", 2, 4, base.Add(1*time.Hour)),
		NewQuest("alice", "b", "Goblin Caves", 1, 2, base.Add(2*time.Hour)),
		NewQuest("bob", "c", "The dragon's lair", 3, 6, base.Add(3*time.Hour)),
	}
	for _, q := range quests {
		require.NoError(t, repo.UpsertQuest(ctx, q))
	}
	// alice's draft
	draft := NewQuest("alice", "draft", "Unfinished", 1, 1, base)
	draft.PublishedAt = nil
	require.NoError(t, repo.UpsertQuest(ctx, draft))

	t.Run("text search is case-insensitive and ordered newest first", func(t *testing.T) {
		q, err := questpub.BuildSearch("", questpub.SearchRequest{Search: "DRAGON"}, base.Add(10*time.Hour))
		require.NoError(t, err)

		got, err := repo.SearchQuests(ctx, q)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "bob_c", got[0].ID)
		assert.Equal(t, "alice_a", got[1].ID)
	})

	t.Run("owner sees own drafts", func(t *testing.T) {
		q, err := questpub.BuildSearch("alice", questpub.SearchRequest{Owner: "alice"}, base)
		require.NoError(t, err)

		got, err := repo.SearchQuests(ctx, q)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		assert.Equal(t, "alice_draft", got[2].ID, "unpublished rows sort last")
	})

	t.Run("others do not see drafts", func(t *testing.T) {
		q, err := questpub.BuildSearch("bob", questpub.SearchRequest{Owner: "alice"}, base)
		require.NoError(t, err)

		got, err := repo.SearchQuests(ctx, q)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("players range", func(t *testing.T) {
		q, err := questpub.BuildSearch("", questpub.SearchRequest{Players: 5}, base)
		require.NoError(t, err)

		got, err := repo.SearchQuests(ctx, q)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "bob_c", got[0].ID)
	})

	t.Run("paging with offset", func(t *testing.T) {
		q, err := questpub.BuildSearch("", questpub.SearchRequest{Owner: "alice", Order: "+title", Limit: 1, Token: 1}, base)
		require.NoError(t, err)

		got, err := repo.SearchQuests(ctx, q)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Goblin Caves", got[0].Title)
	})

	t.Run("offset past the end", func(t *testing.T) {
		q, err := questpub.BuildSearch("", questpub.SearchRequest{Owner: "alice", Token: 50}, base)
		require.NoError(t, err)

		got, err := repo.SearchQuests(ctx, q)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func testTombstones(t *testing.T, repo questpub.Repository) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	live := NewQuest("carol", "live", "Haunted Mill", 2, 5, base.Add(-30*time.Minute))
	gone := NewQuest("carol", "gone", "Haunted Manor", 2, 5, base.Add(-20*time.Minute))
	require.NoError(t, repo.UpsertQuest(ctx, live))
	require.NoError(t, repo.UpsertQuest(ctx, gone))
	require.NoError(t, repo.UpsertQuestColumns(ctx, gone.ID, questpub.ColumnValues{
		questpub.ColID:        gone.ID,
		questpub.ColTombstone: base,
	}))

	requests := map[string]questpub.SearchRequest{
		"id":              {ID: gone.ID},
		"owner":           {Owner: "carol"},
		"players":         {Players: 3},
		"search":          {Search: "haunted"},
		"published_after": {PublishedAfter: 3600},
	}
	for name, req := range requests {
		t.Run("excluded by "+name, func(t *testing.T) {
			// carol searching her own quests sees drafts, never tombstones
			q, err := questpub.BuildSearch("carol", req, base)
			require.NoError(t, err)

			got, err := repo.SearchQuests(ctx, q)
			require.NoError(t, err)
			for _, quest := range got {
				assert.NotEqual(t, gone.ID, quest.ID)
			}
			if name != "id" {
				require.Len(t, got, 1)
				assert.Equal(t, live.ID, got[0].ID)
			}
		})
	}

	t.Run("still readable by id", func(t *testing.T) {
		got, err := repo.GetQuest(ctx, gone.ID)
		require.NoError(t, err)
		assert.True(t, got.IsTombstoned())
		assert.Equal(t, "Haunted Manor", got.Title)
		assert.Equal(t, "carol", got.OwnerID)
	})
}

func testPublishedAfter(t *testing.T, repo questpub.Repository) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)
	newYork := time.FixedZone("EST", -5*60*60)

	// Local clock readings disagree with instants: "old" reads later than
	// the cutoff in JST, "recent" reads earlier in EST.
	quests := []*questpub.Quest{
		NewQuest("dan", "old", "Old", 1, 4, now.Add(-2*time.Hour).In(tokyo)),
		NewQuest("dan", "recent", "Recent", 1, 4, now.Add(-10*time.Minute).In(newYork)),
		NewQuest("dan", "mid", "Mid", 1, 4, now.Add(-30*time.Minute).In(tokyo)),
		NewQuest("dan", "ancient", "Ancient", 1, 4, now.Add(-48*time.Hour)),
	}
	for _, q := range quests {
		require.NoError(t, repo.UpsertQuest(ctx, q))
	}

	q, err := questpub.BuildSearch("", questpub.SearchRequest{PublishedAfter: 3600}, now)
	require.NoError(t, err)

	got, err := repo.SearchQuests(ctx, q)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, quest := range got {
		ids = append(ids, quest.ID)
	}
	assert.Equal(t, []string{"dan_recent", "dan_mid"}, ids)
}

// assertSameQuest compares quests with times normalized to UTC, since SQL
// stores may hand back another location.
func assertSameQuest(t *testing.T, want, got *questpub.Quest) {
	t.Helper()
	assert.Equal(t, normalized(want), normalized(got))
}

func normalized(q *questpub.Quest) *questpub.Quest {
	c := q.Clone()
	if c.PublishedAt != nil {
		*c.PublishedAt = c.PublishedAt.UTC().Round(0)
	}
	if c.TombstoneAt != nil {
		*c.TombstoneAt = c.TombstoneAt.UTC().Round(0)
	}
	return c
}
