package questpub

import (
	"fmt"
	"sort"
	"time"
)

// Column names of the quests table. Attribute keys in quest content use the
// same names.
const (
	ColID             = "id"
	ColOwnerID        = "userid"
	ColTitle          = "title"
	ColSummary        = "summary"
	ColAuthor         = "author"
	ColEmail          = "email"
	ColURL            = "url"
	ColMinPlayers     = "minplayers"
	ColMaxPlayers     = "maxplayers"
	ColMinTimeMinutes = "mintimeminutes"
	ColMaxTimeMinutes = "maxtimeminutes"
	ColPublished      = "published"
	ColTombstone      = "tombstone"
	ColPublishedURL   = "publishedurl"
)

// QuestTable is the relational table holding quest records.
const QuestTable = "quests"

// QuestColumns lists every persisted column in canonical order.
var QuestColumns = []string{
	ColID, ColOwnerID, ColTitle, ColSummary, ColAuthor, ColEmail, ColURL,
	ColMinPlayers, ColMaxPlayers, ColMinTimeMinutes, ColMaxTimeMinutes,
	ColPublished, ColTombstone, ColPublishedURL,
}

// Quest is the persisted metadata record of a published quest document.
//
// ID is "<ownerID>_<documentID>" and never changes once created. PublishedAt
// nil means draft; TombstoneAt non-nil means soft-deleted.
type Quest struct {
	ID             string     `json:"id" db:"id"`
	OwnerID        string     `json:"owner_id" db:"userid"`
	Title          string     `json:"title" db:"title"`
	Summary        string     `json:"summary,omitempty" db:"summary"`
	Author         string     `json:"author,omitempty" db:"author"`
	Email          string     `json:"email,omitempty" db:"email"`
	URL            string     `json:"url,omitempty" db:"url"`
	MinPlayers     int        `json:"min_players" db:"minplayers"`
	MaxPlayers     int        `json:"max_players" db:"maxplayers"`
	MinTimeMinutes *int       `json:"min_time_minutes,omitempty" db:"mintimeminutes"`
	MaxTimeMinutes *int       `json:"max_time_minutes,omitempty" db:"maxtimeminutes"`
	PublishedAt    *time.Time `json:"published_at,omitempty" db:"published"`
	TombstoneAt    *time.Time `json:"tombstone_at,omitempty" db:"tombstone"`
	PublishedURL   string     `json:"published_url,omitempty" db:"publishedurl"`
}

// IsPublished reports whether the quest is visible to non-owners.
func (q *Quest) IsPublished() bool {
	return q.PublishedAt != nil
}

// IsTombstoned reports whether the quest was unpublished.
func (q *Quest) IsTombstoned() bool {
	return q.TombstoneAt != nil
}

// Clone returns a deep copy of q.
func (q *Quest) Clone() *Quest {
	c := *q
	if q.MinTimeMinutes != nil {
		v := *q.MinTimeMinutes
		c.MinTimeMinutes = &v
	}
	if q.MaxTimeMinutes != nil {
		v := *q.MaxTimeMinutes
		c.MaxTimeMinutes = &v
	}
	if q.PublishedAt != nil {
		v := *q.PublishedAt
		c.PublishedAt = &v
	}
	if q.TombstoneAt != nil {
		v := *q.TombstoneAt
		c.TombstoneAt = &v
	}
	return &c
}

// ColumnValues maps column names to values for a (partial) upsert. A nil
// value writes SQL NULL.
type ColumnValues map[string]interface{}

// Columns returns the keys of v, canonical columns first, in a stable order.
func (v ColumnValues) Columns() []string {
	cols := make([]string, 0, len(v))
	seen := make(map[string]bool, len(v))
	for _, c := range QuestColumns {
		if _, ok := v[c]; ok {
			cols = append(cols, c)
			seen[c] = true
		}
	}
	var extra []string
	for c := range v {
		if !seen[c] {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// ColumnValues returns every column of q. Nil optional fields map to nil.
func (q *Quest) ColumnValues() ColumnValues {
	return ColumnValues{
		ColID:             q.ID,
		ColOwnerID:        q.OwnerID,
		ColTitle:          q.Title,
		ColSummary:        q.Summary,
		ColAuthor:         q.Author,
		ColEmail:          q.Email,
		ColURL:            q.URL,
		ColMinPlayers:     q.MinPlayers,
		ColMaxPlayers:     q.MaxPlayers,
		ColMinTimeMinutes: derefInt(q.MinTimeMinutes),
		ColMaxTimeMinutes: derefInt(q.MaxTimeMinutes),
		ColPublished:      derefTime(q.PublishedAt),
		ColTombstone:      derefTime(q.TombstoneAt),
		ColPublishedURL:   q.PublishedURL,
	}
}

// Apply overwrites exactly the fields named in cols.
func (q *Quest) Apply(cols ColumnValues) error {
	for col, val := range cols {
		var err error
		switch col {
		case ColID:
			q.ID, err = asString(col, val)
		case ColOwnerID:
			q.OwnerID, err = asString(col, val)
		case ColTitle:
			q.Title, err = asString(col, val)
		case ColSummary:
			q.Summary, err = asString(col, val)
		case ColAuthor:
			q.Author, err = asString(col, val)
		case ColEmail:
			q.Email, err = asString(col, val)
		case ColURL:
			q.URL, err = asString(col, val)
		case ColPublishedURL:
			q.PublishedURL, err = asString(col, val)
		case ColMinPlayers:
			var p *int
			p, err = asIntPtr(col, val)
			q.MinPlayers = derefIntOr(p)
		case ColMaxPlayers:
			var p *int
			p, err = asIntPtr(col, val)
			q.MaxPlayers = derefIntOr(p)
		case ColMinTimeMinutes:
			q.MinTimeMinutes, err = asIntPtr(col, val)
		case ColMaxTimeMinutes:
			q.MaxTimeMinutes, err = asIntPtr(col, val)
		case ColPublished:
			q.PublishedAt, err = asTimePtr(col, val)
		case ColTombstone:
			q.TombstoneAt, err = asTimePtr(col, val)
		default:
			err = fmt.Errorf("unknown column %q", col)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SearchRequest is a validated quest search. Zero values mean "not given".
type SearchRequest struct {
	ID             string
	Owner          string
	Players        int
	Search         string
	PublishedAfter int // seconds before now
	Order          string
	Limit          int
	Token          int // offset of the page
}

// HasCriteria reports whether at least one filter was supplied.
func (r SearchRequest) HasCriteria() bool {
	return r.ID != "" || r.Owner != "" || r.Players > 0 || r.Search != "" || r.PublishedAfter > 0
}

// SearchResult is one page of quests.
type SearchResult struct {
	Quests []*Quest `json:"quests"`
	// HasMore is set when the page was exactly full.
	HasMore   bool   `json:"has_more"`
	NextToken string `json:"next_token,omitempty"`
}

func derefInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func derefIntOr(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefTime(p *time.Time) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func asString(col string, val interface{}) (string, error) {
	switch v := val.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("column %s: expected string, got %T", col, val)
	}
}

func asIntPtr(col string, val interface{}) (*int, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case int:
		return &v, nil
	case int64:
		n := int(v)
		return &n, nil
	case *int:
		return v, nil
	default:
		return nil, fmt.Errorf("column %s: expected int, got %T", col, val)
	}
}

func asTimePtr(col string, val interface{}) (*time.Time, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case *time.Time:
		return v, nil
	default:
		return nil, fmt.Errorf("column %s: expected time, got %T", col, val)
	}
}
