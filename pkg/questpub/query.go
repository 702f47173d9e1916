package questpub

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
)

const (
	// DefaultPageSize applies when a search names no limit.
	DefaultPageSize = 100
	// MaxPageSize caps every search page.
	MaxPageSize = 100
	// maxWindowSeconds is the longest published_after window a
	// time.Duration can hold. Longer windows mean no lower bound.
	maxWindowSeconds = math.MaxInt64 / int64(time.Second)
)

// SortOrder is a single validated ORDER BY directive.
type SortOrder struct {
	Column    string
	Ascending bool
}

// DefaultSortOrder lists most recently published quests first.
var DefaultSortOrder = SortOrder{Column: ColPublished}

func (o SortOrder) String() string {
	if o.Ascending {
		return "+" + o.Column
	}
	return "-" + o.Column
}

// ParseOrder parses "<+|-><field>". The field must be a sortable column of
// QuestSchema; nothing else ever reaches the SQL text.
func ParseOrder(s string) (SortOrder, error) {
	verr := &ValidationError{}
	if len(s) < 2 || (s[0] != '+' && s[0] != '-') {
		verr.Add(ParamOrder, FieldInvalid, fmt.Sprintf("order must look like +field or -field, got %q", s))
		return SortOrder{}, verr
	}
	col := s[1:]
	if !QuestSchema.IsSortable(col) {
		verr.Add(ParamOrder, FieldInvalid, fmt.Sprintf("cannot order by %q", col))
		return SortOrder{}, verr
	}
	return SortOrder{Column: col, Ascending: s[0] == '+'}, nil
}

// SearchQuery is a validated, store-independent search. ToSQL renders it for
// relational stores and Matches/Less evaluate it in memory.
type SearchQuery struct {
	ID             string
	OwnerID        string
	PublishedOnly  bool
	Players        int
	Text           string
	PublishedAfter *time.Time
	Order          SortOrder
	Limit          int
	Offset         int
}

// BuildSearch turns a search request from userID ("" for anonymous) into a
// query. At least one filter is required. Unless userID searches their own
// quests, only published quests are visible.
func BuildSearch(userID string, req SearchRequest, now time.Time) (*SearchQuery, error) {
	if !req.HasCriteria() {
		return nil, fmt.Errorf("%w: no search parameters given; requires at least one of id, owner, players, search, published_after", ErrInvalidRequest)
	}

	q := &SearchQuery{
		ID:            req.ID,
		OwnerID:       req.Owner,
		PublishedOnly: userID == "" || req.Owner != userID,
		Players:       req.Players,
		Text:          strings.ToLower(req.Search),
		Order:         DefaultSortOrder,
		Limit:         DefaultPageSize,
		Offset:        req.Token,
	}

	if req.PublishedAfter > 0 && int64(req.PublishedAfter) <= maxWindowSeconds {
		cutoff := now.UTC().Add(-time.Duration(req.PublishedAfter) * time.Second)
		q.PublishedAfter = &cutoff
	}

	if req.Order != "" {
		order, err := ParseOrder(req.Order)
		if err != nil {
			return nil, err
		}
		q.Order = order
	}

	if req.Limit > 0 {
		q.Limit = req.Limit
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	return q, nil
}

// selectColumns normalizes NULLs left behind by partial upserts so every
// store can scan into Quest.
func selectColumns() []string {
	return []string{
		ColID,
		coalesce(ColOwnerID, "''"),
		coalesce(ColTitle, "''"),
		coalesce(ColSummary, "''"),
		coalesce(ColAuthor, "''"),
		coalesce(ColEmail, "''"),
		coalesce(ColURL, "''"),
		coalesce(ColMinPlayers, "0"),
		coalesce(ColMaxPlayers, "0"),
		ColMinTimeMinutes,
		ColMaxTimeMinutes,
		ColPublished,
		ColTombstone,
		coalesce(ColPublishedURL, "''"),
	}
}

func coalesce(col, zero string) string {
	return fmt.Sprintf("COALESCE(%s, %s) AS %s", col, zero, col)
}

// ToSQL renders the query with bound parameters for flavor.
func (q *SearchQuery) ToSQL(flavor sqlbuilder.Flavor) (string, []interface{}) {
	sb := flavor.NewSelectBuilder()
	sb.Select(selectColumns()...).From(QuestTable)
	sb.Where(sb.IsNull(ColTombstone))

	if q.ID != "" {
		sb.Where(sb.Equal(ColID, q.ID))
	}
	if q.OwnerID != "" {
		sb.Where(sb.Equal(ColOwnerID, q.OwnerID))
	}
	if q.PublishedOnly {
		sb.Where(sb.IsNotNull(ColPublished))
	}
	if q.Players > 0 {
		sb.Where(
			sb.LessEqualThan(ColMinPlayers, q.Players),
			sb.GreaterEqualThan(ColMaxPlayers, q.Players),
		)
	}
	if q.Text != "" {
		pattern := "%" + escapeLike(q.Text) + "%"
		sb.Where(sb.Or(
			fmt.Sprintf(`LOWER(%s) LIKE %s ESCAPE '\'`, ColTitle, sb.Var(pattern)),
			fmt.Sprintf(`LOWER(%s) LIKE %s ESCAPE '\'`, ColSummary, sb.Var(pattern)),
		))
	}
	if q.PublishedAfter != nil {
		sb.Where(sb.GreaterThan(ColPublished, *q.PublishedAfter))
	}

	dir := "DESC"
	if q.Order.Ascending {
		dir = "ASC"
	}
	sb.OrderBy(
		fmt.Sprintf("%s %s NULLS LAST", q.Order.Column, dir),
		fmt.Sprintf("%s %s", ColID, dir),
	)

	sb.Limit(q.Limit)
	if q.Offset > 0 {
		sb.Offset(q.Offset)
	}
	return sb.Build()
}

// SelectByID renders a single-row lookup. Tombstoned rows are included.
func SelectByID(flavor sqlbuilder.Flavor, id string) (string, []interface{}) {
	sb := flavor.NewSelectBuilder()
	sb.Select(selectColumns()...).From(QuestTable)
	sb.Where(sb.Equal(ColID, id))
	sb.Limit(1)
	return sb.Build()
}

// BuildUpsert renders an insert-or-update of exactly the supplied columns.
// With guardTombstone the update half skips tombstoned rows and rows of
// another owner, so a store can detect the refusal from the affected row
// count and classify it with UpsertRefusal.
func BuildUpsert(flavor sqlbuilder.Flavor, values ColumnValues, guardTombstone bool) (string, []interface{}, error) {
	if _, ok := values[ColID]; !ok {
		return "", nil, fmt.Errorf("%w: upsert requires %s", ErrInvalidRequest, ColID)
	}

	cols := values.Columns()
	args := make([]interface{}, 0, len(cols))
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		if _, known := QuestSchema.Field(col); !known {
			return "", nil, fmt.Errorf("%w: unknown column %q", ErrInvalidRequest, col)
		}
		args = append(args, values[col])
		if col != ColID {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	ib := flavor.NewInsertBuilder()
	ib.InsertInto(QuestTable).Cols(cols...).Values(args...)
	if len(sets) == 0 {
		ib.SQL(fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", ColID))
	} else {
		ib.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", ColID, strings.Join(sets, ", ")))
		if guardTombstone {
			ib.SQL(fmt.Sprintf("WHERE %s.%s IS NULL AND %s.%s = EXCLUDED.%s",
				QuestTable, ColTombstone, QuestTable, ColOwnerID, ColOwnerID))
		}
	}

	query, queryArgs := ib.Build()
	return query, queryArgs, nil
}

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Matches reports whether quest satisfies every filter of the query.
func (q *SearchQuery) Matches(quest *Quest) bool {
	if quest.TombstoneAt != nil {
		return false
	}
	if q.ID != "" && quest.ID != q.ID {
		return false
	}
	if q.OwnerID != "" && quest.OwnerID != q.OwnerID {
		return false
	}
	if q.PublishedOnly && quest.PublishedAt == nil {
		return false
	}
	if q.Players > 0 && (quest.MinPlayers > q.Players || quest.MaxPlayers < q.Players) {
		return false
	}
	if q.Text != "" &&
		!strings.Contains(strings.ToLower(quest.Title), q.Text) &&
		!strings.Contains(strings.ToLower(quest.Summary), q.Text) {
		return false
	}
	if q.PublishedAfter != nil && (quest.PublishedAt == nil || !quest.PublishedAt.After(*q.PublishedAfter)) {
		return false
	}
	return true
}

// Less orders a before b the way ToSQL's ORDER BY does: NULLs last, then id.
func (q *SearchQuery) Less(a, b *Quest) bool {
	av := a.ColumnValues()[q.Order.Column]
	bv := b.ColumnValues()[q.Order.Column]
	switch {
	case av == nil && bv != nil:
		return false
	case av != nil && bv == nil:
		return true
	}
	c := compareValues(av, bv)
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if q.Order.Ascending {
		return c < 0
	}
	return c > 0
}

func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		bs, _ := b.(string)
		return strings.Compare(av, bs)
	case int:
		bi, _ := b.(int)
		switch {
		case av < bi:
			return -1
		case av > bi:
			return 1
		}
		return 0
	case time.Time:
		bt, _ := b.(time.Time)
		return av.Compare(bt)
	}
	return 0
}
