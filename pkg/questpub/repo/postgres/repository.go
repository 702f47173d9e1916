package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/questlore/questpub/pkg/questpub"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements questpub.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS quests (
	id             VARCHAR(255) PRIMARY KEY,
	userid         VARCHAR(255),
	title          VARCHAR(255),
	summary        VARCHAR(1024),
	author         VARCHAR(255),
	email          VARCHAR(255),
	url            VARCHAR(2048),
	minplayers     INTEGER,
	maxplayers     INTEGER,
	mintimeminutes INTEGER,
	maxtimeminutes INTEGER,
	published      TIMESTAMPTZ,
	tombstone      TIMESTAMPTZ,
	publishedurl   VARCHAR(2048)
);
CREATE INDEX IF NOT EXISTS quests_userid_idx ON quests (userid);
CREATE INDEX IF NOT EXISTS quests_published_idx ON quests (published DESC) WHERE tombstone IS NULL;
`

// EnsureSchema creates the quests table and its indexes when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", questpub.ErrInvalidRequest, pgErr.ColumnName)
		case "22001": // string_data_right_truncation
			return fmt.Errorf("%w: value too long in %s", questpub.ErrInvalidRequest, operation)
		case "22003": // numeric_value_out_of_range
			return fmt.Errorf("%w: value out of range in %s", questpub.ErrInvalidRequest, operation)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) GetQuest(ctx context.Context, id string) (*questpub.Quest, error) {
	query, args := questpub.SelectByID(sqlbuilder.PostgreSQL, id)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("get quest", err)
	}
	quest, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[questpub.Quest])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, questpub.ErrQuestNotFound
		}
		return nil, r.handlePostgresError("get quest", err)
	}
	return quest, nil
}

func (r *Repository) UpsertQuest(ctx context.Context, q *questpub.Quest) error {
	query, args, err := questpub.BuildUpsert(sqlbuilder.PostgreSQL, q.ColumnValues(), true)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return r.handlePostgresError("upsert quest", err)
	}
	// The conflict update is skipped for tombstoned or foreign rows
	if tag.RowsAffected() == 0 {
		existing, err := r.GetQuest(ctx, q.ID)
		if err != nil {
			return err
		}
		return questpub.UpsertRefusal(existing)
	}
	return nil
}

func (r *Repository) UpsertQuestColumns(ctx context.Context, id string, values questpub.ColumnValues) error {
	cols := make(questpub.ColumnValues, len(values)+1)
	for k, v := range values {
		cols[k] = v
	}
	cols[questpub.ColID] = id

	query, args, err := questpub.BuildUpsert(sqlbuilder.PostgreSQL, cols, false)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return r.handlePostgresError("upsert quest columns", err)
	}
	return nil
}

func (r *Repository) SearchQuests(ctx context.Context, q *questpub.SearchQuery) ([]*questpub.Quest, error) {
	query, args := q.ToSQL(sqlbuilder.PostgreSQL)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("search quests", err)
	}
	quests, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[questpub.Quest])
	if err != nil {
		return nil, r.handlePostgresError("search quests", err)
	}
	return quests, nil
}
