// Package sqlite stores quest records in SQLite through sqlx and the pure-Go
// modernc.org/sqlite driver. It suits single-node deployments, the CLI and
// tests that need real SQL semantics without a server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/questlore/questpub/pkg/questpub"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Repository implements questpub.Repository using SQLite
type Repository struct {
	db *sqlx.DB
}

// New wraps an open database handle. The caller owns db.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Open opens the database at path, e.g. "quests.db" or ":memory:", and pings
// it. Close the repository when done.
func Open(path string) (*Repository, error) {
	db, err := sqlx.Open(DriverName, path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases alive across calls and
	// serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// Close closes the underlying database
func (r *Repository) Close() error {
	return r.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS quests (
	id             TEXT PRIMARY KEY,
	userid         TEXT,
	title          TEXT,
	summary        TEXT,
	author         TEXT,
	email          TEXT,
	url            TEXT,
	minplayers     INTEGER,
	maxplayers     INTEGER,
	mintimeminutes INTEGER,
	maxtimeminutes INTEGER,
	published      DATETIME,
	tombstone      DATETIME,
	publishedurl   TEXT
);
CREATE INDEX IF NOT EXISTS quests_userid_idx ON quests (userid);
CREATE INDEX IF NOT EXISTS quests_published_idx ON quests (published);
`

// EnsureSchema creates the quests table and its indexes when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return r.handleSQLiteError("ensure schema", err)
	}
	return nil
}

func (r *Repository) handleSQLiteError(operation string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%w: required field missing in %s", questpub.ErrInvalidRequest, operation)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("database busy in %s: %w", operation, err)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) GetQuest(ctx context.Context, id string) (*questpub.Quest, error) {
	query, args := questpub.SelectByID(sqlbuilder.SQLite, id)

	var quest questpub.Quest
	if err := r.db.GetContext(ctx, &quest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, questpub.ErrQuestNotFound
		}
		return nil, r.handleSQLiteError("get quest", err)
	}
	return &quest, nil
}

func (r *Repository) UpsertQuest(ctx context.Context, q *questpub.Quest) error {
	query, args, err := questpub.BuildUpsert(sqlbuilder.SQLite, utcValues(q.ColumnValues()), true)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return r.handleSQLiteError("upsert quest", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.handleSQLiteError("upsert quest", err)
	}
	// The conflict update is skipped for tombstoned or foreign rows
	if n == 0 {
		return r.refusal(ctx, q.ID)
	}
	return nil
}

func (r *Repository) refusal(ctx context.Context, id string) error {
	existing, err := r.GetQuest(ctx, id)
	if err != nil {
		return err
	}
	return questpub.UpsertRefusal(existing)
}

func (r *Repository) UpsertQuestColumns(ctx context.Context, id string, values questpub.ColumnValues) error {
	cols := make(questpub.ColumnValues, len(values)+1)
	for k, v := range values {
		cols[k] = v
	}
	cols[questpub.ColID] = id

	query, args, err := questpub.BuildUpsert(sqlbuilder.SQLite, utcValues(cols), false)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return r.handleSQLiteError("upsert quest columns", err)
	}
	return nil
}

func (r *Repository) SearchQuests(ctx context.Context, q *questpub.SearchQuery) ([]*questpub.Quest, error) {
	query, args := q.ToSQL(sqlbuilder.SQLite)
	for i, a := range args {
		if t, ok := a.(time.Time); ok {
			args[i] = t.UTC()
		}
	}

	quests := []*questpub.Quest{}
	if err := r.db.SelectContext(ctx, &quests, query, args...); err != nil {
		return nil, r.handleSQLiteError("search quests", err)
	}
	return quests, nil
}

// utcValues converts times to UTC. SQLite compares stored times as text, so
// every stored and bound time must share one offset.
func utcValues(values questpub.ColumnValues) questpub.ColumnValues {
	for k, v := range values {
		if t, ok := v.(time.Time); ok {
			values[k] = t.UTC()
		}
	}
	return values
}
