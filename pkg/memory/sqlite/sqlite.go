// Package sqlite provides the sqlite-backed tiered memory store.
//
// The recall and archival tiers are indexed by FTS5 external-content tables
// kept in lockstep with their content tables by AFTER INSERT / AFTER DELETE
// triggers, so a content row and its index row always commit in the same
// transaction. Readers can never observe one without the other.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/engramlabs/engram/pkg/memory"
)

// defaultPersona seeds the persona block on first initialization. The agent
// rewrites it over time via the core-memory tools.
const defaultPersona = "I am engram, a persistent assistant. I keep what I learn " +
	"about my user and my tasks in core memory and update it as I go."

// SQLiteStore implements memory.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	limits memory.Limits
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string, limits memory.Limits) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// One connection serializes every logical operation and keeps in-memory
	// databases coherent across calls.
	db.SetMaxOpenConns(1)

	if limits.UserRecall <= 0 || limits.AssistantRecall <= 0 {
		limits = memory.DefaultLimits()
	}

	return &SQLiteStore{db: db, limits: limits}, nil
}

// Initialize idempotently creates the schema and seeds the fixed core blocks.
// Safe to run against an already-populated store: seeding uses INSERT OR
// IGNORE and never overwrites existing content.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS core_blocks (
		name       TEXT PRIMARY KEY,
		content    TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recall_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id    TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recall_chat ON recall_log(chat_id, id);

	CREATE TABLE IF NOT EXISTS archival_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		content    TEXT NOT NULL,
		tags       TEXT NOT NULL DEFAULT '',
		source     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		chat_id    TEXT PRIMARY KEY,
		token      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_spend (
		date   TEXT PRIMARY KEY,
		amount REAL NOT NULL DEFAULT 0
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS recall_fts USING fts5(
		content,
		content=recall_log,
		content_rowid=id
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS archival_fts USING fts5(
		content,
		tags,
		content=archival_log,
		content_rowid=id
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	// FTS5 triggers keep index rows in the same transaction as content rows.
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS recall_ai AFTER INSERT ON recall_log BEGIN
			INSERT INTO recall_fts(rowid, content) VALUES (new.id, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS recall_ad AFTER DELETE ON recall_log BEGIN
			INSERT INTO recall_fts(recall_fts, rowid, content) VALUES ('delete', old.id, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS archival_ai AFTER INSERT ON archival_log BEGIN
			INSERT INTO archival_fts(rowid, content, tags) VALUES (new.id, new.content, new.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS archival_ad AFTER DELETE ON archival_log BEGIN
			INSERT INTO archival_fts(archival_fts, rowid, content, tags) VALUES ('delete', old.id, old.content, old.tags);
		END`,
	}
	for _, t := range triggers {
		if _, err := s.db.ExecContext(ctx, t); err != nil {
			return fmt.Errorf("creating trigger: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, name := range memory.CoreBlockNames() {
		content := ""
		if name == "persona" {
			content = defaultPersona
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO core_blocks (name, content, updated_at) VALUES (?, ?, ?)`,
			name, content, now)
		if err != nil {
			return fmt.Errorf("seeding core block %s: %w", name, err)
		}
	}

	return nil
}

// Blocks returns every prompt-visible core block.
func (s *SQLiteStore) Blocks(ctx context.Context) ([]memory.Block, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, content, updated_at FROM core_blocks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying core blocks: %w", err)
	}
	defer rows.Close()

	var blocks []memory.Block
	for rows.Next() {
		var b memory.Block
		var updatedAt string
		if err := rows.Scan(&b.Name, &b.Content, &updatedAt); err != nil {
			return nil, err
		}
		b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		blocks = append(blocks, b)
	}

	return blocks, rows.Err()
}

// ReplaceInBlock substitutes the first occurrence of old with new in the named
// block. The exact-substring contract is deliberate: the agent is expected to
// quote memory verbatim before editing it, and a fuzzy match would corrupt
// silently.
func (s *SQLiteStore) ReplaceInBlock(ctx context.Context, name, old, new string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var content string
	err = tx.QueryRowContext(ctx,
		`SELECT content FROM core_blocks WHERE name = ?`, name).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.ErrBlockNotFound{Name: name}
	}
	if err != nil {
		return fmt.Errorf("reading core block: %w", err)
	}

	if !strings.Contains(content, old) {
		return memory.ErrTextNotPresent{Name: name}
	}

	updated := strings.Replace(content, old, new, 1)
	_, err = tx.ExecContext(ctx,
		`UPDATE core_blocks SET content = ?, updated_at = ? WHERE name = ?`,
		updated, time.Now().UTC().Format(time.RFC3339), name)
	if err != nil {
		return fmt.Errorf("updating core block: %w", err)
	}

	return tx.Commit()
}

// AppendToBlock concatenates text onto the named block with a single
// separating line break when existing content is non-empty.
func (s *SQLiteStore) AppendToBlock(ctx context.Context, name, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var content string
	err = tx.QueryRowContext(ctx,
		`SELECT content FROM core_blocks WHERE name = ?`, name).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.ErrBlockNotFound{Name: name}
	}
	if err != nil {
		return fmt.Errorf("reading core block: %w", err)
	}

	updated := text
	if content != "" {
		updated = content + "\n" + text
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE core_blocks SET content = ?, updated_at = ? WHERE name = ?`,
		updated, time.Now().UTC().Format(time.RFC3339), name)
	if err != nil {
		return fmt.Errorf("updating core block: %w", err)
	}

	return tx.Commit()
}

// InsertRecall writes one transcript row, truncated to the role's ingestion
// bound. The FTS trigger commits the index row in the same transaction.
func (s *SQLiteStore) InsertRecall(ctx context.Context, chatID, role, content string) (memory.RecallEntry, error) {
	var limit int
	switch role {
	case memory.RoleUser:
		limit = s.limits.UserRecall
	case memory.RoleAssistant:
		limit = s.limits.AssistantRecall
	default:
		return memory.RecallEntry{}, memory.ErrUnknownRole{Role: role}
	}

	if len(content) > limit {
		content = content[:limit]
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recall_log (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		chatID, role, content, now.Format(time.RFC3339))
	if err != nil {
		return memory.RecallEntry{}, fmt.Errorf("inserting recall row: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return memory.RecallEntry{}, err
	}

	return memory.RecallEntry{
		ID:        id,
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// SearchRecall matches query tokens against recall content, most recent
// first. Recency is the only ordering for this tier.
func (s *SQLiteStore) SearchRecall(ctx context.Context, query string, limit int) ([]memory.RecallEntry, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.chat_id, r.role, r.content, r.created_at
		FROM recall_fts
		JOIN recall_log r ON r.id = recall_fts.rowid
		WHERE recall_fts MATCH ?
		ORDER BY r.id DESC
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("searching recall: %w", err)
	}
	defer rows.Close()

	var entries []memory.RecallEntry
	for rows.Next() {
		var e memory.RecallEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ChatID, &e.Role, &e.Content, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// InsertArchival writes one curated fact. Tags are stored verbatim as a
// space-delimited string and indexed alongside the content.
func (s *SQLiteStore) InsertArchival(ctx context.Context, content, tags, source string) (memory.ArchivalEntry, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO archival_log (content, tags, source, created_at) VALUES (?, ?, ?, ?)`,
		content, tags, source, now.Format(time.RFC3339))
	if err != nil {
		return memory.ArchivalEntry{}, fmt.Errorf("inserting archival row: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return memory.ArchivalEntry{}, err
	}

	return memory.ArchivalEntry{
		ID:        id,
		Content:   content,
		Tags:      tags,
		Source:    source,
		CreatedAt: now,
	}, nil
}

// SearchArchival matches query tokens against archival content and tags,
// ordered by bm25 relevance, best match first.
func (s *SQLiteStore) SearchArchival(ctx context.Context, query string, limit int) ([]memory.ArchivalEntry, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.content, a.tags, a.source, a.created_at
		FROM archival_fts
		JOIN archival_log a ON a.id = archival_fts.rowid
		WHERE archival_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("searching archival: %w", err)
	}
	defer rows.Close()

	var entries []memory.ArchivalEntry
	for rows.Next() {
		var e memory.ArchivalEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Content, &e.Tags, &e.Source, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// DeleteArchival removes the fact by id. The FTS trigger removes the index
// row in the same transaction. Returns whether a row existed.
func (s *SQLiteStore) DeleteArchival(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM archival_log WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting archival row: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Session returns the stored resume token for a conversation, if any.
func (s *SQLiteStore) Session(ctx context.Context, chatID string) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM sessions WHERE chat_id = ?`, chatID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading session: %w", err)
	}

	return token, true, nil
}

// SetSession stores a resume token, last write wins.
func (s *SQLiteStore) SetSession(ctx context.Context, chatID, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (chat_id, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		chatID, token, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}

	return nil
}

// DailySpend returns the accumulated spend for a YYYY-MM-DD date.
func (s *SQLiteStore) DailySpend(ctx context.Context, date string) (float64, error) {
	var amount float64
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM daily_spend WHERE date = ?`, date).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading daily spend: %w", err)
	}

	return amount, nil
}

// AddDailySpend adds amount to the date's running total as a single atomic
// upsert, so concurrent turns for different conversations never lose an
// increment.
func (s *SQLiteStore) AddDailySpend(ctx context.Context, date string, amount float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_spend (date, amount) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET amount = amount + excluded.amount`,
		date, amount)
	if err != nil {
		return fmt.Errorf("updating daily spend: %w", err)
	}

	return nil
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ftsQuery rewrites free text into an FTS5 match expression: each token is
// double-quoted so user input can never inject FTS5 operators, and tokens
// combine with implicit AND.
func ftsQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !isAlnum(r)
	})
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+f+`"`)
	}

	return strings.Join(quoted, " ")
}

func isAlnum(r rune) bool {
	return r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		r > 127
}
