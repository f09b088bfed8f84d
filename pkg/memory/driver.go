// Package memory defines the tiered memory store for the engram system.
//
// Three tiers with distinct lifecycles:
//
//   - Core: small, hand-curated blocks loaded into every prompt. Mutated only
//     by exact-substring replace and append. Never deleted.
//   - Recall: an append-only transcript of every completed turn, searched on
//     demand by recency.
//   - Archival: explicitly curated long-term facts, searched on demand by
//     relevance. The only tier supporting deletion.
//
// Two auxiliary registers ride along: a per-conversation session pointer and
// a per-day spend ledger. Both live in dedicated tables rather than
// piggybacking on the core tier by naming convention.
package memory

import (
	"context"
	"time"
)

// Roles recorded in the recall tier.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CoreBlockNames is the fixed set of prompt-visible core blocks. Initialize
// seeds exactly these; replace and append refuse any other name.
func CoreBlockNames() []string {
	return []string{"persona", "user", "tasks"}
}

// Block is one core-tier memory block.
type Block struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecallEntry is one immutable transcript row.
type RecallEntry struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchivalEntry is one curated long-term fact.
type ArchivalEntry struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Tags      string    `json:"tags,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Limits bounds recall content at ingestion. This caps storage growth; it is
// not a display truncation.
type Limits struct {
	// UserRecall is the byte bound for user-role recall rows.
	UserRecall int

	// AssistantRecall is the byte bound for assistant-role recall rows.
	AssistantRecall int
}

// DefaultLimits returns the standard recall ingestion bounds.
func DefaultLimits() Limits {
	return Limits{UserRecall: 500, AssistantRecall: 1000}
}

// Store is the tiered memory store contract.
//
// Every individual operation is atomic with respect to concurrent operations
// on the same rows: a content row and its full-text index row are never
// observable one without the other, and spend accumulation never loses an
// update when turns for different conversations complete concurrently.
type Store interface {
	// Initialize idempotently creates the schema and seeds the fixed core
	// block names. Re-running never overwrites existing content.
	Initialize(ctx context.Context) error

	// Blocks returns every prompt-visible core block.
	Blocks(ctx context.Context) ([]Block, error)

	// ReplaceInBlock substitutes the first occurrence of old with new in the
	// named block. Returns ErrBlockNotFound for unknown names and
	// ErrTextNotPresent when old does not occur exactly; it never
	// fuzzy-matches and never creates a block.
	ReplaceInBlock(ctx context.Context, name, old, new string) error

	// AppendToBlock concatenates text onto the named block, separated by a
	// single line break when existing content is non-empty.
	AppendToBlock(ctx context.Context, name, text string) error

	// InsertRecall truncates content to the role's ingestion bound, assigns
	// the next id and writes the row plus its index entry atomically.
	InsertRecall(ctx context.Context, chatID, role, content string) (RecallEntry, error)

	// SearchRecall matches query tokens against recall content and returns
	// entries most recent first. Relevance rank is deliberately ignored.
	SearchRecall(ctx context.Context, query string, limit int) ([]RecallEntry, error)

	// InsertArchival writes a curated fact plus its index entry atomically.
	InsertArchival(ctx context.Context, content, tags, source string) (ArchivalEntry, error)

	// SearchArchival matches query tokens against archival content and tags,
	// best match first.
	SearchArchival(ctx context.Context, query string, limit int) ([]ArchivalEntry, error)

	// DeleteArchival removes the fact and its index entry atomically.
	// Returns whether a row existed.
	DeleteArchival(ctx context.Context, id int64) (bool, error)

	// Session returns the stored resume token for a conversation, if any.
	Session(ctx context.Context, chatID string) (string, bool, error)

	// SetSession stores a resume token, last write wins.
	SetSession(ctx context.Context, chatID, token string) error

	// DailySpend returns the accumulated spend for a YYYY-MM-DD date.
	DailySpend(ctx context.Context, date string) (float64, error)

	// AddDailySpend atomically adds amount to the date's running total.
	AddDailySpend(ctx context.Context, date string, amount float64) error

	// Close closes the store.
	Close() error
}
