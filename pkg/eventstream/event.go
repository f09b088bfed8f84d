// Package eventstream defines transport-neutral turn events and the
// publisher contract for shipping them to an event stream backend.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after an agent turn is persisted.
	EventTypeTurnCompleted = "engram.turn.completed"
)

// TurnCompletedEvent is the payload emitted once a turn's recall rows and
// spend increment have been committed.
type TurnCompletedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	ChatID       string  `json:"chat_id"`
	SessionID    string  `json:"session_id,omitempty"`
	Model        string  `json:"model,omitempty"`
	CostUSD      float64 `json:"cost_usd"`
	LoopDetected bool    `json:"loop_detected"`
	Success      bool    `json:"success"`
}

// NewTurnCompletedEvent stamps a fresh event with identity and emission time.
func NewTurnCompletedEvent(chatID string) *TurnCompletedEvent {
	return &TurnCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		ChatID:        chatID,
	}
}
