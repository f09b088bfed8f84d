// Package engine defines the reasoning-engine collaborator: a streaming
// request/response service the orchestrator drives one turn at a time.
// The engine is opaque; this package only fixes the message shapes the
// orchestrator consumes.
package engine

import "context"

// MessageType discriminates streamed messages.
type MessageType string

const (
	// MessageAssistant carries an incremental assistant message: text
	// and/or tool invocations.
	MessageAssistant MessageType = "assistant"

	// MessageResult terminates the stream: success flag, session token,
	// total cost and final text.
	MessageResult MessageType = "result"
)

// ContentBlock represents a single piece of content within an assistant
// message. The Type field determines which other fields are populated.
type ContentBlock struct {
	Type string `json:"type"` // "text", "tool_use"

	// Text content (type="text")
	Text string `json:"text,omitempty"`

	// Tool use (type="tool_use") - the engine requesting tool execution
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
}

// Usage contains token counts for one turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Message is one streamed increment of an engine turn.
type Message struct {
	Type MessageType `json:"type"`

	// Content blocks (type="assistant")
	Content []ContentBlock `json:"content,omitempty"`

	// Terminal fields (type="result")
	Success   bool    `json:"success,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	CostUSD   float64 `json:"cost_usd,omitempty"`
	Result    string  `json:"result,omitempty"`
	Usage     *Usage  `json:"usage,omitempty"`
}

// Text returns the concatenated text content from all text blocks.
func (m *Message) Text() string {
	var result string
	for _, block := range m.Content {
		if block.Type == "text" {
			result += block.Text
		}
	}
	return result
}

// ToolNames returns the names of tool invocations in this message, in order.
func (m *Message) ToolNames() []string {
	var names []string
	for _, block := range m.Content {
		if block.Type == "tool_use" {
			names = append(names, block.ToolName)
		}
	}
	return names
}

// ToolDefinition describes one tool the engine may invoke mid-turn.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Toolbox is the in-process capability table the engine calls into while a
// turn is being consumed. Call returns the textual tool result and whether
// the tool name was known; even failed invocations produce text, since the
// engine has no other way to observe the outcome.
type Toolbox interface {
	Definitions() []ToolDefinition
	Call(ctx context.Context, name string, input map[string]any) (string, bool)
}

// Request is one engine turn.
type Request struct {
	// System is the assembled instruction block.
	System string

	// Prompt is the user's message for this turn.
	Prompt string

	// Model identifies the reasoning model.
	Model string

	// MaxTurns bounds the number of tool-use rounds within this turn.
	MaxTurns int

	// Resume is the session token from a previous turn, empty to start fresh.
	Resume string

	// Tools is the capability table exposed to the engine for this turn.
	Tools Toolbox
}

// MessageStream yields messages in arrival order. Next blocks until the next
// message is available and returns (nil, nil) once the stream is exhausted.
type MessageStream interface {
	Next() (*Message, error)
}

// Engine executes one streaming turn.
type Engine interface {
	Stream(ctx context.Context, req Request) (MessageStream, error)
}
