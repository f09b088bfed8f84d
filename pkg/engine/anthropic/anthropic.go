// Package anthropic implements the engine.Engine interface against the
// Anthropic Messages API.
//
// One engine turn may span several model rounds: whenever the model stops for
// tool use, the client executes the requested tools synchronously through the
// turn's Toolbox, feeds the results back, and continues. Each round surfaces
// one assistant Message to the caller; the terminal result Message carries the
// session token, the summed cost and the final text.
//
// Session transcripts are cached in memory keyed by opaque session ids. An
// unknown resume token starts a fresh engine conversation — the durable
// memory lives in the store, not here.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/engine"
	"github.com/engramlabs/engram/pkg/pricing"
	"github.com/engramlabs/engram/pkg/sse"
)

const (
	apiVersion       = "2023-06-01"
	defaultTarget    = "https://api.anthropic.com"
	defaultMaxTokens = 4096
)

// Config configures the Anthropic engine client.
type Config struct {
	// APIKey authenticates against the Messages API. Required.
	APIKey string

	// Target is the API base URL. Defaults to the public endpoint.
	Target string

	// HTTPClient overrides the default http.Client.
	HTTPClient *http.Client

	// Pricing converts usage into cost. Defaults to pricing.DefaultTable().
	Pricing pricing.Table

	// Logger is the configured zap logger. Required.
	Logger *zap.Logger
}

// Client is a streaming Anthropic Messages API client implementing
// engine.Engine.
type Client struct {
	apiKey     string
	target     string
	httpClient *http.Client
	pricing    pricing.Table
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string][]anthropicMessage
}

// New creates a new Anthropic engine client.
func New(c Config) (*Client, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if c.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if c.Target == "" {
		c.Target = defaultTarget
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if c.Pricing == nil {
		c.Pricing = pricing.DefaultTable()
	}

	return &Client{
		apiKey:     c.APIKey,
		target:     strings.TrimSuffix(c.Target, "/"),
		httpClient: c.HTTPClient,
		pricing:    c.Pricing,
		logger:     c.Logger,
		sessions:   make(map[string][]anthropicMessage),
	}, nil
}

// messageStream delivers messages produced by the turn goroutine.
type messageStream struct {
	ch chan *engine.Message

	mu  sync.Mutex
	err error
}

func (s *messageStream) Next() (*engine.Message, error) {
	msg, ok := <-s.ch
	if !ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		return nil, s.err
	}
	return msg, nil
}

func (s *messageStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Stream starts one engine turn and returns a stream of its messages.
func (c *Client) Stream(ctx context.Context, req engine.Request) (engine.MessageStream, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if req.MaxTurns <= 0 {
		return nil, fmt.Errorf("max turns must be positive")
	}

	sessionID := req.Resume
	var transcript []anthropicMessage

	if sessionID != "" {
		c.mu.Lock()
		cached, ok := c.sessions[sessionID]
		c.mu.Unlock()
		if ok {
			transcript = append(transcript, cached...)
		} else {
			c.logger.Debug("resume token not found, starting fresh session",
				zap.String("session_id", sessionID),
			)
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	transcript = append(transcript, anthropicMessage{
		Role:    "user",
		Content: []anthropicContentBlock{{Type: "text", Text: req.Prompt}},
	})

	stream := &messageStream{ch: make(chan *engine.Message, 8)}
	go c.runTurn(ctx, req, sessionID, transcript, stream)

	return stream, nil
}

// runTurn drives the tool-use rounds of one turn and closes the stream when
// the turn ends, for any reason.
func (c *Client) runTurn(ctx context.Context, req engine.Request, sessionID string, transcript []anthropicMessage, stream *messageStream) {
	defer close(stream.ch)

	var (
		totalCost float64
		usageSum  engine.Usage
		textParts []string
	)

	tools := c.wireTools(req.Tools)

	for round := 0; round < req.MaxTurns; round++ {
		content, stopReason, usage, err := c.doRound(ctx, req, transcript, tools)
		if err != nil {
			stream.fail(fmt.Errorf("engine round %d: %w", round+1, err))
			return
		}

		totalCost += c.roundCost(req.Model, usage)
		usageSum.PromptTokens += usage.InputTokens
		usageSum.CompletionTokens += usage.OutputTokens
		usageSum.TotalTokens += usage.InputTokens + usage.OutputTokens
		usageSum.CacheCreationInputTokens += usage.CacheCreationInputTokens
		usageSum.CacheReadInputTokens += usage.CacheReadInputTokens

		transcript = append(transcript, anthropicMessage{Role: "assistant", Content: content})

		assistant := toEngineMessage(content)
		if t := assistant.Text(); t != "" {
			textParts = append(textParts, t)
		}

		if !emit(ctx, stream, assistant) {
			return
		}

		if stopReason != "tool_use" {
			c.storeSession(sessionID, transcript)
			emit(ctx, stream, &engine.Message{
				Type:      engine.MessageResult,
				Success:   true,
				SessionID: sessionID,
				CostUSD:   totalCost,
				Result:    strings.Join(textParts, "\n"),
				Usage:     &usageSum,
			})
			return
		}

		// Execute requested tools synchronously and feed results back.
		results := c.invokeTools(ctx, req.Tools, content)
		transcript = append(transcript, anthropicMessage{Role: "user", Content: results})
	}

	// Round ceiling reached without a natural stop.
	c.storeSession(sessionID, transcript)
	emit(ctx, stream, &engine.Message{
		Type:      engine.MessageResult,
		Success:   false,
		SessionID: sessionID,
		CostUSD:   totalCost,
		Usage:     &usageSum,
	})
}

// emit delivers a message unless the turn context has been cancelled.
func emit(ctx context.Context, stream *messageStream, msg *engine.Message) bool {
	select {
	case stream.ch <- msg:
		return true
	case <-ctx.Done():
		stream.fail(ctx.Err())
		return false
	}
}

func (c *Client) storeSession(sessionID string, transcript []anthropicMessage) {
	c.mu.Lock()
	c.sessions[sessionID] = transcript
	c.mu.Unlock()
}

func (c *Client) roundCost(model string, usage anthropicUsage) float64 {
	price, ok := pricing.ForModel(c.pricing, model)
	if !ok {
		c.logger.Warn("no pricing for model, cost not accounted",
			zap.String("model", model),
		)
		return 0
	}

	_, _, total := pricing.CostForTokensWithCache(price,
		int64(usage.InputTokens),
		int64(usage.OutputTokens),
		int64(usage.CacheCreationInputTokens),
		int64(usage.CacheReadInputTokens),
	)
	return total
}

func (c *Client) wireTools(toolbox engine.Toolbox) []anthropicTool {
	if toolbox == nil {
		return nil
	}

	defs := toolbox.Definitions()
	tools := make([]anthropicTool, 0, len(defs))
	for _, def := range defs {
		schema := def.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		tools = append(tools, anthropicTool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		})
	}
	return tools
}

// invokeTools runs every tool_use block in order and returns the tool_result
// blocks for the next round.
func (c *Client) invokeTools(ctx context.Context, toolbox engine.Toolbox, content []anthropicContentBlock) []anthropicContentBlock {
	var results []anthropicContentBlock
	for _, block := range content {
		if block.Type != "tool_use" {
			continue
		}

		var input map[string]any
		if len(block.Input) > 0 {
			if err := json.Unmarshal(block.Input, &input); err != nil {
				c.logger.Warn("malformed tool input",
					zap.String("tool", block.Name),
					zap.Error(err),
				)
			}
		}

		var (
			text string
			ok   bool
		)
		if toolbox != nil {
			text, ok = toolbox.Call(ctx, block.Name, input)
		}
		if !ok {
			text = fmt.Sprintf("Error: unknown tool %q", block.Name)
		}

		results = append(results, anthropicContentBlock{
			Type:      "tool_result",
			ToolUseID: block.ID,
			Content:   text,
			IsError:   !ok,
		})
	}
	return results
}

// doRound performs one streamed Messages API call and assembles the
// assistant's content blocks from the SSE events.
func (c *Client) doRound(ctx context.Context, req engine.Request, transcript []anthropicMessage, tools []anthropicTool) ([]anthropicContentBlock, string, anthropicUsage, error) {
	body := anthropicRequest{
		Model:     req.Model,
		MaxTokens: defaultMaxTokens,
		System:    req.System,
		Messages:  transcript,
		Tools:     tools,
		Stream:    true,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", anthropicUsage{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, "", anthropicUsage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", anthropicUsage{}, fmt.Errorf("calling engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errBody anthropicErrorBody
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error.Message != "" {
			return nil, "", anthropicUsage{}, fmt.Errorf("engine returned %d: %s", resp.StatusCode, errBody.Error.Message)
		}
		return nil, "", anthropicUsage{}, fmt.Errorf("engine returned %d", resp.StatusCode)
	}

	return c.consumeRound(resp.Body)
}

// roundBlock accumulates one content block's streamed fragments.
type roundBlock struct {
	blockType string
	id        string
	name      string
	text      strings.Builder
	inputJSON strings.Builder
}

// consumeRound reads SSE events until message_stop and returns the assembled
// content blocks, the stop reason and the round's usage.
func (c *Client) consumeRound(body io.Reader) ([]anthropicContentBlock, string, anthropicUsage, error) {
	reader := sse.NewReader(body)

	blocks := make(map[int]*roundBlock)
	var (
		stopReason string
		usage      anthropicUsage
	)

	for {
		ev, err := reader.Next()
		if err != nil {
			return nil, "", usage, fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			break
		}

		switch ev.Type {
		case "message_start":
			var start streamMessageStart
			if err := json.Unmarshal([]byte(ev.Data), &start); err != nil {
				return nil, "", usage, fmt.Errorf("parsing message_start: %w", err)
			}
			usage.InputTokens = start.Message.Usage.InputTokens
			usage.CacheCreationInputTokens = start.Message.Usage.CacheCreationInputTokens
			usage.CacheReadInputTokens = start.Message.Usage.CacheReadInputTokens

		case "content_block_start":
			var start streamContentBlockStart
			if err := json.Unmarshal([]byte(ev.Data), &start); err != nil {
				return nil, "", usage, fmt.Errorf("parsing content_block_start: %w", err)
			}
			block := &roundBlock{
				blockType: start.ContentBlock.Type,
				id:        start.ContentBlock.ID,
				name:      start.ContentBlock.Name,
			}
			block.text.WriteString(start.ContentBlock.Text)
			blocks[start.Index] = block

		case "content_block_delta":
			var delta streamContentBlockDelta
			if err := json.Unmarshal([]byte(ev.Data), &delta); err != nil {
				return nil, "", usage, fmt.Errorf("parsing content_block_delta: %w", err)
			}
			block, ok := blocks[delta.Index]
			if !ok {
				continue
			}
			switch delta.Delta.Type {
			case "text_delta":
				block.text.WriteString(delta.Delta.Text)
			case "input_json_delta":
				block.inputJSON.WriteString(delta.Delta.PartialJSON)
			}

		case "message_delta":
			var delta streamMessageDelta
			if err := json.Unmarshal([]byte(ev.Data), &delta); err != nil {
				return nil, "", usage, fmt.Errorf("parsing message_delta: %w", err)
			}
			if delta.Delta.StopReason != "" {
				stopReason = delta.Delta.StopReason
			}
			usage.OutputTokens = delta.Usage.OutputTokens

		case "error":
			var streamErr streamError
			if err := json.Unmarshal([]byte(ev.Data), &streamErr); err != nil {
				return nil, "", usage, fmt.Errorf("engine stream error")
			}
			return nil, "", usage, fmt.Errorf("engine stream error: %s", streamErr.Error.Message)

		case "message_stop":
			return assembleBlocks(blocks), stopReason, usage, nil

		default:
			// ping and future event types are ignored.
		}
	}

	// Stream ended without message_stop; treat whatever arrived as final.
	return assembleBlocks(blocks), stopReason, usage, nil
}

func assembleBlocks(blocks map[int]*roundBlock) []anthropicContentBlock {
	indices := make([]int, 0, len(blocks))
	for i := range blocks {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	content := make([]anthropicContentBlock, 0, len(indices))
	for _, i := range indices {
		b := blocks[i]
		wire := anthropicContentBlock{Type: b.blockType}
		switch b.blockType {
		case "text":
			wire.Text = b.text.String()
		case "tool_use":
			wire.ID = b.id
			wire.Name = b.name
			input := b.inputJSON.String()
			if input == "" {
				input = "{}"
			}
			wire.Input = json.RawMessage(input)
		}
		content = append(content, wire)
	}
	return content
}

func toEngineMessage(content []anthropicContentBlock) *engine.Message {
	msg := &engine.Message{Type: engine.MessageAssistant}
	for _, block := range content {
		switch block.Type {
		case "text":
			msg.Content = append(msg.Content, engine.ContentBlock{
				Type: "text",
				Text: block.Text,
			})
		case "tool_use":
			var input map[string]any
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &input)
			}
			msg.Content = append(msg.Content, engine.ContentBlock{
				Type:      "tool_use",
				ToolUseID: block.ID,
				ToolName:  block.Name,
				ToolInput: input,
			})
		}
	}
	return msg
}
