// Package agent drives single agent turns: budget gating, prompt assembly,
// streamed engine consumption with loop detection, and persistence of the
// turn's outcome into the memory store.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/engine"
	"github.com/engramlabs/engram/pkg/eventstream"
	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/prompt"
)

// loopNotice is appended to the in-progress answer when a tool-call loop is
// detected and the turn is cancelled.
const loopNotice = "[loop detected, stopping]"

// Config bounds a single turn.
type Config struct {
	// Model identifies the reasoning model for this orchestrator.
	Model string

	// Timezone governs the spend ledger's date buckets and the date and time
	// rendered into the instruction block.
	Timezone string

	// DailyCeilingUSD gates new turns: once a day's accumulated spend reaches
	// this value, invocations short-circuit without an engine call.
	DailyCeilingUSD float64

	// MaxTurns bounds tool-use rounds within one engine turn.
	MaxTurns int

	// LoopWindow is the number of consecutive identical tool invocations that
	// counts as a loop.
	LoopWindow int
}

// Turn is the outcome of one invocation.
type Turn struct {
	Text         string  `json:"text"`
	CostUSD      float64 `json:"cost_usd"`
	SessionID    string  `json:"session_id,omitempty"`
	LoopDetected bool    `json:"loop_detected,omitempty"`
}

// Orchestrator executes agent turns one at a time per conversation.
type Orchestrator struct {
	cfg    Config
	store  memory.Store
	engine engine.Engine
	tools  engine.Toolbox
	events eventstream.Publisher
	logger *zap.Logger
	loc    *time.Location

	// now is the clock; replaced in tests.
	now func() time.Time
}

// NewOrchestrator wires an orchestrator. The events publisher may be nil when
// event streaming is disabled.
func NewOrchestrator(
	cfg Config,
	store memory.Store,
	eng engine.Engine,
	tools engine.Toolbox,
	events eventstream.Publisher,
	logger *zap.Logger,
) (*Orchestrator, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	return &Orchestrator{
		cfg:    cfg,
		store:  store,
		engine: eng,
		tools:  tools,
		events: events,
		logger: logger,
		loc:    loc,
		now:    time.Now,
	}, nil
}

// Invoke executes exactly one agent turn for the conversation. The caller is
// expected to serialize invocations per chat id; turns for different chat ids
// may run concurrently.
func (o *Orchestrator) Invoke(ctx context.Context, chatID, userPrompt string) (Turn, error) {
	now := o.now().In(o.loc)
	today := now.Format("2006-01-02")

	// Budget gate runs before any network work. A blocked turn persists
	// nothing: no recall rows, no spend, no session change.
	spend, err := o.store.DailySpend(ctx, today)
	if err != nil {
		return Turn{}, fmt.Errorf("read daily spend: %w", err)
	}
	if spend >= o.cfg.DailyCeilingUSD {
		o.logger.Warn("daily spend ceiling reached",
			zap.String("chat_id", chatID),
			zap.Float64("spend_usd", spend),
			zap.Float64("ceiling_usd", o.cfg.DailyCeilingUSD),
		)
		notice := fmt.Sprintf(
			"Daily spend limit reached (%.2f of %.2f USD spent today). Try again tomorrow.",
			spend, o.cfg.DailyCeilingUSD,
		)
		return Turn{Text: notice}, nil
	}

	blocks, err := o.store.Blocks(ctx)
	if err != nil {
		return Turn{}, fmt.Errorf("read core blocks: %w", err)
	}
	system := prompt.Assemble(blocks, now)

	resume, _, err := o.store.Session(ctx, chatID)
	if err != nil {
		return Turn{}, fmt.Errorf("read session token: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := o.engine.Stream(streamCtx, engine.Request{
		System:   system,
		Prompt:   userPrompt,
		Model:    o.cfg.Model,
		MaxTurns: o.cfg.MaxTurns,
		Resume:   resume,
		Tools:    o.tools,
	})
	if err != nil {
		return Turn{}, fmt.Errorf("start engine turn: %w", err)
	}

	turn, success, streamErr := o.consume(stream, cancel)

	// Persistence always runs to completion, even when the stream was
	// cancelled or failed mid-flight.
	persistCtx := context.WithoutCancel(ctx)
	o.persist(persistCtx, chatID, today, userPrompt, &turn)
	o.publish(persistCtx, chatID, &turn, success)

	if streamErr != nil {
		return turn, fmt.Errorf("engine turn failed: %w", streamErr)
	}

	return turn, nil
}

// consume drains the message stream, accumulating answer text and watching
// for tool-call loops. Cancelling mid-stream is the only abort path.
func (o *Orchestrator) consume(stream engine.MessageStream, cancel context.CancelFunc) (Turn, bool, error) {
	var (
		turn    Turn
		partial string
		recent  []string
		success bool
	)

	for {
		msg, err := stream.Next()
		if err != nil {
			// Partial text survives a transport failure so the turn is not
			// silently lost.
			turn.Text = partial
			return turn, false, err
		}
		if msg == nil {
			break
		}

		switch msg.Type {
		case engine.MessageAssistant:
			partial += msg.Text()

			looped := false
			for _, name := range msg.ToolNames() {
				recent = append(recent, name)
				if len(recent) > o.cfg.LoopWindow {
					recent = recent[1:]
				}
				if o.isLoop(recent) {
					looped = true
					break
				}
			}
			if looped {
				cancel()
				if partial != "" {
					partial += "\n\n"
				}
				partial += loopNotice
				turn.Text = partial
				turn.LoopDetected = true
				o.logger.Warn("tool-call loop detected",
					zap.Strings("recent_tools", recent),
				)
				return turn, false, nil
			}

		case engine.MessageResult:
			success = msg.Success
			turn.CostUSD = msg.CostUSD
			turn.SessionID = msg.SessionID
			if msg.Result != "" {
				turn.Text = msg.Result
			} else {
				turn.Text = partial
			}
		}
	}

	if turn.Text == "" {
		turn.Text = partial
	}

	return turn, success, nil
}

// isLoop reports whether the window is full and every entry is the same tool.
func (o *Orchestrator) isLoop(recent []string) bool {
	if o.cfg.LoopWindow < 2 || len(recent) < o.cfg.LoopWindow {
		return false
	}
	first := recent[0]
	for _, name := range recent[1:] {
		if name != first {
			return false
		}
	}
	return true
}

// persist writes the turn's durable outcome: session token (only when one was
// produced), spend increment (only when cost was incurred), and the recall
// pair. The user row is always written; the assistant row only when answer
// text exists. Persistence failures are logged, not returned — a committed
// engine turn must not be reported as failed because a bookkeeping write
// lagged.
func (o *Orchestrator) persist(ctx context.Context, chatID, date, userPrompt string, turn *Turn) {
	if turn.SessionID != "" {
		if err := o.store.SetSession(ctx, chatID, turn.SessionID); err != nil {
			o.logger.Error("persist session token", zap.Error(err), zap.String("chat_id", chatID))
		}
	}

	if turn.CostUSD > 0 {
		if err := o.store.AddDailySpend(ctx, date, turn.CostUSD); err != nil {
			o.logger.Error("persist spend", zap.Error(err), zap.String("date", date))
		}
	}

	if _, err := o.store.InsertRecall(ctx, chatID, memory.RoleUser, userPrompt); err != nil {
		o.logger.Error("persist user recall row", zap.Error(err), zap.String("chat_id", chatID))
	}

	if turn.Text != "" {
		if _, err := o.store.InsertRecall(ctx, chatID, memory.RoleAssistant, turn.Text); err != nil {
			o.logger.Error("persist assistant recall row", zap.Error(err), zap.String("chat_id", chatID))
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, chatID string, turn *Turn, success bool) {
	if o.events == nil {
		return
	}

	event := eventstream.NewTurnCompletedEvent(chatID)
	event.SessionID = turn.SessionID
	event.Model = o.cfg.Model
	event.CostUSD = turn.CostUSD
	event.LoopDetected = turn.LoopDetected
	event.Success = success

	if err := o.events.PublishTurn(ctx, event); err != nil {
		o.logger.Error("publish turn event", zap.Error(err), zap.String("chat_id", chatID))
	}
}
