package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/engine"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/memory/sqlite"
)

func TestOrchestrator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Orchestrator Suite")
}

// scriptedStream replays a fixed message sequence, then an optional error.
type scriptedStream struct {
	msgs []*engine.Message
	err  error
	i    int
}

func (s *scriptedStream) Next() (*engine.Message, error) {
	if s.i < len(s.msgs) {
		msg := s.msgs[s.i]
		s.i++
		return msg, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

// scriptedEngine records the last request and hands back a scripted stream.
type scriptedEngine struct {
	msgs    []*engine.Message
	err     error
	calls   int
	lastReq engine.Request
}

func (e *scriptedEngine) Stream(_ context.Context, req engine.Request) (engine.MessageStream, error) {
	e.calls++
	e.lastReq = req
	return &scriptedStream{msgs: e.msgs, err: e.err}, nil
}

func assistantText(text string) *engine.Message {
	return &engine.Message{
		Type:    engine.MessageAssistant,
		Content: []engine.ContentBlock{{Type: "text", Text: text}},
	}
}

func assistantToolUse(name string) *engine.Message {
	return &engine.Message{
		Type:    engine.MessageAssistant,
		Content: []engine.ContentBlock{{Type: "tool_use", ToolName: name, ToolUseID: "tu_" + name}},
	}
}

func result(success bool, sessionID, text string, cost float64) *engine.Message {
	return &engine.Message{
		Type:      engine.MessageResult,
		Success:   success,
		SessionID: sessionID,
		Result:    text,
		CostUSD:   cost,
	}
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx   context.Context
		store memory.Store
		eng   *scriptedEngine
		now   time.Time
	)

	const today = "2026-03-01"

	newOrchestrator := func(cfg Config) *Orchestrator {
		o, err := NewOrchestrator(cfg, store, eng, nil, nil, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		o.now = func() time.Time { return now }
		return o
	}

	defaultConfig := Config{
		Model:           "claude-sonnet-4-5",
		Timezone:        "UTC",
		DailyCeilingUSD: 20.0,
		MaxTurns:        30,
		LoopWindow:      3,
	}

	recallContents := func(query string) []string {
		entries, err := store.SearchRecall(ctx, query, 50)
		Expect(err).NotTo(HaveOccurred())
		contents := make([]string, 0, len(entries))
		for _, e := range entries {
			contents = append(contents, e.Content)
		}
		return contents
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		eng = &scriptedEngine{}

		var err error
		store, err = sqlite.NewSQLiteStore(
			filepath.Join(GinkgoT().TempDir(), "engram.db"),
			memory.DefaultLimits(),
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Initialize(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("budget gate", func() {
		It("short-circuits without an engine call and persists nothing", func() {
			Expect(store.AddDailySpend(ctx, today, 19.99)).To(Succeed())

			cfg := defaultConfig
			cfg.DailyCeilingUSD = 15.0
			o := newOrchestrator(cfg)

			turn, err := o.Invoke(ctx, "c1", "hello budget")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Text).To(ContainSubstring("19.99"))
			Expect(turn.CostUSD).To(Equal(0.0))

			Expect(eng.calls).To(Equal(0))
			Expect(recallContents("budget")).To(BeEmpty())

			spend, err := store.DailySpend(ctx, today)
			Expect(err).NotTo(HaveOccurred())
			Expect(spend).To(BeNumerically("~", 19.99, 1e-9))
		})

		It("does not gate below the ceiling", func() {
			Expect(store.AddDailySpend(ctx, today, 19.99)).To(Succeed())

			eng.msgs = []*engine.Message{result(true, "s1", "fine", 0.01)}
			o := newOrchestrator(defaultConfig)

			_, err := o.Invoke(ctx, "c1", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(eng.calls).To(Equal(1))
		})
	})

	Describe("successful turns", func() {
		It("returns the terminal text and cost, and persists the recall pair", func() {
			eng.msgs = []*engine.Message{
				assistantText("thinking..."),
				result(true, "s1", "the answer", 0.0125),
			}
			o := newOrchestrator(defaultConfig)

			turn, err := o.Invoke(ctx, "c1", "what is the answer?")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Text).To(Equal("the answer"))
			Expect(turn.CostUSD).To(BeNumerically("~", 0.0125, 1e-9))
			Expect(turn.SessionID).To(Equal("s1"))

			Expect(recallContents("answer")).To(ConsistOf("what is the answer?", "the answer"))

			spend, err := store.DailySpend(ctx, today)
			Expect(err).NotTo(HaveOccurred())
			Expect(spend).To(BeNumerically("~", 0.0125, 1e-9))
		})

		It("falls back to accumulated partial text when the terminal text is absent", func() {
			eng.msgs = []*engine.Message{
				assistantText("partial "),
				assistantText("answer"),
				result(true, "s1", "", 0.01),
			}
			o := newOrchestrator(defaultConfig)

			turn, err := o.Invoke(ctx, "c1", "question")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Text).To(Equal("partial answer"))
		})

		It("passes the assembled system prompt and bounds to the engine", func() {
			eng.msgs = []*engine.Message{result(true, "s1", "ok", 0.01)}
			o := newOrchestrator(defaultConfig)

			_, err := o.Invoke(ctx, "c1", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(eng.lastReq.System).To(ContainSubstring("Core memory"))
			Expect(eng.lastReq.Model).To(Equal("claude-sonnet-4-5"))
			Expect(eng.lastReq.MaxTurns).To(Equal(30))
			Expect(eng.lastReq.Prompt).To(Equal("hello"))
		})
	})

	Describe("session resume", func() {
		It("resumes the second turn with the first turn's token", func() {
			eng.msgs = []*engine.Message{result(true, "s1", "first", 0.01)}
			o := newOrchestrator(defaultConfig)

			_, err := o.Invoke(ctx, "c1", "turn one")
			Expect(err).NotTo(HaveOccurred())
			Expect(eng.lastReq.Resume).To(BeEmpty())

			eng.msgs = []*engine.Message{result(true, "s2", "second", 0.01)}
			_, err = o.Invoke(ctx, "c1", "turn two")
			Expect(err).NotTo(HaveOccurred())
			Expect(eng.lastReq.Resume).To(Equal("s1"))
		})
	})

	Describe("loop detection", func() {
		It("cancels after three identical consecutive tool calls and annotates the text", func() {
			eng.msgs = []*engine.Message{
				assistantText("working on it"),
				assistantToolUse("X"),
				assistantToolUse("X"),
				assistantToolUse("X"),
				// Never reached: consumption stops at the loop.
				result(true, "s9", "should not appear", 5.0),
			}
			o := newOrchestrator(defaultConfig)

			turn, err := o.Invoke(ctx, "c1", "do the thing")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.LoopDetected).To(BeTrue())
			Expect(turn.Text).To(HaveSuffix("[loop detected, stopping]"))
			Expect(turn.Text).To(ContainSubstring("working on it"))
			Expect(turn.CostUSD).To(Equal(0.0))

			// Only the partial turn is persisted.
			Expect(recallContents("thing")).To(ContainElement("do the thing"))
			Expect(recallContents("stopping")).To(HaveLen(1))

			spend, err := store.DailySpend(ctx, today)
			Expect(err).NotTo(HaveOccurred())
			Expect(spend).To(Equal(0.0))

			_, ok, err := store.Session(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("does not trip on three different tools", func() {
			eng.msgs = []*engine.Message{
				assistantToolUse("X"),
				assistantToolUse("Y"),
				assistantToolUse("X"),
				result(true, "s1", "done", 0.01),
			}
			o := newOrchestrator(defaultConfig)

			turn, err := o.Invoke(ctx, "c1", "mixed tools")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.LoopDetected).To(BeFalse())
			Expect(turn.Text).To(Equal("done"))
		})
	})

	Describe("failure paths", func() {
		It("persists partial text when the stream fails mid-turn", func() {
			eng.msgs = []*engine.Message{assistantText("partial before crash")}
			eng.err = errors.New("connection reset")
			o := newOrchestrator(defaultConfig)

			turn, err := o.Invoke(ctx, "c1", "doomed prompt")
			Expect(err).To(MatchError(ContainSubstring("connection reset")))
			Expect(turn.Text).To(Equal("partial before crash"))

			Expect(recallContents("doomed")).To(ContainElement("doomed prompt"))
			Expect(recallContents("crash")).To(ContainElement("partial before crash"))
		})

		It("keeps the partial text of a non-success terminal message", func() {
			eng.msgs = []*engine.Message{
				assistantText("got this far"),
				result(false, "", "", 0.004),
			}
			o := newOrchestrator(defaultConfig)

			turn, err := o.Invoke(ctx, "c1", "hard question")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Text).To(Equal("got this far"))
			Expect(turn.CostUSD).To(BeNumerically("~", 0.004, 1e-9))

			Expect(recallContents("far")).To(ContainElement("got this far"))
		})
	})
})
