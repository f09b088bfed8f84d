package sqlite_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/memory/sqlite"
)

func TestSQLiteStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SQLite Store Suite")
}

var _ = Describe("SQLiteStore", func() {
	var (
		ctx   context.Context
		store *sqlite.SQLiteStore
	)

	BeforeEach(func() {
		ctx = context.Background()

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

	Describe("Initialize", func() {
		It("seeds exactly the fixed core blocks", func() {
			blocks, err := store.Blocks(ctx)
			Expect(err).NotTo(HaveOccurred())

			names := make([]string, 0, len(blocks))
			for _, b := range blocks {
				names = append(names, b.Name)
			}
			Expect(names).To(ConsistOf(memory.CoreBlockNames()))
		})

		It("seeds a non-empty persona", func() {
			blocks, err := store.Blocks(ctx)
			Expect(err).NotTo(HaveOccurred())

			for _, b := range blocks {
				if b.Name == "persona" {
					Expect(b.Content).NotTo(BeEmpty())
				}
			}
		})

		It("is safe to run against an already-populated store", func() {
			Expect(store.AppendToBlock(ctx, "user", "prefers dark mode")).To(Succeed())

			Expect(store.Initialize(ctx)).To(Succeed())

			blocks, err := store.Blocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, b := range blocks {
				if b.Name == "user" {
					Expect(b.Content).To(Equal("prefers dark mode"))
				}
			}
		})
	})

	Describe("ReplaceInBlock", func() {
		It("replaces the first exact occurrence", func() {
			Expect(store.AppendToBlock(ctx, "tasks", "ship the beta")).To(Succeed())
			Expect(store.ReplaceInBlock(ctx, "tasks", "beta", "GA release")).To(Succeed())

			blocks, err := store.Blocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, b := range blocks {
				if b.Name == "tasks" {
					Expect(b.Content).To(Equal("ship the GA release"))
				}
			}
		})

		It("returns a not-found failure for unknown block names and never creates the block", func() {
			err := store.ReplaceInBlock(ctx, "scratch", "a", "b")
			Expect(err).To(MatchError(memory.ErrBlockNotFound{Name: "scratch"}))

			blocks, err := store.Blocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, b := range blocks {
				Expect(b.Name).NotTo(Equal("scratch"))
			}
		})

		It("leaves content unchanged when the substring does not occur", func() {
			Expect(store.AppendToBlock(ctx, "tasks", "write docs")).To(Succeed())

			err := store.ReplaceInBlock(ctx, "tasks", "X", "Y")
			Expect(err).To(MatchError(memory.ErrTextNotPresent{Name: "tasks"}))

			blocks, err := store.Blocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, b := range blocks {
				if b.Name == "tasks" {
					Expect(b.Content).To(Equal("write docs"))
				}
			}
		})
	})

	Describe("AppendToBlock", func() {
		It("yields exactly the text on empty content", func() {
			Expect(store.AppendToBlock(ctx, "user", "Y")).To(Succeed())

			blocks, err := store.Blocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, b := range blocks {
				if b.Name == "user" {
					Expect(b.Content).To(Equal("Y"))
				}
			}
		})

		It("separates from existing content with a single line break", func() {
			Expect(store.AppendToBlock(ctx, "user", "A")).To(Succeed())
			Expect(store.AppendToBlock(ctx, "user", "Y")).To(Succeed())

			blocks, err := store.Blocks(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, b := range blocks {
				if b.Name == "user" {
					Expect(b.Content).To(Equal("A\nY"))
				}
			}
		})

		It("returns a not-found failure for unknown block names", func() {
			err := store.AppendToBlock(ctx, "scratch", "text")
			Expect(err).To(MatchError(memory.ErrBlockNotFound{Name: "scratch"}))
		})
	})

	Describe("InsertRecall", func() {
		It("stores content within the bound verbatim", func() {
			entry, err := store.InsertRecall(ctx, "c1", memory.RoleUser, "hello there")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Content).To(Equal("hello there"))
			Expect(entry.ID).To(BeNumerically(">", 0))
		})

		It("truncates to exactly the role's byte bound", func() {
			long := strings.Repeat("a", 600)
			entry, err := store.InsertRecall(ctx, "c1", memory.RoleUser, long)
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Content).To(Equal(long[:500]))

			results, err := store.SearchRecall(ctx, "aaa", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(Equal(long[:500]))
		})

		It("applies the larger bound to assistant rows", func() {
			long := strings.Repeat("b", 1200)
			entry, err := store.InsertRecall(ctx, "c1", memory.RoleAssistant, long)
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Content).To(HaveLen(1000))
		})

		It("rejects unknown roles", func() {
			_, err := store.InsertRecall(ctx, "c1", "system", "nope")
			Expect(err).To(MatchError(memory.ErrUnknownRole{Role: "system"}))
		})
	})

	Describe("SearchRecall", func() {
		It("finds rows by a token in their content", func() {
			entry, err := store.InsertRecall(ctx, "c1", memory.RoleUser, "the deploy failed on tuesday")
			Expect(err).NotTo(HaveOccurred())

			results, err := store.SearchRecall(ctx, "deploy", 10)
			Expect(err).NotTo(HaveOccurred())

			ids := make([]int64, 0, len(results))
			for _, r := range results {
				ids = append(ids, r.ID)
			}
			Expect(ids).To(ContainElement(entry.ID))
		})

		It("returns entries most recent first", func() {
			_, err := store.InsertRecall(ctx, "c1", memory.RoleUser, "alpha topic first")
			Expect(err).NotTo(HaveOccurred())
			second, err := store.InsertRecall(ctx, "c1", memory.RoleUser, "alpha topic second")
			Expect(err).NotTo(HaveOccurred())

			results, err := store.SearchRecall(ctx, "alpha", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal(second.ID))
		})

		It("returns nothing for a query with no tokens", func() {
			results, err := store.SearchRecall(ctx, "  !!  ", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("treats FTS operators in queries as literal tokens", func() {
			_, err := store.InsertRecall(ctx, "c1", memory.RoleUser, "near the harbor")
			Expect(err).NotTo(HaveOccurred())

			results, err := store.SearchRecall(ctx, `NEAR("harbor")`, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})
	})

	Describe("archival tier", func() {
		It("round-trips tags exactly and finds entries by tag token", func() {
			entry, err := store.InsertArchival(ctx, "staging db lives on db-2", "a b", "cli")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Tags).To(Equal("a b"))

			results, err := store.SearchArchival(ctx, "b", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal(entry.ID))
			Expect(results[0].Tags).To(Equal("a b"))
		})

		It("finds entries by content token", func() {
			entry, err := store.InsertArchival(ctx, "the failover runbook is in the wiki", "", "agent")
			Expect(err).NotTo(HaveOccurred())

			results, err := store.SearchArchival(ctx, "runbook", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal(entry.ID))
			Expect(results[0].Source).To(Equal("agent"))
		})

		It("removes deleted entries from search and reports not-found on a second delete", func() {
			entry, err := store.InsertArchival(ctx, "ephemeral fact", "", "cli")
			Expect(err).NotTo(HaveOccurred())

			existed, err := store.DeleteArchival(ctx, entry.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())

			results, err := store.SearchArchival(ctx, "ephemeral", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())

			existed, err = store.DeleteArchival(ctx, entry.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeFalse())
		})
	})

	Describe("sessions", func() {
		It("reports no token for an unknown conversation", func() {
			_, ok, err := store.Session(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("stores and overwrites tokens, last write wins", func() {
			Expect(store.SetSession(ctx, "c1", "s1")).To(Succeed())

			token, ok, err := store.Session(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(token).To(Equal("s1"))

			Expect(store.SetSession(ctx, "c1", "s2")).To(Succeed())

			token, _, err = store.Session(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("s2"))
		})
	})

	Describe("daily spend", func() {
		It("returns zero for an unknown date", func() {
			amount, err := store.DailySpend(ctx, "2026-01-01")
			Expect(err).NotTo(HaveOccurred())
			Expect(amount).To(Equal(0.0))
		})

		It("accumulates increments per date and leaves other dates unaffected", func() {
			Expect(store.AddDailySpend(ctx, "2026-01-01", 1.5)).To(Succeed())
			Expect(store.AddDailySpend(ctx, "2026-01-01", 2.25)).To(Succeed())

			amount, err := store.DailySpend(ctx, "2026-01-01")
			Expect(err).NotTo(HaveOccurred())
			Expect(amount).To(BeNumerically("~", 3.75, 1e-9))

			other, err := store.DailySpend(ctx, "2026-01-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(other).To(Equal(0.0))
		})
	})
})
