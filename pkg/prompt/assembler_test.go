package prompt_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/prompt"
)

func TestPrompt(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Prompt Suite")
}

var _ = Describe("Assemble", func() {
	now := time.Date(2026, 3, 1, 15, 4, 0, 0, time.UTC)

	blocks := []memory.Block{
		{Name: "persona", Content: "I am engram."},
		{Name: "tasks", Content: ""},
		{Name: "user", Content: "prefers terse answers"},
	}

	It("renders each block as a named section", func() {
		out := prompt.Assemble(blocks, now)
		Expect(out).To(ContainSubstring("## persona\nI am engram."))
		Expect(out).To(ContainSubstring("## user\nprefers terse answers"))
	})

	It("marks empty blocks explicitly", func() {
		out := prompt.Assemble(blocks, now)
		Expect(out).To(ContainSubstring("## tasks\n(empty)"))
	})

	It("includes the current date and time", func() {
		out := prompt.Assemble(blocks, now)
		Expect(out).To(ContainSubstring("Sunday, March 1, 2026"))
		Expect(out).To(ContainSubstring("3:04 PM"))
	})

	It("renders the time in the given location", func() {
		loc, err := time.LoadLocation("America/New_York")
		Expect(err).NotTo(HaveOccurred())

		out := prompt.Assemble(blocks, now.In(loc))
		Expect(out).To(ContainSubstring("10:04 AM"))
	})

	It("ends with the execution rules", func() {
		out := prompt.Assemble(blocks, now)
		Expect(out).To(ContainSubstring("Execution rules:"))
		Expect(out).To(ContainSubstring("Quote core memory verbatim"))
	})

	It("is a pure function over its inputs", func() {
		first := prompt.Assemble(blocks, now)
		second := prompt.Assemble(blocks, now)
		Expect(second).To(Equal(first))
	})
})
