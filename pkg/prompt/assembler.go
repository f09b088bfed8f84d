// Package prompt assembles the instruction block handed to the reasoning
// engine at the start of every turn. Assembly is a pure function over core
// memory and wall-clock time.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/engramlabs/engram/pkg/memory"
)

// identity is the static persona document. It leads every instruction block
// and never changes at runtime.
const identity = `You are Engram, a conversational agent with a persistent, tiered memory.

Your memory has three tiers:
- Core memory: always visible below, hand-curated facts about who you are,
  who you are talking to, and what you are working on. Edit it with the
  memory_replace_core and memory_append_core tools.
- Recall memory: the full transcript of every past turn. Search it with
  memory_search_recall when you need something said earlier.
- Archival memory: durable long-term facts. Store with memory_store_archival,
  search with memory_search_archival, remove with memory_delete_archival.

Core memory is small. Keep it current: when you learn something durable about
the user or your tasks, write it down before answering.`

// directives are the fixed execution-discipline rules appended after the
// dynamic sections.
const directives = `Execution rules:
- Quote core memory verbatim before editing it; replacements must match the
  stored text exactly.
- Search recall or archival memory before claiming you do not remember
  something.
- Do not repeat the same tool call with the same arguments; if a tool fails
  twice, explain the failure instead of retrying.
- Answer the user directly once your memory is up to date.`

// Assemble renders the full instruction block: identity document, one named
// section per core block, the current date and time, and the execution
// directives. Empty blocks render an explicit "(empty)" marker so the engine
// can tell "no fact recorded" apart from a truncated read.
func Assemble(blocks []memory.Block, now time.Time) string {
	var b strings.Builder

	b.WriteString(identity)
	b.WriteString("\n\n# Core memory\n")

	for _, block := range blocks {
		fmt.Fprintf(&b, "\n## %s\n", block.Name)
		if block.Content == "" {
			b.WriteString("(empty)\n")
		} else {
			b.WriteString(block.Content)
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nCurrent date and time: %s\n\n", now.Format("Monday, January 2, 2006 at 3:04 PM MST"))
	b.WriteString(directives)

	return b.String()
}
