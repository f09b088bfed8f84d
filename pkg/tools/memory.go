package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/engine"
	"github.com/engramlabs/engram/pkg/memory"
)

// Memory tool names, as exposed to the engine.
const (
	ViewCoreToolName       = "memory_view_core"
	ReplaceCoreToolName    = "memory_replace_core"
	AppendCoreToolName     = "memory_append_core"
	SearchRecallToolName   = "memory_search_recall"
	StoreArchivalToolName  = "memory_store_archival"
	SearchArchivalToolName = "memory_search_archival"
	DeleteArchivalToolName = "memory_delete_archival"
)

const defaultSearchLimit = 10

// NewMemoryRegistry builds the capability table over the tiered store.
func NewMemoryRegistry(store memory.Store, logger *zap.Logger) *Registry {
	r := &Registry{
		logger:   logger,
		handlers: make(map[string]handler),
	}

	blockNames := strings.Join(memory.CoreBlockNames(), ", ")

	r.register(engine.ToolDefinition{
		Name:        ViewCoreToolName,
		Description: "View the current contents of all core memory blocks.",
		InputSchema: objectSchema(nil, nil),
	}, func(ctx context.Context, _ map[string]any) string {
		blocks, err := store.Blocks(ctx)
		if err != nil {
			return "Error: could not read core memory: " + err.Error()
		}
		return RenderBlocks(blocks)
	})

	r.register(engine.ToolDefinition{
		Name: ReplaceCoreToolName,
		Description: "Replace the first exact occurrence of old_text in a core memory block (" +
			blockNames + ") with new_text. Quote the existing text verbatim; fuzzy matches are rejected.",
		InputSchema: objectSchema(map[string]any{
			"block":    map[string]any{"type": "string", "description": "core block name"},
			"old_text": map[string]any{"type": "string", "description": "exact text to replace"},
			"new_text": map[string]any{"type": "string", "description": "replacement text"},
		}, []string{"block", "old_text", "new_text"}),
	}, func(ctx context.Context, input map[string]any) string {
		block := stringArg(input, "block")
		err := store.ReplaceInBlock(ctx, block, stringArg(input, "old_text"), stringArg(input, "new_text"))
		switch {
		case errors.As(err, &memory.ErrBlockNotFound{}):
			return fmt.Sprintf("Error: no core block named %q (valid blocks: %s)", block, blockNames)
		case errors.As(err, &memory.ErrTextNotPresent{}):
			return fmt.Sprintf("Error: old_text not found in block %q; quote the current content exactly", block)
		case err != nil:
			return "Error: replace failed: " + err.Error()
		}
		return fmt.Sprintf("Replaced text in core block %q.", block)
	})

	r.register(engine.ToolDefinition{
		Name:        AppendCoreToolName,
		Description: "Append a line of text to a core memory block (" + blockNames + ").",
		InputSchema: objectSchema(map[string]any{
			"block": map[string]any{"type": "string", "description": "core block name"},
			"text":  map[string]any{"type": "string", "description": "text to append"},
		}, []string{"block", "text"}),
	}, func(ctx context.Context, input map[string]any) string {
		block := stringArg(input, "block")
		err := store.AppendToBlock(ctx, block, stringArg(input, "text"))
		switch {
		case errors.As(err, &memory.ErrBlockNotFound{}):
			return fmt.Sprintf("Error: no core block named %q (valid blocks: %s)", block, blockNames)
		case err != nil:
			return "Error: append failed: " + err.Error()
		}
		return fmt.Sprintf("Appended to core block %q.", block)
	})

	r.register(engine.ToolDefinition{
		Name:        SearchRecallToolName,
		Description: "Search the conversation transcript for past messages matching the query. Results are most recent first.",
		InputSchema: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "search terms"},
			"limit": map[string]any{"type": "integer", "description": "maximum results (default 10)"},
		}, []string{"query"}),
	}, func(ctx context.Context, input map[string]any) string {
		limit, _ := intArg(input, "limit")
		entries, err := store.SearchRecall(ctx, stringArg(input, "query"), intOrDefault(limit))
		if err != nil {
			return "Error: recall search failed: " + err.Error()
		}
		if len(entries) == 0 {
			return "No results."
		}

		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "[%s] (%s) %s\n", e.CreatedAt.Format(time.RFC3339), e.Role, e.Content)
		}
		return strings.TrimRight(b.String(), "\n")
	})

	r.register(engine.ToolDefinition{
		Name:        StoreArchivalToolName,
		Description: "Store a durable fact in archival memory. Use for knowledge worth keeping beyond the transcript.",
		InputSchema: objectSchema(map[string]any{
			"content": map[string]any{"type": "string", "description": "the fact to store"},
			"tags":    map[string]any{"type": "string", "description": "optional space-delimited tags"},
		}, []string{"content"}),
	}, func(ctx context.Context, input map[string]any) string {
		content := stringArg(input, "content")
		if content == "" {
			return "Error: content is required"
		}
		entry, err := store.InsertArchival(ctx, content, stringArg(input, "tags"), "agent")
		if err != nil {
			return "Error: archival store failed: " + err.Error()
		}
		return fmt.Sprintf("Stored archival memory with id %d.", entry.ID)
	})

	r.register(engine.ToolDefinition{
		Name:        SearchArchivalToolName,
		Description: "Search archival memory for stored facts matching the query. Results are ranked by relevance.",
		InputSchema: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "search terms"},
			"limit": map[string]any{"type": "integer", "description": "maximum results (default 10)"},
		}, []string{"query"}),
	}, func(ctx context.Context, input map[string]any) string {
		limit, _ := intArg(input, "limit")
		entries, err := store.SearchArchival(ctx, stringArg(input, "query"), intOrDefault(limit))
		if err != nil {
			return "Error: archival search failed: " + err.Error()
		}
		if len(entries) == 0 {
			return "No results."
		}

		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "[id %d] %s", e.ID, e.Content)
			if e.Tags != "" {
				fmt.Fprintf(&b, " (tags: %s)", e.Tags)
			}
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")
	})

	r.register(engine.ToolDefinition{
		Name:        DeleteArchivalToolName,
		Description: "Delete an archival memory by its id.",
		InputSchema: objectSchema(map[string]any{
			"id": map[string]any{"type": "integer", "description": "archival memory id"},
		}, []string{"id"}),
	}, func(ctx context.Context, input map[string]any) string {
		id, ok := intArg(input, "id")
		if !ok {
			return "Error: id is required"
		}
		existed, err := store.DeleteArchival(ctx, id)
		if err != nil {
			return "Error: archival delete failed: " + err.Error()
		}
		if !existed {
			return fmt.Sprintf("No archival memory with id %d.", id)
		}
		return fmt.Sprintf("Deleted archival memory %d.", id)
	})

	return r
}

// RenderBlocks renders core blocks as named sections. Empty blocks render an
// explicit "(empty)" marker so the engine can tell "no fact recorded" apart
// from a truncated read.
func RenderBlocks(blocks []memory.Block) string {
	if len(blocks) == 0 {
		return "(no core memory)"
	}

	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n", block.Name)
		if block.Content == "" {
			b.WriteString("(empty)")
		} else {
			b.WriteString(block.Content)
		}
	}
	return b.String()
}

func objectSchema(props map[string]any, required []string) map[string]any {
	schema := map[string]any{"type": "object"}
	if len(props) > 0 {
		schema["properties"] = props
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func intOrDefault(limit int64) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	return int(limit)
}
