package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/tools"
)

const defaultSearchLimit = 10

// ViewCoreInput represents the input arguments for the memory_view_core tool.
type ViewCoreInput struct{}

// ReplaceCoreInput represents the input arguments for the memory_replace_core tool.
type ReplaceCoreInput struct {
	Block   string `json:"block" jsonschema:"the core block name"`
	OldText string `json:"old_text" jsonschema:"the exact text to replace"`
	NewText string `json:"new_text" jsonschema:"the replacement text"`
}

// AppendCoreInput represents the input arguments for the memory_append_core tool.
type AppendCoreInput struct {
	Block string `json:"block" jsonschema:"the core block name"`
	Text  string `json:"text" jsonschema:"the text to append"`
}

// SearchInput represents the input arguments for the search tools.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search terms"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results, default 10"`
}

// StoreArchivalInput represents the input arguments for the memory_store_archival tool.
type StoreArchivalInput struct {
	Content string `json:"content" jsonschema:"the fact to store"`
	Tags    string `json:"tags,omitempty" jsonschema:"optional space-delimited tags"`
}

// DeleteArchivalInput represents the input arguments for the memory_delete_archival tool.
type DeleteArchivalInput struct {
	ID int64 `json:"id" jsonschema:"the archival memory id"`
}

func (s *Server) addMemoryTools(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        tools.ViewCoreToolName,
		Description: "View the current contents of all core memory blocks.",
	}, s.handleViewCore)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        tools.ReplaceCoreToolName,
		Description: "Replace the first exact occurrence of old_text in a core memory block with new_text.",
	}, s.handleReplaceCore)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        tools.AppendCoreToolName,
		Description: "Append a line of text to a core memory block.",
	}, s.handleAppendCore)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        tools.SearchRecallToolName,
		Description: "Search the conversation transcript for past messages matching the query.",
	}, s.handleSearchRecall)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        tools.StoreArchivalToolName,
		Description: "Store a durable fact in archival memory.",
	}, s.handleStoreArchival)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        tools.SearchArchivalToolName,
		Description: "Search archival memory for stored facts matching the query.",
	}, s.handleSearchArchival)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        tools.DeleteArchivalToolName,
		Description: "Delete an archival memory by its id.",
	}, s.handleDeleteArchival)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func (s *Server) handleViewCore(ctx context.Context, _ *mcp.CallToolRequest, _ ViewCoreInput) (*mcp.CallToolResult, any, error) {
	blocks, err := s.config.Store.Blocks(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to read core memory: %v", err)), nil, nil
	}

	return textResult(tools.RenderBlocks(blocks)), nil, nil
}

func (s *Server) handleReplaceCore(ctx context.Context, _ *mcp.CallToolRequest, input ReplaceCoreInput) (*mcp.CallToolResult, any, error) {
	if input.Block == "" {
		return errorResult("block is required"), nil, nil
	}

	err := s.config.Store.ReplaceInBlock(ctx, input.Block, input.OldText, input.NewText)
	switch {
	case errors.As(err, &memory.ErrBlockNotFound{}):
		return errorResult(fmt.Sprintf("No core block named %q (valid blocks: %s)",
			input.Block, strings.Join(memory.CoreBlockNames(), ", "))), nil, nil
	case errors.As(err, &memory.ErrTextNotPresent{}):
		return errorResult(fmt.Sprintf("old_text not found in block %q", input.Block)), nil, nil
	case err != nil:
		return errorResult(fmt.Sprintf("Replace failed: %v", err)), nil, nil
	}

	return textResult(fmt.Sprintf("Replaced text in core block %q.", input.Block)), nil, nil
}

func (s *Server) handleAppendCore(ctx context.Context, _ *mcp.CallToolRequest, input AppendCoreInput) (*mcp.CallToolResult, any, error) {
	if input.Block == "" {
		return errorResult("block is required"), nil, nil
	}

	err := s.config.Store.AppendToBlock(ctx, input.Block, input.Text)
	switch {
	case errors.As(err, &memory.ErrBlockNotFound{}):
		return errorResult(fmt.Sprintf("No core block named %q (valid blocks: %s)",
			input.Block, strings.Join(memory.CoreBlockNames(), ", "))), nil, nil
	case err != nil:
		return errorResult(fmt.Sprintf("Append failed: %v", err)), nil, nil
	}

	return textResult(fmt.Sprintf("Appended to core block %q.", input.Block)), nil, nil
}

func (s *Server) handleSearchRecall(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return errorResult("query is required"), nil, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	entries, err := s.config.Store.SearchRecall(ctx, input.Query, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("Recall search failed: %v", err)), nil, nil
	}
	if len(entries) == 0 {
		return textResult("No results."), nil, nil
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] (%s) %s\n", e.CreatedAt.Format(time.RFC3339), e.Role, e.Content)
	}

	return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
}

func (s *Server) handleStoreArchival(ctx context.Context, _ *mcp.CallToolRequest, input StoreArchivalInput) (*mcp.CallToolResult, any, error) {
	if input.Content == "" {
		return errorResult("content is required"), nil, nil
	}

	entry, err := s.config.Store.InsertArchival(ctx, input.Content, input.Tags, "mcp")
	if err != nil {
		return errorResult(fmt.Sprintf("Archival store failed: %v", err)), nil, nil
	}

	return textResult(fmt.Sprintf("Stored archival memory with id %d.", entry.ID)), nil, nil
}

func (s *Server) handleSearchArchival(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return errorResult("query is required"), nil, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	entries, err := s.config.Store.SearchArchival(ctx, input.Query, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("Archival search failed: %v", err)), nil, nil
	}
	if len(entries) == 0 {
		return textResult("No results."), nil, nil
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[id %d] %s", e.ID, e.Content)
		if e.Tags != "" {
			fmt.Fprintf(&b, " (tags: %s)", e.Tags)
		}
		b.WriteString("\n")
	}

	return textResult(strings.TrimRight(b.String(), "\n")), nil, nil
}

func (s *Server) handleDeleteArchival(ctx context.Context, _ *mcp.CallToolRequest, input DeleteArchivalInput) (*mcp.CallToolResult, any, error) {
	if input.ID == 0 {
		return errorResult("id is required"), nil, nil
	}

	existed, err := s.config.Store.DeleteArchival(ctx, input.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("Archival delete failed: %v", err)), nil, nil
	}
	if !existed {
		return textResult(fmt.Sprintf("No archival memory with id %d.", input.ID)), nil, nil
	}

	return textResult(fmt.Sprintf("Deleted archival memory %d.", input.ID)), nil, nil
}
