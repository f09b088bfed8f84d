package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultSearchLimit = 10

// ErrorResponse is the JSON error envelope for all failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InvokeRequest is the body of POST /invoke.
type InvokeRequest struct {
	ChatID string `json:"chat_id"`
	Prompt string `json:"prompt"`
}

// ArchivalRequest is the body of POST /memory/archival.
type ArchivalRequest struct {
	Content string `json:"content"`
	Tags    string `json:"tags,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleInvoke runs one agent turn for the given conversation.
func (s *Server) handleInvoke(c *fiber.Ctx) error {
	var req InvokeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.ChatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "chat_id is required"})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "prompt is required"})
	}

	turn, err := s.orchestrator.Invoke(c.Context(), req.ChatID, req.Prompt)
	if err != nil {
		s.logger.Error("invocation failed",
			zap.String("chat_id", req.ChatID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "invocation failed"})
	}

	return c.JSON(turn)
}

// handleCoreBlocks returns all prompt-visible core blocks.
func (s *Server) handleCoreBlocks(c *fiber.Ctx) error {
	blocks, err := s.store.Blocks(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to read core blocks"})
	}

	return c.JSON(map[string]any{
		"blocks": blocks,
	})
}

// handleSearchRecall searches the transcript tier, most recent first.
func (s *Server) handleSearchRecall(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "q parameter required"})
	}

	entries, err := s.store.SearchRecall(c.Context(), query, c.QueryInt("limit", defaultSearchLimit))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "recall search failed"})
	}

	return c.JSON(map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// handleSearchArchival searches the archival tier, best match first.
func (s *Server) handleSearchArchival(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "q parameter required"})
	}

	entries, err := s.store.SearchArchival(c.Context(), query, c.QueryInt("limit", defaultSearchLimit))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "archival search failed"})
	}

	return c.JSON(map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// handleStoreArchival stores a curated long-term fact.
func (s *Server) handleStoreArchival(c *fiber.Ctx) error {
	var req ArchivalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is required"})
	}

	entry, err := s.store.InsertArchival(c.Context(), req.Content, req.Tags, "api")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "archival store failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(entry)
}

// handleDeleteArchival removes an archival fact by id.
func (s *Server) handleDeleteArchival(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid id"})
	}

	existed, err := s.store.DeleteArchival(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "archival delete failed"})
	}
	if !existed {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "archival entry not found"})
	}

	return c.JSON(map[string]any{"deleted": id})
}
