package api

import (
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/agent"
	"github.com/engramlabs/engram/pkg/memory"
)

// Server is the HTTP server for agent invocation and memory inspection.
type Server struct {
	config       Config
	store        memory.Store
	orchestrator *agent.Orchestrator
	logger       *zap.Logger
	app          *fiber.App
}

// NewServer creates a new API server. The store and orchestrator are injected
// so they can be shared with the MCP server and the CLI.
func NewServer(config Config, store memory.Store, orchestrator *agent.Orchestrator, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:       config,
		store:        store,
		orchestrator: orchestrator,
		logger:       logger,
		app:          app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/invoke", s.handleInvoke)
	app.Get("/memory/core", s.handleCoreBlocks)
	app.Get("/memory/recall/search", s.handleSearchRecall)
	app.Get("/memory/archival/search", s.handleSearchArchival)
	app.Post("/memory/archival", s.handleStoreArchival)
	app.Delete("/memory/archival/:id", s.handleDeleteArchival)

	return s
}

// Mount attaches an HTTP handler (e.g. the MCP server) under the given prefix.
func (s *Server) Mount(prefix string, handler http.Handler) {
	s.app.All(prefix+"/*", adaptor.HTTPHandler(handler))
	s.app.All(prefix, adaptor.HTTPHandler(handler))
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
