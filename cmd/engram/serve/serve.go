// Package servecmder provides the serve command for running the HTTP API and
// MCP servers.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/api"
	"github.com/engramlabs/engram/api/mcp"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/start"
)

type ServeCommander struct {
	listen     string
	sqlitePath string
	noMCP      bool
	debug      bool

	logger *zap.Logger
}

const serveLongDesc string = `Run the engram HTTP server.

Serves the invocation and memory-inspection API, with the MCP server mounted
at /mcp so external clients can use the memory tools directly.

Examples:
  engram serve
  engram serve --listen :9000 --sqlite ./engram.db`

const serveShortDesc string = "Run the engram HTTP and MCP servers"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")

			return cmder.run(cmd, configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for the API server to listen on")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the SQLite memory store")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Disable the MCP server")

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command, configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if c.listen != "" {
		cfg.API.Listen = c.listen
	}

	system, err := start.NewSystem(cmd.Context(), cfg, start.Options{
		ConfigDir:  configDir,
		SQLitePath: c.sqlitePath,
	}, c.logger)
	if err != nil {
		return err
	}
	defer system.Close()

	apiServer := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
	}, system.Store, system.Orchestrator, c.logger)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Store:  system.Store,
		Noop:   c.noMCP,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	if !c.noMCP {
		apiServer.Mount("/mcp", mcpServer.Handler())
	}

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}
