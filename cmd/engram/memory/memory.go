// Package memorycmder provides commands for inspecting and curating the
// memory tiers directly, without running an agent turn.
package memorycmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/memory/sqlite"
	"github.com/engramlabs/engram/pkg/start"
)

const memoryLongDesc string = `Inspect and curate the agent's memory.

Use subcommands to view core memory, search the recall and archival tiers,
and store or remove archival facts:
  engram memory core                  Show core memory blocks
  engram memory search <query>        Search recall memory
  engram memory search -t archival    Search archival memory
  engram memory store <content>       Store an archival fact
  engram memory rm <id>               Remove an archival fact

Examples:
  engram memory search "postgres"
  engram memory store --tags "infra db" "the staging db lives on host db-2"
  engram memory rm 42`

const memoryShortDesc string = "Inspect and curate the agent's memory"

func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: memoryShortDesc,
		Long:  memoryLongDesc,
	}

	cmd.AddCommand(newCoreCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStoreCmd())
	cmd.AddCommand(newRmCmd())

	return cmd
}

// openStore opens the memory store resolved from flags and config.
func openStore(cmd *cobra.Command) (memory.Store, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dbPath, err := start.ResolveStorePath(cfg, start.Options{ConfigDir: configDir})
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewSQLiteStore(dbPath, memory.Limits{
		UserRecall:      cfg.Agent.UserRecallLimit,
		AssistantRecall: cfg.Agent.AssistantRecallLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	if err := store.Initialize(cmd.Context()); err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing memory store: %w", err)
	}

	return store, nil
}
