// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/engramlabs/engram/cmd/engram/config"
	initcmder "github.com/engramlabs/engram/cmd/engram/init"
	invokecmder "github.com/engramlabs/engram/cmd/engram/invoke"
	memorycmder "github.com/engramlabs/engram/cmd/engram/memory"
	servecmder "github.com/engramlabs/engram/cmd/engram/serve"
	versioncmder "github.com/engramlabs/engram/cmd/engram/version"
)

const engramLongDesc string = `Engram is a conversational agent with persistent, tiered memory.

Run one agent turn:
  engram invoke "what did we decide about the schema?"

Run the HTTP and MCP servers:
  engram serve

Inspect and curate memory:
  engram memory search "postgres"
  engram memory store "the staging db lives on host db-2"`

const engramShortDesc string = "Engram - an agent that remembers"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .engram/ directory location")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(invokecmder.NewInvokeCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(memorycmder.NewMemoryCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
