package memorycmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/pkg/cliui"
)

const coreLongDesc string = `Show the agent's core memory blocks.

Core memory is loaded into every prompt. Blocks are edited by the agent
itself mid-turn, or over the HTTP and MCP surfaces.

Examples:
  engram memory core`

const coreShortDesc string = "Show core memory blocks"

func newCoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "core",
		Short: coreShortDesc,
		Long:  coreLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCore(cmd)
		},
	}

	return cmd
}

func runCore(cmd *cobra.Command) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	blocks, err := store.Blocks(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading core blocks: %w", err)
	}

	fmt.Println()
	for _, block := range blocks {
		fmt.Printf("  %s\n", cliui.KeyStyle.Render(block.Name))
		if block.Content == "" {
			fmt.Printf("    %s\n\n", cliui.DimStyle.Render("(empty)"))
			continue
		}
		fmt.Printf("    %s\n\n", block.Content)
	}

	return nil
}
