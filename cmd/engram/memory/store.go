package memorycmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/pkg/cliui"
)

const storeLongDesc string = `Store a fact in archival memory.

Archival memory holds durable long-term facts the agent searches on demand.

Examples:
  engram memory store "the staging db lives on host db-2"
  engram memory store --tags "infra db" "prod failover runbook is in the wiki"`

const storeShortDesc string = "Store an archival fact"

func newStoreCmd() *cobra.Command {
	var tags string

	cmd := &cobra.Command{
		Use:   "store <content>",
		Short: storeShortDesc,
		Long:  storeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(cmd, strings.Join(args, " "), tags)
		},
	}

	cmd.Flags().StringVar(&tags, "tags", "", "Space-delimited tags")

	return cmd
}

func runStore(cmd *cobra.Command, content, tags string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.InsertArchival(cmd.Context(), content, tags, "cli")
	if err != nil {
		return fmt.Errorf("storing archival fact: %w", err)
	}

	fmt.Printf("\n  %s Stored archival memory %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(fmt.Sprintf("[%d]", entry.ID)),
	)
	return nil
}
