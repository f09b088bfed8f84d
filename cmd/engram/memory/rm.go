package memorycmder

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/pkg/cliui"
)

const rmLongDesc string = `Remove a fact from archival memory by id.

Use "engram memory search -t archival" to find ids.

Examples:
  engram memory rm 42`

const rmShortDesc string = "Remove an archival fact"

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: rmShortDesc,
		Long:  rmLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return runRm(cmd, id)
		},
	}

	return cmd
}

func runRm(cmd *cobra.Command, id int64) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	existed, err := store.DeleteArchival(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("deleting archival fact: %w", err)
	}

	if !existed {
		fmt.Printf("\n  %s No archival memory with id %d\n\n", cliui.FailMark, id)
		return nil
	}

	fmt.Printf("\n  %s Deleted archival memory %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(fmt.Sprintf("[%d]", id)),
	)
	return nil
}
