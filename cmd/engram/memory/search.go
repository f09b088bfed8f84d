package memorycmder

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/utils"
)

// displayWidth bounds one result line; full content stays in the store.
const displayWidth = 120

const searchLongDesc string = `Search the recall or archival memory tier.

Recall results are most recent first; archival results are best match first.

Examples:
  engram memory search "postgres"
  engram memory search -t archival "staging db"
  engram memory search -n 25 "deploy"`

const searchShortDesc string = "Search recall or archival memory"

func newSearchCmd() *cobra.Command {
	var (
		tier  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, tier, strings.Join(args, " "), limit)
		},
	}

	cmd.Flags().StringVarP(&tier, "tier", "t", "recall", "Memory tier to search (recall, archival)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")

	return cmd
}

func runSearch(cmd *cobra.Command, tier, query string, limit int) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println()

	switch tier {
	case "recall":
		entries, err := store.SearchRecall(cmd.Context(), query, limit)
		if err != nil {
			return fmt.Errorf("recall search: %w", err)
		}
		if len(entries) == 0 {
			fmt.Printf("  %s\n\n", cliui.DimStyle.Render("No results."))
			return nil
		}
		for _, e := range entries {
			fmt.Printf("  %s %s %s\n",
				cliui.DimStyle.Render(e.CreatedAt.Format(time.RFC3339)),
				cliui.KeyStyle.Render("("+e.Role+")"),
				utils.Truncate(e.Content, displayWidth),
			)
		}

	case "archival":
		entries, err := store.SearchArchival(cmd.Context(), query, limit)
		if err != nil {
			return fmt.Errorf("archival search: %w", err)
		}
		if len(entries) == 0 {
			fmt.Printf("  %s\n\n", cliui.DimStyle.Render("No results."))
			return nil
		}
		for _, e := range entries {
			line := fmt.Sprintf("  %s %s",
				cliui.KeyStyle.Render(fmt.Sprintf("[%d]", e.ID)),
				utils.Truncate(e.Content, displayWidth),
			)
			if e.Tags != "" {
				line += " " + cliui.DimStyle.Render("(tags: "+e.Tags+")")
			}
			fmt.Println(line)
		}

	default:
		return fmt.Errorf("unknown tier %q (valid tiers: recall, archival)", tier)
	}

	fmt.Println()
	return nil
}
