// Package initcmder provides the init command for initializing a local
// .engram directory with a config file and an empty memory store.
package initcmder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/memory/sqlite"
)

const (
	dirName = ".engram"
	dbName  = "engram.db"
)

const initLongDesc string = `Initialize a new .engram/ directory in the current working directory.

Creates a local .engram/ directory holding the config file and the memory
store. A local directory takes precedence over the default ~/.engram/
directory, which is useful for keeping separate agent memory per project.

Examples:
  engram init`

const initShortDesc string = "Initialize a local .engram/ directory"

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context())
		},
	}

	return cmd
}

func runInit(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	fmt.Println()

	err = cliui.Step(os.Stdout, "Creating "+dirName+"/ directory", func() error {
		return os.MkdirAll(dir, 0o755)
	})
	if err != nil {
		return fmt.Errorf("creating %s directory: %w", dirName, err)
	}

	err = cliui.Step(os.Stdout, "Writing default config", func() error {
		cfger, err := config.NewConfiger(dir)
		if err != nil {
			return err
		}

		if _, statErr := os.Stat(cfger.GetTarget()); statErr == nil {
			// Existing config is never overwritten.
			return nil
		}

		return cfger.SaveConfig(config.NewDefaultConfig())
	})
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	err = cliui.Step(os.Stdout, "Initializing memory store", func() error {
		store, err := sqlite.NewSQLiteStore(filepath.Join(dir, dbName), memory.DefaultLimits())
		if err != nil {
			return err
		}
		defer store.Close()

		return store.Initialize(ctx)
	})
	if err != nil {
		return fmt.Errorf("initializing memory store: %w", err)
	}

	fmt.Printf("\n  %s Initialized %s\n\n", cliui.SuccessMark, cliui.ValueStyle.Render(dir))
	return nil
}
