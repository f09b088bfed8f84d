// Package invokecmder provides the invoke command for running a single agent
// turn from the terminal.
package invokecmder

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/start"
)

type invokeCommander struct {
	chatID string
	model  string
	debug  bool

	logger *zap.Logger
}

const invokeLongDesc string = `Run one agent turn.

Sends the prompt to the reasoning engine with the agent's core memory in
context and its memory tools available. The turn is recorded in the recall
tier, and the session resumes from the conversation's previous turn when one
exists.

Examples:
  engram invoke "what am I working on?"
  engram invoke -c standup "summarize yesterday's notes"`

const invokeShortDesc string = "Run one agent turn"

func NewInvokeCmd() *cobra.Command {
	cmder := &invokeCommander{}

	cmd := &cobra.Command{
		Use:   "invoke <prompt>",
		Short: invokeShortDesc,
		Long:  invokeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")

			return cmder.run(cmd, configDir, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.chatID, "chat", "c", "default", "Conversation identifier")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Override the configured model")

	return cmd
}

func (c *invokeCommander) run(cmd *cobra.Command, configDir, prompt string) error {
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

	if c.model != "" {
		cfg.Engine.Model = c.model
	}

	system, err := start.NewSystem(cmd.Context(), cfg, start.Options{ConfigDir: configDir}, c.logger)
	if err != nil {
		return err
	}
	defer system.Close()

	fmt.Printf("\n%s%s\n\n", cliui.UserPrompt, prompt)

	turn, err := system.Orchestrator.Invoke(cmd.Context(), c.chatID, prompt)
	if err != nil {
		if turn.Text != "" {
			// A failed turn can still carry partial text worth showing.
			fmt.Printf("%s%s\n\n", cliui.AssistantPrompt, turn.Text)
		}
		fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
		return err
	}

	fmt.Printf("%s%s\n\n", cliui.AssistantPrompt, turn.Text)

	if turn.CostUSD > 0 {
		fmt.Printf("%s\n\n", cliui.CostStyle.Render(fmt.Sprintf("cost: $%.4f", turn.CostUSD)))
	}

	return nil
}
