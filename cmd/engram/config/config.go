// Package configcmder provides the config command for managing persistent
// engram configuration stored in the .engram/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent engram configuration.

Configuration is stored as config.toml in the .engram/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path,
  engine.provider, engine.target, engine.model, engine.api_key_env,
  agent.timezone, agent.daily_ceiling_usd, agent.max_turns,
  agent.loop_window, agent.user_recall_limit, agent.assistant_recall_limit,
  api.listen,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  engram config set <key> <value>   Set a configuration value
  engram config get <key>           Get a configuration value
  engram config list                List all configuration values

Examples:
  engram config set agent.timezone America/New_York
  engram config set agent.daily_ceiling_usd 10
  engram config get engine.model
  engram config list`

const configShortDesc string = "Manage persistent engram configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
