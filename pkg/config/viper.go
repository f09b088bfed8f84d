package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/engramlabs/engram/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the ENGRAM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound by the calling command)
//  2. Environment variables (ENGRAM_API_LISTEN, ENGRAM_ENGINE_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: ENGRAM_STORAGE_SQLITE_PATH, ENGRAM_AGENT_TIMEZONE, etc.
	v.SetEnvPrefix("ENGRAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)

	// Engine
	v.SetDefault("engine.provider", d.Engine.Provider)
	v.SetDefault("engine.target", d.Engine.Target)
	v.SetDefault("engine.model", d.Engine.Model)
	v.SetDefault("engine.api_key_env", d.Engine.APIKeyEnv)

	// Agent
	v.SetDefault("agent.timezone", d.Agent.Timezone)
	v.SetDefault("agent.daily_ceiling_usd", d.Agent.DailyCeilingUSD)
	v.SetDefault("agent.max_turns", d.Agent.MaxTurns)
	v.SetDefault("agent.loop_window", d.Agent.LoopWindow)
	v.SetDefault("agent.user_recall_limit", d.Agent.UserRecallLimit)
	v.SetDefault("agent.assistant_recall_limit", d.Agent.AssistantRecallLimit)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
