package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent engram configuration stored as config.toml
// in the .engram/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Engine  EngineConfig  `toml:"engine"`
	Agent   AgentConfig   `toml:"agent"`
	API     APIConfig     `toml:"api"`
	Events  EventsConfig  `toml:"events"`
}

// StorageConfig holds settings for the durable memory store.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// EngineConfig holds reasoning-engine settings.
type EngineConfig struct {
	Provider  string `toml:"provider,omitempty"`
	Target    string `toml:"target,omitempty"`
	Model     string `toml:"model,omitempty"`
	APIKeyEnv string `toml:"api_key_env,omitempty"`
}

// AgentConfig holds the orchestrator's bounds. These were magic constants in
// earlier iterations; every one of them is a named, overridable value here.
type AgentConfig struct {
	Timezone             string  `toml:"timezone,omitempty"`
	DailyCeilingUSD      float64 `toml:"daily_ceiling_usd,omitempty"`
	MaxTurns             int     `toml:"max_turns,omitempty"`
	LoopWindow           int     `toml:"loop_window,omitempty"`
	UserRecallLimit      int     `toml:"user_recall_limit,omitempty"`
	AssistantRecallLimit int     `toml:"assistant_recall_limit,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventsConfig holds turn-event publishing settings.
// Provider is "nop" or "kafka".
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"engine.provider": {
		get: func(c *Config) string { return c.Engine.Provider },
		set: func(c *Config, v string) error { c.Engine.Provider = v; return nil },
	},
	"engine.target": {
		get: func(c *Config) string { return c.Engine.Target },
		set: func(c *Config, v string) error { c.Engine.Target = v; return nil },
	},
	"engine.model": {
		get: func(c *Config) string { return c.Engine.Model },
		set: func(c *Config, v string) error { c.Engine.Model = v; return nil },
	},
	"engine.api_key_env": {
		get: func(c *Config) string { return c.Engine.APIKeyEnv },
		set: func(c *Config, v string) error { c.Engine.APIKeyEnv = v; return nil },
	},
	"agent.timezone": {
		get: func(c *Config) string { return c.Agent.Timezone },
		set: func(c *Config, v string) error { c.Agent.Timezone = v; return nil },
	},
	"agent.daily_ceiling_usd": {
		get: func(c *Config) string {
			return strconv.FormatFloat(c.Agent.DailyCeilingUSD, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for agent.daily_ceiling_usd: %w", err)
			}
			c.Agent.DailyCeilingUSD = f
			return nil
		},
	},
	"agent.max_turns": {
		get: func(c *Config) string { return strconv.Itoa(c.Agent.MaxTurns) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for agent.max_turns: %w", err)
			}
			c.Agent.MaxTurns = n
			return nil
		},
	},
	"agent.loop_window": {
		get: func(c *Config) string { return strconv.Itoa(c.Agent.LoopWindow) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for agent.loop_window: %w", err)
			}
			c.Agent.LoopWindow = n
			return nil
		},
	},
	"agent.user_recall_limit": {
		get: func(c *Config) string { return strconv.Itoa(c.Agent.UserRecallLimit) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for agent.user_recall_limit: %w", err)
			}
			c.Agent.UserRecallLimit = n
			return nil
		},
	},
	"agent.assistant_recall_limit": {
		get: func(c *Config) string { return strconv.Itoa(c.Agent.AssistantRecallLimit) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for agent.assistant_recall_limit: %w", err)
			}
			c.Agent.AssistantRecallLimit = n
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
