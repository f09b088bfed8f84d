package config

const (
	defaultEngineProvider = "anthropic"
	defaultEngineTarget   = "https://api.anthropic.com"
	defaultEngineModel    = "claude-sonnet-4-5"
	defaultAPIKeyEnv      = "ANTHROPIC_API_KEY"

	defaultTimezone             = "UTC"
	defaultDailyCeilingUSD      = 20.0
	defaultMaxTurns             = 30
	defaultLoopWindow           = 3
	defaultUserRecallLimit      = 500
	defaultAssistantRecallLimit = 1000

	defaultAPIListen = ":8082"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "engram.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Engine: EngineConfig{
			Provider:  defaultEngineProvider,
			Target:    defaultEngineTarget,
			Model:     defaultEngineModel,
			APIKeyEnv: defaultAPIKeyEnv,
		},
		Agent: AgentConfig{
			Timezone:             defaultTimezone,
			DailyCeilingUSD:      defaultDailyCeilingUSD,
			MaxTurns:             defaultMaxTurns,
			LoopWindow:           defaultLoopWindow,
			UserRecallLimit:      defaultUserRecallLimit,
			AssistantRecallLimit: defaultAssistantRecallLimit,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
