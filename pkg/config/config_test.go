package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Configer", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).NotTo(BeNil())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Version).To(Equal(defaults.Version))
			Expect(cfg.Engine.Provider).To(Equal(defaults.Engine.Provider))
			Expect(cfg.Engine.Model).To(Equal(defaults.Engine.Model))
			Expect(cfg.Agent.Timezone).To(Equal(defaults.Agent.Timezone))
			Expect(cfg.Agent.DailyCeilingUSD).To(Equal(defaults.Agent.DailyCeilingUSD))
			Expect(cfg.Agent.MaxTurns).To(Equal(defaults.Agent.MaxTurns))
			Expect(cfg.Agent.LoopWindow).To(Equal(defaults.Agent.LoopWindow))
			Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
			Expect(cfg.Events.Provider).To(Equal(defaults.Events.Provider))
		})

		It("loads a valid config file and fills missing fields with defaults", func() {
			data := `version = 0

[engine]
model = "claude-opus-4-5"

[agent]
timezone = "America/New_York"
daily_ceiling_usd = 10.5
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Engine.Model).To(Equal("claude-opus-4-5"))
			Expect(cfg.Agent.Timezone).To(Equal("America/New_York"))
			Expect(cfg.Agent.DailyCeilingUSD).To(Equal(10.5))

			// Untouched fields come from the defaults.
			defaults := config.NewDefaultConfig()
			Expect(cfg.Engine.Provider).To(Equal(defaults.Engine.Provider))
			Expect(cfg.Agent.MaxTurns).To(Equal(defaults.Agent.MaxTurns))
			Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
		})
	})

	Describe("SaveConfig", func() {
		It("round-trips a config through disk", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Agent.MaxTurns = 5
			cfg.Events.Provider = "kafka"
			cfg.Events.Brokers = "localhost:9092"

			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Agent.MaxTurns).To(Equal(5))
			Expect(loaded.Events.Provider).To(Equal("kafka"))
			Expect(loaded.Events.Brokers).To(Equal("localhost:9092"))
		})

		It("rejects a nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(HaveOccurred())
		})
	})

	Describe("ParseConfigTOML", func() {
		It("rejects unsupported versions", func() {
			_, err := config.ParseConfigTOML([]byte("version = 99\n"))
			Expect(err).To(MatchError(ContainSubstring("unsupported config version")))
		})

		It("rejects malformed TOML", func() {
			_, err := config.ParseConfigTOML([]byte("not [valid"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("InitViper", func() {
		It("returns viper with defaults when no config file exists", func() {
			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).NotTo(BeNil())

			defaults := config.NewDefaultConfig()
			Expect(v.GetString("engine.provider")).To(Equal(defaults.Engine.Provider))
			Expect(v.GetString("engine.model")).To(Equal(defaults.Engine.Model))
			Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
			Expect(v.GetFloat64("agent.daily_ceiling_usd")).To(Equal(defaults.Agent.DailyCeilingUSD))
		})

		It("reads config file values over defaults", func() {
			data := `[engine]
model = "claude-opus-4-5"
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(v.GetString("engine.model")).To(Equal("claude-opus-4-5"))
			// Unset fields should still get defaults
			defaults := config.NewDefaultConfig()
			Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
		})

		It("respects environment variables with ENGRAM_ prefix", func() {
			os.Setenv("ENGRAM_ENGINE_MODEL", "claude-haiku-4-5")
			defer os.Unsetenv("ENGRAM_ENGINE_MODEL")

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(v.GetString("engine.model")).To(Equal("claude-haiku-4-5"))
		})

		It("env vars take precedence over config file values", func() {
			data := `[engine]
model = "claude-opus-4-5"
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			os.Setenv("ENGRAM_ENGINE_MODEL", "claude-haiku-4-5")
			defer os.Unsetenv("ENGRAM_ENGINE_MODEL")

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(v.GetString("engine.model")).To(Equal("claude-haiku-4-5"))
		})
	})

	Describe("config keys", func() {
		It("lists every supported dotted key", func() {
			keys := config.ValidConfigKeys()
			Expect(keys).To(ContainElements(
				"storage.sqlite_path",
				"engine.model",
				"agent.timezone",
				"agent.daily_ceiling_usd",
				"agent.max_turns",
				"agent.loop_window",
				"api.listen",
				"events.provider",
			))
		})

		It("gets and sets values by dotted key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("agent.max_turns", "12")).To(Succeed())

			value, err := c.GetConfigValue("agent.max_turns")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("12"))
		})

		It("rejects non-numeric values for numeric keys", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SetConfigValue("agent.daily_ceiling_usd", "lots")).To(HaveOccurred())
		})

		It("rejects unknown keys", func() {
			Expect(config.IsValidConfigKey("nope.nope")).To(BeFalse())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SetConfigValue("nope.nope", "x")).To(HaveOccurred())
		})
	})
})
