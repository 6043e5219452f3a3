package config

import (
	"fmt"
	"os"
	"time"

	"wordfall-service/internal/app"
	"wordfall-service/internal/game"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. WORDFALL_REDIS_ADDR.
const EnvPrefix = "wordfall"

type Config struct {
	Server struct {
		Port string `yaml:"port" envconfig:"PORT"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" envconfig:"ADDR"`
		Password string `yaml:"password" envconfig:"PASSWORD"`
		DB       int    `yaml:"db" envconfig:"DB"`
		TTL      string `yaml:"ttl" envconfig:"TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" envconfig:"URL"`
	} `yaml:"postgres"`
	Bank struct {
		ID   string `yaml:"id" envconfig:"ID"`
		File string `yaml:"file" envconfig:"FILE"`
		TTL  string `yaml:"ttl" envconfig:"TTL"`
	} `yaml:"bank"`
	Game struct {
		MaxLives            int    `yaml:"max_lives" envconfig:"MAX_LIVES"`
		MaxActive           int    `yaml:"max_active" envconfig:"MAX_ACTIVE"`
		FailureCap          int    `yaml:"failure_cap" envconfig:"FAILURE_CAP"`
		FallDuration        string `yaml:"fall_duration" envconfig:"FALL_DURATION"`
		SpawnInterval       string `yaml:"spawn_interval" envconfig:"SPAWN_INTERVAL"`
		TickInterval        string `yaml:"tick_interval" envconfig:"TICK_INTERVAL"`
		RetryLost           bool   `yaml:"retry_lost" envconfig:"RETRY_LOST"`
		ArmOnFirstSelection bool   `yaml:"arm_on_first_selection" envconfig:"ARM_ON_FIRST_SELECTION"`
		Schedule            struct {
			Base string `yaml:"base" envconfig:"BASE"`
			Step string `yaml:"step" envconfig:"STEP"`
			Min  string `yaml:"min" envconfig:"MIN"`
		} `yaml:"schedule"`
		SummaryCacheSize int `yaml:"summary_cache_size" envconfig:"SUMMARY_CACHE_SIZE"`
	} `yaml:"game"`
	Log struct {
		Debug bool `yaml:"debug" envconfig:"DEBUG"`
	} `yaml:"log"`
}

// Load reads YAML config from path and applies WORDFALL_* environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env config: %w", err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// SessionConfig converts the game section into session rules. Unset values
// keep the defaults.
func (c Config) SessionConfig() app.SessionConfig {
	def := app.DefaultSessionConfig()
	g := c.Game

	sc := def
	if g.MaxLives > 0 {
		sc.MaxLives = g.MaxLives
	}
	if g.MaxActive > 0 {
		sc.MaxActive = g.MaxActive
	}
	if g.FailureCap > 0 {
		sc.FailureCap = g.FailureCap
	}
	sc.FallDuration = TTLDuration(g.FallDuration, def.FallDuration)
	sc.SpawnInterval = TTLDuration(g.SpawnInterval, def.SpawnInterval)
	sc.RetryLost = g.RetryLost
	sc.ArmOnFirstSelection = g.ArmOnFirstSelection
	sc.Schedule = game.TimerSchedule{
		Base: TTLDuration(g.Schedule.Base, def.Schedule.Base),
		Step: TTLDuration(g.Schedule.Step, def.Schedule.Step),
		Min:  TTLDuration(g.Schedule.Min, def.Schedule.Min),
	}
	return sc
}

// TickInterval is how often session runners advance the clock.
func (c Config) TickInterval() time.Duration {
	return TTLDuration(c.Game.TickInterval, app.DefaultTickInterval)
}

// SummaryCacheSize bounds the ended-session summary cache.
func (c Config) SummaryCacheSize() int {
	if c.Game.SummaryCacheSize > 0 {
		return c.Game.SummaryCacheSize
	}
	return 1024
}
