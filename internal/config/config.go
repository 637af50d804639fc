// Package config loads the orchestration core's configuration via viper,
// mirroring the teacher's nested mapstructure-tagged Config shape, narrowed
// to the knobs this core actually owns (no server/auth/docker sections —
// those belong to the out-of-scope transport/auth layers).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kandev/discussord/internal/logger"
)

// NATSConfig configures the NATS-backed event bus adapter.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"client_id"`
	MaxReconnects int    `mapstructure:"max_reconnects"`
}

// TriggerConfig configures the Participation Trigger's sweep cadence and
// rate limits (spec §4.9).
type TriggerConfig struct {
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	HealthCheckInterval  time.Duration `mapstructure:"health_check_interval"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval"`
	DiscussionRateLimit  time.Duration `mapstructure:"discussion_rate_limit"`
	AgentDedupWindow     time.Duration `mapstructure:"agent_dedup_window"`
	RetriggerDampener    time.Duration `mapstructure:"retrigger_dampener"`
	InactivityThreshold  time.Duration `mapstructure:"inactivity_threshold"`
	RecentContextLimit   int           `mapstructure:"recent_context_limit"`
}

// CacheConfig configures the Discussion Cache's TTL eviction sweep.
type CacheConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// OrchestratorConfig configures operation-lock orphan sweeping.
type OrchestratorConfig struct {
	OperationLockTimeout time.Duration `mapstructure:"operation_lock_timeout"`
	OperationLockSweep   time.Duration `mapstructure:"operation_lock_sweep"`
}

// Config is the orchestration core's top-level configuration.
type Config struct {
	Logging      logger.Config       `mapstructure:"logging"`
	NATS         NATSConfig          `mapstructure:"nats"`
	Trigger      TriggerConfig       `mapstructure:"trigger"`
	Cache        CacheConfig         `mapstructure:"cache"`
	Orchestrator OrchestratorConfig  `mapstructure:"orchestrator"`
}

// Default returns the spec-derived default configuration.
func Default() Config {
	return Config{
		Logging: logger.Config{Level: "info", Format: "console"},
		NATS: NATSConfig{
			// Empty by default: cmd/discussiond treats an unset URL as "use the
			// in-memory bus", so the demo binary runs with no external
			// dependencies unless DISCUSSORD_NATS_URL is set.
			URL:           "",
			ClientID:      "discussord",
			MaxReconnects: -1,
		},
		Trigger: TriggerConfig{
			SweepInterval:       5 * time.Second,
			HealthCheckInterval: 30 * time.Second,
			CleanupInterval:     10 * time.Minute,
			DiscussionRateLimit: 30 * time.Second,
			AgentDedupWindow:    2 * time.Minute,
			RetriggerDampener:   5 * time.Second,
			InactivityThreshold: 10 * time.Minute,
			RecentContextLimit:  20,
		},
		Cache: CacheConfig{
			TTL:           time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			OperationLockTimeout: 5 * time.Minute,
			OperationLockSweep:   time.Minute,
		},
	}
}

// Load reads configuration from an optional file and DISCUSSORD_-prefixed
// environment variables, overlaying onto Default().
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("discussord")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows, so bind every key for
	// its environment variable to be picked up without a config file.
	for _, key := range []string{
		"logging.level", "logging.format",
		"nats.url", "nats.client_id", "nats.max_reconnects",
		"trigger.sweep_interval", "trigger.health_check_interval", "trigger.cleanup_interval",
		"trigger.discussion_rate_limit", "trigger.agent_dedup_window", "trigger.retrigger_dampener",
		"trigger.inactivity_threshold", "trigger.recent_context_limit",
		"cache.ttl", "cache.sweep_interval",
		"orchestrator.operation_lock_timeout", "orchestrator.operation_lock_sweep",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
