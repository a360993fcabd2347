// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validate is called by Load; errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"

	"github.com/okian/simbot/internal/domain/model"
)

// Modes and scheduler strategies.
const (
	ModeServe = "serve"
	ModeRun   = "run"

	SchedulerLocal  = "local"
	SchedulerRemote = "remote"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// Mode is serve (HTTP service) or run (one guild run, report on stdout).
	Mode string `koanf:"mode"`

	// Guild run parameters.
	Guild          string `koanf:"guild"`
	Realm          string `koanf:"realm"`
	Region         string `koanf:"region"`
	RaidDifficulty string `koanf:"raid_difficulty"`
	Locale         string `koanf:"locale"`
	MaxLevel       int    `koanf:"max_level"`
	WeeksToExamine int    `koanf:"weeks_to_examine"`

	// Simulator.
	SimIterations int    `koanf:"sim_iterations"`
	SimTimeoutSec int    `koanf:"sim_timeout_sec"`
	SimcPath      string `koanf:"simc_path"`
	SimStderr     bool   `koanf:"sim_stderr"`

	// Scheduler selects local or remote execution.
	Scheduler      string `koanf:"scheduler"`
	WorkerCount    int    `koanf:"worker_count"`
	RemoteEndpoint string `koanf:"remote_endpoint"`
	RemoteMaxConns int    `koanf:"remote_max_conns"`

	// EventBuffer bounds the progress event channel of a run.
	EventBuffer int `koanf:"event_buffer"`

	// Upstream services.
	BattlenetURL    string `koanf:"battlenet_url"`
	BattlenetKey    string `koanf:"battlenet_key"`
	WarcraftlogsURL string `koanf:"warcraftlogs_url"`
	WarcraftlogsKey string `koanf:"warcraftlogs_key"`
	BnetMaxCallsSec int    `koanf:"bnet_max_calls_sec"`
	BnetMaxCallsHr  int    `koanf:"bnet_max_calls_hr"`
	WCLMaxCallsSec  int    `koanf:"wcl_max_calls_sec"`
	WCLMaxCallsHr   int    `koanf:"wcl_max_calls_hr"`
	HTTPTimeoutSec  int    `koanf:"http_timeout_sec"`

	// Optional NATS upstream for progress events. Empty URL disables it.
	NATSURL     string `koanf:"nats_url"`
	NATSSubject string `koanf:"nats_subject"`

	// BossProfiles maps boss names to simulator fight profiles.
	BossProfiles map[string]string `koanf:"boss_profiles"`
	// DefaultFightProfile is used for bosses missing from BossProfiles.
	DefaultFightProfile string `koanf:"default_fight_profile"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Mode:                ModeServe,
		Region:              string(model.RegionUS),
		RaidDifficulty:      string(model.DifficultyHeroic),
		Locale:              "en_US",
		MaxLevel:            110,
		WeeksToExamine:      3,
		SimIterations:       100,
		SimTimeoutSec:       5,
		SimcPath:            "/usr/local/bin/simc",
		Scheduler:           SchedulerLocal,
		WorkerCount:         runtime.NumCPU(),
		RemoteMaxConns:      32,
		EventBuffer:         256,
		BattlenetURL:        "https://us.api.battle.net",
		WarcraftlogsURL:     "https://www.warcraftlogs.com:443/v1",
		BnetMaxCallsSec:     100,
		BnetMaxCallsHr:      36000,
		WCLMaxCallsSec:      5,
		WCLMaxCallsHr:       3600,
		HTTPTimeoutSec:      30,
		NATSSubject:         "simbot.progress",
		BossProfiles:        map[string]string{},
		DefaultFightProfile: "Patchwerk",
	}
}

// Validate checks the fields a run depends on.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.Mode != ModeServe && c.Mode != ModeRun {
		return fmt.Errorf("%w: mode must be %q or %q, got %q", ErrInvalidConfig, ModeServe, ModeRun, c.Mode)
	}
	if _, err := model.ParseRegion(c.Region); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := model.ParseDifficulty(c.RaidDifficulty); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.SimIterations <= 0 {
		return fmt.Errorf("%w: sim_iterations must be positive", ErrInvalidConfig)
	}
	if c.SimTimeoutSec <= 0 {
		return fmt.Errorf("%w: sim_timeout_sec must be positive", ErrInvalidConfig)
	}
	if c.WeeksToExamine <= 0 {
		return fmt.Errorf("%w: weeks_to_examine must be positive", ErrInvalidConfig)
	}
	switch c.Scheduler {
	case SchedulerLocal:
	case SchedulerRemote:
		if c.RemoteEndpoint == "" {
			return fmt.Errorf("%w: remote scheduler requires remote_endpoint", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: scheduler must be %q or %q, got %q", ErrInvalidConfig, SchedulerLocal, SchedulerRemote, c.Scheduler)
	}
	if c.Mode == ModeRun && (c.Guild == "" || c.Realm == "") {
		return fmt.Errorf("%w: run mode requires guild and realm", ErrInvalidConfig)
	}
	return nil
}

// FightProfile returns the configured profile for boss, or the default.
func (c *Config) FightProfile(boss string) string {
	if p, ok := c.BossProfiles[boss]; ok && p != "" {
		return p
	}
	return c.DefaultFightProfile
}
