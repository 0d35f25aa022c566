// Package config provides the loader for the scoring engine's
// configuration (spec §6 "Configuration (recognized options)").
//
// Grounded on the teacher's pkg/config.Load: github.com/spf13/viper reading
// a YAML file plus environment overrides, unmarshaled via mapstructure
// tags into a typed struct.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"trustwotd/internal/errs"
)

// Version is the daemon's semantic version, printed by `trustwotd version`.
const Version = "v0.1.0"

// Config is the unified configuration recognized by the engine (spec §6).
// Unknown keys in the source file/environment are ignored with a warning
// (applied by Load, not by viper itself).
type Config struct {
	DefaultSourcePubkey           string   `mapstructure:"defaultSourcePubkey"`
	DatabasePath                  string   `mapstructure:"databasePath"`
	NostrRelays                   []string `mapstructure:"nostrRelays"`
	ServerSecretKey               string   `mapstructure:"serverSecretKey"`
	ServerRelays                  []string `mapstructure:"serverRelays"`
	DecayFactor                   float64  `mapstructure:"decayFactor"`
	CacheTTLSeconds               int      `mapstructure:"cacheTtlSeconds"`
	NumberOfHops                  int      `mapstructure:"numberOfHops"`
	RateLimitTokens                int     `mapstructure:"rateLimitTokens"`
	RateLimitRefillRate            int     `mapstructure:"rateLimitRefillRate"`
	WeightingScheme                string  `mapstructure:"weightingScheme"`
	SyncIntervalSeconds            int     `mapstructure:"syncInterval"`
	CleanupIntervalSeconds         int     `mapstructure:"cleanupInterval"`
	ValidationSyncIntervalSeconds  int     `mapstructure:"validationSyncInterval"`
}

// recognizedKeys enumerates the option names spec §6 lists, used to warn on
// anything else present in the source.
var recognizedKeys = map[string]struct{}{
	"defaultsourcepubkey":    {},
	"databasepath":           {},
	"nostrrelays":            {},
	"serversecretkey":        {},
	"serverrelays":           {},
	"decayfactor":            {},
	"cachettlseconds":        {},
	"numberofhops":           {},
	"ratelimittokens":        {},
	"ratelimitrefillrate":    {},
	"weightingscheme":        {},
	"syncinterval":           {},
	"cleanupinterval":        {},
	"validationsyncinterval": {},
}

func defaults() Config {
	return Config{
		DecayFactor:            0.1,
		CacheTTLSeconds:        604800,
		NumberOfHops:           1,
		RateLimitTokens:        10,
		RateLimitRefillRate:    200,
		SyncIntervalSeconds:    300,
		CleanupIntervalSeconds: 3600,
		ValidationSyncIntervalSeconds: 900,
	}
}

// Loader wraps a viper instance so callers can inject config paths in
// tests without mutating global state.
type Loader struct {
	v *viper.Viper
}

// NewLoader constructs a Loader that reads configFile (if non-empty) plus
// environment variables prefixed TRUSTWOTD_ (spec's external env-loader
// contract: the loader itself is out of scope, but the recognized option
// set and their defaults are this package's responsibility).
func NewLoader(configFile string) *Loader {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	v.SetEnvPrefix("TRUSTWOTD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return &Loader{v: v}
}

// Load reads the configured file (if any), applies defaults, and validates
// the required fields (spec §6: defaultSourcePubkey and serverSecretKey are
// required).
func (l *Loader) Load() (Config, []string, error) {
	cfg := defaults()

	if l.v.ConfigFileUsed() != "" || l.v.GetString("config") != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return Config{}, nil, errs.Wrap(errs.InvalidInput, err, "read configuration file")
		}
	} else {
		_ = l.v.ReadInConfig() // best-effort; absence of a config file is not an error
	}

	var warnings []string
	for _, key := range l.v.AllKeys() {
		if _, ok := recognizedKeys[key]; !ok {
			warnings = append(warnings, fmt.Sprintf("unrecognized configuration key %q ignored", key))
		}
	}

	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, warnings, errs.Wrap(errs.InvalidInput, err, "unmarshal configuration")
	}

	if err := validate(cfg); err != nil {
		return Config{}, warnings, err
	}
	return cfg, warnings, nil
}

func validate(cfg Config) error {
	if cfg.DefaultSourcePubkey == "" {
		return errs.New(errs.InvalidInput, "defaultSourcePubkey is required")
	}
	if cfg.ServerSecretKey == "" {
		return errs.New(errs.InvalidInput, "serverSecretKey is required")
	}
	if len(cfg.NostrRelays) == 0 {
		return errs.New(errs.InvalidInput, "nostrRelays must be a non-empty list")
	}
	if cfg.DecayFactor <= 0 {
		return errs.New(errs.InvalidInput, "decayFactor must be positive")
	}
	if cfg.CacheTTLSeconds <= 0 {
		return errs.New(errs.InvalidInput, "cacheTtlSeconds must be positive")
	}
	if cfg.NumberOfHops < 0 || cfg.NumberOfHops > 5 {
		return errs.New(errs.InvalidInput, "numberOfHops must be in [0,5]")
	}
	if cfg.RateLimitTokens <= 0 {
		return errs.New(errs.InvalidInput, "rateLimitTokens must be positive")
	}
	if cfg.RateLimitRefillRate <= 0 {
		return errs.New(errs.InvalidInput, "rateLimitRefillRate must be positive")
	}
	return nil
}
