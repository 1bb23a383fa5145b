package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "MNEMO"
	defaultHTTPAddress   = "127.0.0.1:8750"
	defaultDatabasePath  = "mnemo.db"
	defaultLogLevel      = "info"
	defaultRemoteTimeout = 15 * time.Second
)

// AppConfig captures runtime configuration for the retention core.
type AppConfig struct {
	HTTPAddress         string
	DatabasePath        string
	LogLevel            string
	RemoteBaseURL       string
	RemoteSigningSecret string
	RemoteTimeout       time.Duration
}

// SyncEnabled reports whether a remote store has been configured. Without
// one, the engine operates purely locally.
func (c AppConfig) SyncEnabled() bool {
	return strings.TrimSpace(c.RemoteBaseURL) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("remote.base_url", "")
	configViper.SetDefault("remote.timeout", defaultRemoteTimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		RemoteBaseURL:       configViper.GetString("remote.base_url"),
		RemoteSigningSecret: configViper.GetString("remote.signing_secret"),
		RemoteTimeout:       configViper.GetDuration("remote.timeout"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SyncEnabled() && strings.TrimSpace(c.RemoteSigningSecret) == "" {
		return fmt.Errorf("remote.signing_secret is required when remote.base_url is set")
	}
	return nil
}
