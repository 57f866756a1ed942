package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every configuration environment variable,
// e.g. SIMPLEGYM_PARALLEL_ACTOR and SIMPLEGYM_IPC_TIMEOUT.
const EnvPrefix = "SIMPLEGYM"

// Defaults for the server configuration.
const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8000
	DefaultParallelActor = 8
	DefaultIPCTimeout    = 120.0 // seconds
	DefaultWrapper       = "mock"
)

// Config holds the server configuration, resolved from flags, environment
// variables and defaults (in that precedence order).
type Config struct {
	Host          string
	Port          int
	ParallelActor int
	IPCTimeout    time.Duration
	Wrapper       string
	WrapperConfig string
	Embedded      bool
}

// Load resolves the configuration. flags may be nil; when set, explicit
// flags take precedence over SIMPLEGYM_* environment variables.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("parallel-actor", DefaultParallelActor)
	v.SetDefault("ipc-timeout", DefaultIPCTimeout)
	v.SetDefault("wrapper", DefaultWrapper)
	v.SetDefault("wrapper-config", "")
	v.SetDefault("embedded", false)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	cfg := &Config{
		Host:          v.GetString("host"),
		Port:          v.GetInt("port"),
		ParallelActor: v.GetInt("parallel-actor"),
		IPCTimeout:    time.Duration(v.GetFloat64("ipc-timeout") * float64(time.Second)),
		Wrapper:       v.GetString("wrapper"),
		WrapperConfig: v.GetString("wrapper-config"),
		Embedded:      v.GetBool("embedded"),
	}
	return cfg, cfg.Validate()
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if c.ParallelActor <= 0 {
		return fmt.Errorf("parallel-actor must be positive, got %d", c.ParallelActor)
	}
	if c.IPCTimeout <= 0 {
		return fmt.Errorf("ipc-timeout must be positive, got %s", c.IPCTimeout)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Wrapper == "" {
		return fmt.Errorf("wrapper must not be empty")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
