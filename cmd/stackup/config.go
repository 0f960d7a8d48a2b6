package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config is the stackup configuration file, keyed as in STACKUP_* variables
// with "." replaced by "_".
type Config struct {
	Project      ProjectConfig      `mapstructure:"project"`
	Docker       DockerConfig       `mapstructure:"docker"`
	Log          LogConfig          `mapstructure:"log"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Status       StatusConfig       `mapstructure:"status"`
}

// ProjectConfig names the project and locates its topology.
type ProjectConfig struct {
	// Name prefixes the network and containers. Empty uses the topology's name.
	Name string `mapstructure:"name"`
	// File is a compose document. Empty uses the embedded suite topology.
	File string `mapstructure:"file"`
}

// DockerConfig selects the daemon. Empty Host uses DOCKER_HOST or the default socket.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig selects the log level (debug, info, warn, error) and format (text, json).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OrchestratorConfig bounds startup and shutdown.
type OrchestratorConfig struct {
	MaxConcurrentStarts int           `mapstructure:"max_concurrent_starts"`
	ShutdownGrace       time.Duration `mapstructure:"shutdown_grace"`
	StopTimeout         time.Duration `mapstructure:"stop_timeout"`
	LogTailLines        int           `mapstructure:"log_tail_lines"`
}

// StatusConfig configures the status server run by a foreground up.
type StatusConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `mapstructure:"addr"`
}

// defaults are the values of every key before the file and environment.
var defaults = map[string]any{
	"project.name":                       "",
	"project.file":                       "",
	"docker.host":                        "",
	"log.level":                          "info",
	"log.format":                         "text",
	"orchestrator.max_concurrent_starts": 4,
	"orchestrator.shutdown_grace":        "30s",
	"orchestrator.stop_timeout":          "10s",
	"orchestrator.log_tail_lines":        20,
	"status.addr":                        "",
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig layers defaults, the optional file at configPath and STACKUP_*
// environment variables, in increasing precedence. A missing file is not an
// error; one that does not parse is.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		var parseErr viper.ConfigParseError
		if err := v.ReadInConfig(); errors.As(err, &parseErr) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	v.SetEnvPrefix("STACKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger builds the process logger. Logs go to w so that command output
// on stdout stays clean. An unknown level logs at info.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	name := strings.ToLower(cfg.Log.Level)
	if name == "warning" {
		name = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
