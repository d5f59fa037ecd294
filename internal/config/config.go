package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/logger"
)

// DefaultListen is the loopback address of the control API. The hosting
// desktop shell talks to gantry here; it is never exposed externally.
const DefaultListen = "127.0.0.1:9180"

// DefaultBasePath prefixes all control API routes.
const DefaultBasePath = "/api"

// backendBinary is the file name of the bundled backend executable.
const backendBinary = "gantry-backend"

// Config is the top-level TOML structure.
//
//	[backend]  executable, port window, readiness markers, timeouts
//	[log]      gantry's own log level plus captured-output destinations
//	[server]   control API listen address
//	[history]  run history sink DSN
//	[daemon]   lock file for single-instance enforcement
type Config struct {
	Backend backend.Spec  `toml:"backend" mapstructure:"backend"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Daemon  DaemonConfig  `toml:"daemon" mapstructure:"daemon"`
}

type LogConfig struct {
	Level         string `toml:"level" mapstructure:"level"`
	logger.Config `mapstructure:",squash"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

type DaemonConfig struct {
	LockFile string `toml:"lock_file" mapstructure:"lock_file"`
}

// Load reads a TOML config file and applies defaults. An empty path returns
// the pure defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.Name == "" {
		c.Backend.Name = "backend"
	}
	if c.Backend.Path == "" {
		path, packaged := ResolveBackendPath()
		c.Backend.Path = path
		c.Backend.Packaged = packaged
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if c.Backend.Log.Dir == "" {
		c.Backend.Log = c.Log.Config
	}
	if c.Daemon.LockFile == "" {
		c.Daemon.LockFile = filepath.Join(os.TempDir(), "gantry.lock")
	}
	if c.History.Enabled && c.History.DSN == "" {
		c.History.DSN = filepath.Join(os.TempDir(), "gantry-runs.db")
	}
}

// ResolveBackendPath locates the backend executable. A packaged install
// carries it under resources/backend next to the gantry binary; a development
// checkout builds it into dist/backend under the working directory. The
// packaged candidate wins when both exist. When neither exists the packaged
// path is returned anyway so the eventual NotFoundError names the expected
// location with the right remediation hint.
func ResolveBackendPath() (string, bool) {
	bin := backendBinary
	if runtime.GOOS == "windows" {
		bin += ".exe"
	}
	var packagedPath string
	if exe, err := os.Executable(); err == nil {
		packagedPath = filepath.Join(filepath.Dir(exe), "resources", "backend", bin)
		if _, err := os.Stat(packagedPath); err == nil {
			return packagedPath, true
		}
	}
	devPath := filepath.Join("dist", "backend", bin)
	if _, err := os.Stat(devPath); err == nil {
		return devPath, false
	}
	if packagedPath != "" {
		return packagedPath, true
	}
	return devPath, false
}
