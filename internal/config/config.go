package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/donuts/internal/commands"
	"github.com/danmuck/donuts/internal/transport"
	"github.com/pelletier/go-toml/v2"
)

// HostConfig is the donutsd config file.
type HostConfig struct {
	ID                 string   `toml:"id"`
	Address            string   `toml:"address"`
	AdminListen        string   `toml:"admin_listen"`
	CorsOrigins        []string `toml:"cors_origins"`
	Heartbeat          string   `toml:"heartbeat"`
	HeartbeatMS        *int64   `toml:"heartbeat_ms"`
	Commands           []string `toml:"commands"`
	StrictRegistration *bool    `toml:"strict_registration"`
	KVPath             string   `toml:"kv_path"`
	MaxLineBytes       int      `toml:"max_line_bytes"`
}

// ClientConfig is the optional donuts client config file.
type ClientConfig struct {
	Addr               string `toml:"addr"`
	EnvPrefix          string `toml:"env_prefix"`
	ConnectTimeout     string `toml:"connect_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

func LoadHostConfig(path string) (HostConfig, error) {
	var cfg HostConfig
	if err := loadToml(path, &cfg); err != nil {
		return HostConfig{}, err
	}
	if cfg.ID == "" {
		cfg.ID = "donuts.local"
	}
	if cfg.Heartbeat == "" {
		cfg.Heartbeat = "30s"
	}
	if err := ValidateHostConfig(cfg); err != nil {
		return HostConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// loadToml rejects keys the target does not declare.
func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateHostConfig(cfg HostConfig) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("host config missing id")
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("host config missing address")
	}
	if _, err := transport.ParseAddress(cfg.Address); err != nil {
		return fmt.Errorf("host config address: %w", err)
	}
	d, err := time.ParseDuration(strings.TrimSpace(cfg.Heartbeat))
	if err != nil {
		return fmt.Errorf("host config heartbeat: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("host config heartbeat must be positive")
	}
	if cfg.HeartbeatMS != nil && *cfg.HeartbeatMS <= 0 {
		return fmt.Errorf("host config heartbeat_ms must be positive")
	}
	for i, id := range cfg.Commands {
		switch strings.TrimSpace(id) {
		case commands.SetCore, commands.SetWorkspace, commands.SetKV, "none":
		default:
			return fmt.Errorf("commands[%d] unknown set %q", i, id)
		}
	}
	if cfg.MaxLineBytes < 0 {
		return fmt.Errorf("host config max_line_bytes must not be negative")
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Addr) != "" {
		if _, err := transport.ParseAddress(cfg.Addr); err != nil {
			return fmt.Errorf("client config addr: %w", err)
		}
	}
	if strings.TrimSpace(cfg.ConnectTimeout) != "" {
		if _, err := time.ParseDuration(strings.TrimSpace(cfg.ConnectTimeout)); err != nil {
			return fmt.Errorf("client config connect_timeout: %w", err)
		}
	}
	if cfg.MaxConnectAttempts < 0 {
		return fmt.Errorf("client config max_connect_attempts must not be negative")
	}
	return nil
}
