package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/donuts/internal/host"
)

type fileConfig struct {
	ID                 string   `toml:"id"`
	Address            string   `toml:"address"`
	AdminListen        string   `toml:"admin_listen"`
	CorsOrigins        []string `toml:"cors_origins"`
	Heartbeat          string   `toml:"heartbeat"`
	HeartbeatMS        int64    `toml:"heartbeat_ms"`
	Commands           []string `toml:"commands"`
	StrictRegistration bool     `toml:"strict_registration"`
	KVPath             string   `toml:"kv_path"`
	MaxLineBytes       int      `toml:"max_line_bytes"`
}

// loadServiceConfig overlays the keys present in path onto the defaults.
func loadServiceConfig(path string) (host.ServiceConfig, error) {
	cfg := host.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return host.ServiceConfig{}, fmt.Errorf("load donutsd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return host.ServiceConfig{}, fmt.Errorf("load donutsd config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.HostID = id
		}
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("admin_listen") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListen)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return host.ServiceConfig{}, fmt.Errorf("parse heartbeat: %w", err)
		}
		cfg.HeartbeatInterval = d
	}
	if meta.IsDefined("heartbeat_ms") {
		cfg.HeartbeatInterval = time.Duration(raw.HeartbeatMS) * time.Millisecond
	}
	if meta.IsDefined("commands") {
		cfg.CommandSets = normalizeList(raw.Commands)
	}
	if meta.IsDefined("strict_registration") {
		cfg.StrictRegistration = raw.StrictRegistration
	}
	if meta.IsDefined("kv_path") {
		cfg.KVPath = strings.TrimSpace(raw.KVPath)
	}
	if meta.IsDefined("max_line_bytes") {
		cfg.MaxLineBytes = raw.MaxLineBytes
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
