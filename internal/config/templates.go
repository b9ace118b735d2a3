package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "host":
		return hostTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const hostTemplate = `id = "donuts.local"
address = "unix:/tmp/donuts.sock"
admin_listen = "127.0.0.1:7080"
cors_origins = ["http://localhost:3000"]
heartbeat = "30s"
commands = ["core", "workspace", "kv"]
strict_registration = true
kv_path = ""
max_line_bytes = 8388608
`

const clientTemplate = `addr = "unix:/tmp/donuts.sock"
env_prefix = "DONUTS_"
connect_timeout = "5s"
max_connect_attempts = 3
`
