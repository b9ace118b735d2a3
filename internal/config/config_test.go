package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/donuts/internal/testutil/testlog"
)

func TestTemplatesValidate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	hostPath := filepath.Join(dir, "host.toml")
	if err := WriteTemplate(hostPath, "host", false); err != nil {
		t.Fatalf("write host template: %v", err)
	}
	host, err := LoadHostConfig(hostPath)
	if err != nil {
		t.Fatalf("load host template: %v", err)
	}
	if host.ID != "donuts.local" || len(host.Commands) != 3 {
		t.Fatalf("unexpected host config: %+v", host)
	}
	if host.StrictRegistration == nil || !*host.StrictRegistration {
		t.Fatalf("expected strict registration")
	}

	clientPath := filepath.Join(dir, "client.toml")
	if err := WriteTemplate(clientPath, "client", false); err != nil {
		t.Fatalf("write client template: %v", err)
	}
	client, err := LoadClientConfig(clientPath)
	if err != nil {
		t.Fatalf("load client template: %v", err)
	}
	if client.MaxConnectAttempts != 3 {
		t.Fatalf("unexpected client config: %+v", client)
	}

	if err := WriteTemplate(hostPath, "host", false); err == nil {
		t.Fatalf("expected existing file to be kept")
	}
	if _, err := Template("mirage"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestHostConfigRejects(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown key":   "address = \"unix:/tmp/x.sock\"\nbogus = 1\n",
		"no address":    "id = \"x\"\n",
		"bad heartbeat": "address = \"unix:/tmp/x.sock\"\nheartbeat = \"soon\"\n",
		"bad set":       "address = \"unix:/tmp/x.sock\"\ncommands = [\"editor\"]\n",
		"bad tcp":       "address = \"tcp:9000\"\n",
		"zero ms":       "address = \"unix:/tmp/x.sock\"\nheartbeat_ms = 0\n",
	}
	dir := t.TempDir()
	for name, body := range cases {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".toml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := LoadHostConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestHostConfigAcceptsHeartbeatMS(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "host.toml")
	body := "address = \"unix:/tmp/x.sock\"\nheartbeat_ms = 250\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadHostConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HeartbeatMS == nil || *cfg.HeartbeatMS != 250 {
		t.Fatalf("unexpected heartbeat_ms: %v", cfg.HeartbeatMS)
	}
}
