package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":       zerolog.DebugLevel,
		" WARNING ":   zerolog.WarnLevel,
		"diagnostics": zerolog.TraceLevel,
		"off":         zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) got=%v ok=%v", raw, got, ok)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be ignored")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogTimestamp, "nope")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("unexpected level: %v", cfg.Level)
	}
	if !cfg.NoColor {
		t.Fatalf("expected no color")
	}
	if !cfg.Timestamp {
		t.Fatalf("invalid bool must keep the profile default")
	}
}

func TestNewWritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.InfoLevel, NoColor: true, Out: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "test").Msg("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "visible") {
		t.Fatalf("unexpected output: %q", out)
	}
}
