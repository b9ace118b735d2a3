package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/donuts/internal/client"
	"github.com/danmuck/donuts/internal/config"
	"github.com/danmuck/donuts/internal/observability"
	"github.com/danmuck/donuts/internal/transport"
)

// EnvConfig optionally points at a client config file.
const EnvConfig = "DONUTS_CONFIG"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := observability.InitLogger("donuts", stderr)

	cfg, err := resolveConfig(os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "donuts: %v\n", err)
		return 1
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		fmt.Fprintf(stderr, "donuts: %s is not set\n", transport.EnvAddress)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCfg, err := dialConfig(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "donuts: %v\n", err)
		return 1
	}
	conn, err := transport.Dial(ctx, cfg.Addr, dialCfg)
	if err != nil {
		fmt.Fprintf(stderr, "donuts: %v\n", err)
		return 1
	}

	driver := &client.Driver{
		Conn:      conn,
		Args:      args,
		Stdin:     stdin,
		Stdout:    stdout,
		Stderr:    stderr,
		Env:       os.Getenv,
		PPID:      os.Getppid(),
		EnvPrefix: cfg.EnvPrefix,
		Logger:    logger,
	}
	if err := driver.Run(ctx); err != nil {
		var remote *client.RemoteError
		if errors.As(err, &remote) {
			fmt.Fprintln(stderr, remote.Message)
		} else {
			fmt.Fprintf(stderr, "donuts: %v\n", err)
		}
		return 1
	}
	return 0
}

// resolveConfig reads DONUTS_CONFIG when set; DONUTS_ADDR always wins.
func resolveConfig(getenv func(string) string) (config.ClientConfig, error) {
	var cfg config.ClientConfig
	if path := strings.TrimSpace(getenv(EnvConfig)); path != "" {
		loaded, err := config.LoadClientConfig(path)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg = loaded
	}
	if addr := strings.TrimSpace(getenv(transport.EnvAddress)); addr != "" {
		cfg.Addr = addr
	}
	if cfg.EnvPrefix == "" {
		cfg.EnvPrefix = client.DefaultEnvPrefix
	}
	return cfg, nil
}

func dialConfig(cfg config.ClientConfig) (transport.DialConfig, error) {
	out := transport.DefaultDialConfig()
	if raw := strings.TrimSpace(cfg.ConnectTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return transport.DialConfig{}, fmt.Errorf("connect_timeout: %w", err)
		}
		out.ConnectTimeout = d
	}
	if cfg.MaxConnectAttempts > 0 {
		out.MaxAttempts = cfg.MaxConnectAttempts
	}
	return out, nil
}
