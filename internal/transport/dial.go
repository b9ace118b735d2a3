package transport

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DialConfig bounds connection attempts.
type DialConfig struct {
	ConnectTimeout time.Duration
	// MaxAttempts <= 1 dials once.
	MaxAttempts int
	Backoff     BackoffConfig
}

func DefaultDialConfig() DialConfig {
	return DialConfig{
		ConnectTimeout: 5 * time.Second,
		MaxAttempts:    1,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// Dial connects to raw, retrying per cfg until ctx ends.
func Dial(ctx context.Context, raw string, cfg DialConfig) (net.Conn, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := dialer.DialContext(ctx, addr.Network, addr.Target)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(NextBackoffDelay(cfg.Backoff, attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("transport: dial %s after %d attempt(s): %w", addr, attempts, lastErr)
}

// CloseWrite half-closes conn when the transport supports it.
func CloseWrite(conn net.Conn) error {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
