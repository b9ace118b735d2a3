// Package transport resolves host addresses into stream listeners and dialers.
package transport

import (
	"errors"
	"fmt"
	"strings"
)

// EnvAddress names the variable the client reads the host address from.
const EnvAddress = "DONUTS_ADDR"

const (
	NetworkUnix = "unix"
	NetworkTCP  = "tcp"
)

var ErrInvalidAddress = errors.New("transport: invalid address")

// Address is a parsed host address.
type Address struct {
	Network string
	Target  string
}

func (a Address) String() string {
	return a.Network + ":" + a.Target
}

// ParseAddress accepts "unix:<path>", "tcp:<host:port>" or a bare unix socket path.
func ParseAddress(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	network, target, ok := strings.Cut(raw, ":")
	switch {
	case ok && network == NetworkUnix:
	case ok && network == NetworkTCP:
		if !strings.Contains(target, ":") {
			return Address{}, fmt.Errorf("%w: tcp target %q needs host:port", ErrInvalidAddress, target)
		}
	default:
		network, target = NetworkUnix, raw
	}
	if strings.TrimSpace(target) == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return Address{Network: network, Target: target}, nil
}
