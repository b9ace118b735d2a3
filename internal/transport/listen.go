package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"
)

// ErrAddressInUse is returned when a live host already owns a unix socket.
var ErrAddressInUse = errors.New("transport: address in use")

// Listen opens a stream listener for raw. A unix socket left behind by a dead
// host is removed first; the socket file is unlinked again on Close.
func Listen(raw string) (net.Listener, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	if addr.Network == NetworkUnix {
		if err := removeStaleSocket(addr.Target); err != nil {
			return nil, err
		}
	}
	ln, err := net.Listen(addr.Network, addr.Target)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(true)
	}
	return ln, nil
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("transport: stat %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%w: %s is not a socket", ErrAddressInUse, path)
	}
	if conn, err := net.DialTimeout(NetworkUnix, path, 250*time.Millisecond); err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrAddressInUse, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("transport: remove stale socket %s: %w", path, err)
	}
	return nil
}
