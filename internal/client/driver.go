// Package client drives one command session against a donuts host.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/protocol"
	"github.com/danmuck/donuts/internal/protocol/frame"
	"github.com/danmuck/donuts/internal/transport"
	"github.com/rs/zerolog"
)

// DefaultEnvPrefix prefixes env names used to resolve argument defaults.
const DefaultEnvPrefix = "DONUTS_"

var (
	ErrConnectionClosed  = errors.New("client: connection closed before the session ended")
	ErrContextMismatch   = errors.New("client: context mismatch")
	ErrUnexpectedMessage = errors.New("client: unexpected message")
)

// State is the driver's session phase.
type State int

const (
	Discovering State = iota
	Executing
	Done
)

func (s State) String() string {
	switch s {
	case Discovering:
		return "discovering"
	case Executing:
		return "executing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RemoteError is an error envelope received from the host.
type RemoteError struct {
	Context *uint64
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Driver runs one session: discover the catalogue, send the command named by
// Args, then stream Stdin to it and its output to Stdout.
type Driver struct {
	Conn   net.Conn
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Env defaults to os.Getenv.
	Env  func(string) string
	PPID int
	// EnvPrefix defaults to DefaultEnvPrefix.
	EnvPrefix string
	Limits    frame.Limits
	Logger    zerolog.Logger

	state State
}

// State reports the phase the last Run ended in.
func (d *Driver) State() State {
	return d.state
}

type session struct {
	d       *Driver
	channel *frame.Channel
	logger  zerolog.Logger

	discovery   *uint64
	catalogue   strings.Builder
	execution   *uint64
	invocation  invocation
	stdinFailed chan error
}

// Run blocks until the command completes, the host reports an error or ctx
// ends. The connection is closed on return.
func (d *Driver) Run(ctx context.Context) error {
	if d.Conn == nil {
		return errors.New("client: nil connection")
	}
	defer d.Conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = d.Conn.Close()
		case <-stop:
		}
	}()

	s := &session{
		d:           d,
		channel:     frame.NewChannel(d.Conn, d.Limits),
		logger:      d.Logger,
		stdinFailed: make(chan error, 1),
	}
	d.state = Discovering
	if err := s.channel.WriteObject(protocol.NewCommand(command.HelpCommand, nil)); err != nil {
		return fmt.Errorf("client: send discovery: %w", err)
	}

	for d.state != Done {
		v, err := s.channel.ReadObject()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case werr := <-s.stdinFailed:
				return werr
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return ErrConnectionClosed
			}
			return fmt.Errorf("client: read: %w", err)
		}
		env, err := protocol.DecodeValue(v)
		if err != nil {
			return fmt.Errorf("client: decode: %w", err)
		}
		if err := s.handle(env); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) handle(env protocol.Envelope) error {
	if e, ok := env.(*protocol.Error); ok {
		s.logger.Debug().Str("message", e.Message).Msg("client remote error")
		s.d.state = Done
		return &RemoteError{Context: e.Context, Message: e.Message}
	}
	switch s.d.state {
	case Discovering:
		return s.discover(env)
	case Executing:
		return s.execute(env)
	default:
		return nil
	}
}

func (s *session) discover(env protocol.Envelope) error {
	switch e := env.(type) {
	case *protocol.CommandResponse:
		if s.discovery != nil {
			return fmt.Errorf("%w: second command-response %d during discovery", ErrUnexpectedMessage, e.Context)
		}
		c := e.Context
		s.discovery = &c
	case *protocol.Chunk:
		if err := s.expect(s.discovery, e.Context); err != nil {
			return err
		}
		s.catalogue.WriteString(e.Data)
	case *protocol.CommandComplete:
		if err := s.expect(s.discovery, e.Context); err != nil {
			return err
		}
		return s.startCommand()
	default:
		return fmt.Errorf("%w: %s during discovery", ErrUnexpectedMessage, env.Kind())
	}
	return nil
}

func (s *session) startCommand() error {
	var catalogue []Entry
	if err := json.Unmarshal([]byte(s.catalogue.String()), &catalogue); err != nil {
		return fmt.Errorf("client: decode catalogue: %w", err)
	}
	s.logger.Debug().Int("commands", len(catalogue)).Msg("client discovered catalogue")

	env := s.d.Env
	if env == nil {
		env = os.Getenv
	}
	prefix := s.d.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	root := buildCLI(catalogue, defaults{prefix: prefix, env: env, ppid: s.d.PPID}, &s.invocation)
	args := s.d.Args
	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}
	root.SetArgs(args)
	if s.d.Stdout != nil {
		root.SetOut(s.d.Stdout)
	}
	if s.d.Stderr != nil {
		root.SetErr(s.d.Stderr)
	}
	if err := root.Execute(); err != nil {
		return err
	}
	if !s.invocation.set {
		s.d.state = Done
		return nil
	}

	s.d.state = Executing
	s.logger.Debug().Str("command", s.invocation.name).Msg("client sending command")
	if err := s.channel.WriteObject(protocol.NewCommand(s.invocation.name, s.invocation.args)); err != nil {
		return fmt.Errorf("client: send command: %w", err)
	}
	return nil
}

func (s *session) execute(env protocol.Envelope) error {
	switch e := env.(type) {
	case *protocol.CommandResponse:
		if s.execution != nil {
			return fmt.Errorf("%w: got command-response %d, running %d", ErrContextMismatch, e.Context, *s.execution)
		}
		c := e.Context
		s.execution = &c
		go s.forwardStdin(c)
	case *protocol.Chunk:
		if err := s.expect(s.execution, e.Context); err != nil {
			return err
		}
		if s.d.Stdout != nil {
			if _, err := io.WriteString(s.d.Stdout, e.Data); err != nil {
				return fmt.Errorf("client: write stdout: %w", err)
			}
		}
	case *protocol.CommandComplete:
		if err := s.expect(s.execution, e.Context); err != nil {
			return err
		}
		s.d.state = Done
	default:
		return fmt.Errorf("%w: %s while executing", ErrUnexpectedMessage, env.Kind())
	}
	return nil
}

func (s *session) expect(want *uint64, got uint64) error {
	if want == nil {
		return fmt.Errorf("%w: context %d before command-response", ErrContextMismatch, got)
	}
	if *want != got {
		return fmt.Errorf("%w: want %d, got %d", ErrContextMismatch, *want, got)
	}
	return nil
}

// forwardStdin sends local input as chunks for ctx, then half-closes.
func (s *session) forwardStdin(ctx uint64) {
	if s.d.Stdin != nil {
		buf := make([]byte, 32*1024)
		var carry []byte
		for {
			n, err := s.d.Stdin.Read(buf)
			if n > 0 {
				data := append(carry, buf[:n]...)
				cut := validPrefix(data)
				carry = append([]byte(nil), data[cut:]...)
				if cut > 0 {
					if werr := s.channel.WriteObject(protocol.NewChunk(ctx, string(data[:cut]))); werr != nil {
						s.stdinFailed <- fmt.Errorf("client: send input: %w", werr)
						return
					}
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.logger.Warn().Err(err).Msg("client stdin read failed")
				}
				break
			}
		}
		if len(carry) > 0 {
			_ = s.channel.WriteObject(protocol.NewChunk(ctx, string(carry)))
		}
	}
	if err := transport.CloseWrite(s.d.Conn); err != nil {
		s.logger.Debug().Err(err).Msg("client half-close failed")
	}
}

// validPrefix is the length of b without a trailing incomplete UTF-8 sequence.
func validPrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}
