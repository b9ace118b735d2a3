package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/donuts/internal/protocol/schema"
	"github.com/rs/zerolog"
)

// HelpCommand is registered on every dispatcher.
const HelpCommand = "get-help"

var (
	ErrCommandNotFound  = errors.New("command not found.")
	ErrInvalidArguments = errors.New("command: invalid arguments")
	ErrCommandExists    = errors.New("command: already registered")
	ErrInvalidCommand   = errors.New("command: invalid command")
)

// Handler runs one command. It must not return before it is done with pipe;
// the pipe is torn down as soon as it returns.
type Handler func(ctx context.Context, args any, pipe *Pipe) error

// Command binds a name to an argument schema and a handler.
type Command struct {
	Name    string
	Args    *schema.Schema
	Handler Handler
}

// Info is one catalogue entry as served by get-help.
type Info struct {
	Name       string         `json:"name"`
	TypeSchema *schema.Schema `json:"typeSchema"`
}

type Option func(*Dispatcher)

// WithStrictRegistration rejects duplicate names with ErrCommandExists.
// Without it the first registration wins lookups.
func WithStrictRegistration() Option {
	return func(d *Dispatcher) { d.strict = true }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// Dispatcher is the command table for one host process.
type Dispatcher struct {
	mu       sync.RWMutex
	commands []Command
	strict   bool
	logger   zerolog.Logger
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	d.commands = append(d.commands, Command{
		Name:    HelpCommand,
		Args:    schema.Any(),
		Handler: d.help,
	})
	return d
}

// Register appends commands in order. Argument schemas must pass
// schema.Check so the catalogue always encodes.
func (d *Dispatcher) Register(cmds ...Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cmd := range cmds {
		if strings.TrimSpace(cmd.Name) == "" || cmd.Args == nil || cmd.Handler == nil {
			return fmt.Errorf("%w: name=%q", ErrInvalidCommand, cmd.Name)
		}
		if err := schema.Check(cmd.Args); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidCommand, cmd.Name, err)
		}
		if _, ok := d.lookupLocked(cmd.Name); ok {
			if d.strict {
				return fmt.Errorf("%w: %s", ErrCommandExists, cmd.Name)
			}
			d.logger.Warn().Str("command", cmd.Name).Msg("duplicate command registration; first wins")
		}
		d.commands = append(d.commands, cmd)
	}
	return nil
}

// Lookup returns the first command registered under name.
func (d *Dispatcher) Lookup(name string) (Command, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookupLocked(name)
}

func (d *Dispatcher) lookupLocked(name string) (Command, bool) {
	for _, cmd := range d.commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return Command{}, false
}

// Catalogue lists every registered command in registration order.
func (d *Dispatcher) Catalogue() []Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Info, 0, len(d.commands))
	for _, cmd := range d.commands {
		out = append(out, Info{Name: cmd.Name, TypeSchema: cmd.Args})
	}
	return out
}

// Execute validates args and runs the handler for name.
func (d *Dispatcher) Execute(ctx context.Context, name string, args any, pipe *Pipe) error {
	cmd, ok := d.Lookup(name)
	if !ok {
		return ErrCommandNotFound
	}
	if err := schema.Validate(cmd.Args, args); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	d.logger.Debug().Str("command", name).Msg("command.Dispatcher.Execute")
	return cmd.Handler(ctx, args, pipe)
}

func (d *Dispatcher) help(_ context.Context, _ any, pipe *Pipe) error {
	payload, err := json.Marshal(d.Catalogue())
	if err != nil {
		return err
	}
	return pipe.Out.Send(string(payload))
}
