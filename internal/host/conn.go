package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/observability"
	"github.com/danmuck/donuts/internal/protocol"
	"github.com/danmuck/donuts/internal/protocol/frame"
	"github.com/rs/zerolog"
)

// ConnectionConfig tunes one multiplexed connection.
type ConnectionConfig struct {
	ID     string
	Limits frame.Limits
	Logger *zerolog.Logger
}

// Connection multiplexes concurrently executing commands over one transport.
// Contexts start at 0 and are never reused while the connection is open.
type Connection struct {
	id         string
	transport  io.ReadWriteCloser
	channel    *frame.Channel
	dispatcher *command.Dispatcher
	logger     zerolog.Logger
	opened     time.Time

	mu    sync.Mutex
	next  uint64
	pipes map[uint64]*command.Pipe

	// pending counts inbound envelopes whose handling has not settled.
	pending sync.WaitGroup

	closeOnce sync.Once
	closing   atomic.Bool
	writeErr  error
}

func NewConnection(transport io.ReadWriteCloser, dispatcher *command.Dispatcher, cfg ConnectionConfig) *Connection {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Connection{
		id:         cfg.ID,
		transport:  transport,
		channel:    frame.NewChannel(transport, cfg.Limits),
		dispatcher: dispatcher,
		logger:     logger,
		opened:     time.Now(),
		pipes:      make(map[uint64]*command.Pipe),
	}
}

// Handle serves transport until the peer ends its side and every dispatched
// command has settled.
func Handle(ctx context.Context, transport io.ReadWriteCloser, dispatcher *command.Dispatcher, cfg ConnectionConfig) error {
	return NewConnection(transport, dispatcher, cfg).Serve(ctx)
}

func (c *Connection) ID() string {
	return c.id
}

// ActiveContexts is the number of commands currently executing.
func (c *Connection) ActiveContexts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pipes)
}

// Serve runs the read loop. Handlers receive ctx; ending the transport only
// closes their input.
func (c *Connection) Serve(ctx context.Context) error {
	observability.ConnectionOpened()
	defer observability.ConnectionClosed()
	c.logger.Debug().Msg("host.Connection.Serve start")

	var readErr error
	for {
		v, err := c.channel.ReadObject()
		if err != nil {
			if frame.IsLineError(err) {
				c.pending.Add(1)
				c.report(err, "decode")
				c.pending.Done()
				continue
			}
			if !errors.Is(err, io.EOF) && !c.closing.Load() {
				readErr = err
			}
			break
		}
		c.pending.Add(1)
		c.dispatch(ctx, v)
	}

	c.endInputs()
	c.pending.Wait()
	c.close()

	c.logger.Debug().Dur("lifetime", time.Since(c.opened)).Msg("host.Connection.Serve done")
	if readErr != nil {
		return fmt.Errorf("host: read: %w", readErr)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}

func (c *Connection) dispatch(ctx context.Context, v any) {
	env, err := protocol.DecodeValue(v)
	if err != nil {
		c.report(err, "decode")
		c.pending.Done()
		return
	}
	observability.RecordEnvelope(observability.DirectionIn, string(env.Kind()))

	switch e := env.(type) {
	case *protocol.Command:
		c.start(ctx, e)
	case *protocol.Chunk:
		if err := c.route(e); err != nil {
			c.report(err, "protocol")
		}
		c.pending.Done()
	default:
		c.report(protocol.ErrUnknownMessage, "protocol")
		c.pending.Done()
	}
}

// start allocates the context on the read loop so that chunks following the
// command on the wire always find its pipe.
func (c *Connection) start(ctx context.Context, cmd *protocol.Command) {
	c.mu.Lock()
	id := c.next
	c.next++
	pipe := command.NewPipe(func(data string) error {
		return c.send(protocol.NewChunk(id, data))
	})
	c.pipes[id] = pipe
	c.mu.Unlock()
	observability.ContextOpened()

	logger := c.logger.With().Uint64("context", id).Str("command", cmd.Name).Logger()
	if err := c.send(protocol.NewCommandResponse(id)); err != nil {
		logger.Debug().Err(err).Msg("command-response not delivered")
	}

	go func() {
		defer c.pending.Done()
		started := time.Now()
		err := c.execute(ctx, cmd, pipe)
		c.release(id, pipe)
		observability.RecordCommand(metricName(c.dispatcher, cmd.Name), err == nil, time.Since(started))

		if err != nil {
			logger.Warn().Err(err).Msg("command failed")
			c.report(protocol.NewContextError(id, err.Error()), "command")
			return
		}
		logger.Debug().Dur("duration", time.Since(started)).Msg("command complete")
		_ = c.send(protocol.NewCommandComplete(id))
	}()
}

func (c *Connection) execute(ctx context.Context, cmd *protocol.Command, pipe *command.Pipe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.dispatcher.Execute(ctx, cmd.Name, cmd.Args, pipe)
}

func (c *Connection) route(chunk *protocol.Chunk) error {
	c.mu.Lock()
	pipe, ok := c.pipes[chunk.Context]
	c.mu.Unlock()
	if !ok {
		return protocol.ErrContextNotFound
	}
	if err := pipe.In.Push(chunk.Data); err != nil {
		return protocol.ErrContextNotFound
	}
	return nil
}

// release tears a context down before its terminal envelope is written.
func (c *Connection) release(id uint64, pipe *command.Pipe) {
	c.mu.Lock()
	delete(c.pipes, id)
	c.mu.Unlock()
	pipe.Close()
	observability.ContextClosed()
}

func (c *Connection) endInputs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pipe := range c.pipes {
		pipe.In.Close()
	}
}

// report turns any per-envelope failure into an error envelope; the
// connection keeps serving.
func (c *Connection) report(err error, kind string) {
	observability.RecordProtocolError(kind)
	env := protocol.ErrorFrom(err)
	if kind != "command" {
		c.logger.Warn().Err(err).Str("kind", kind).Msg("protocol error")
	}
	_ = c.send(env)
}

// send writes one envelope. A refused envelope fails only its caller; a
// stream failure ends the connection.
func (c *Connection) send(env protocol.Envelope) error {
	if err := c.channel.WriteObject(env); err != nil {
		if frame.IsRejected(err) {
			c.logger.Warn().Err(err).Str("kind", string(env.Kind())).Msg("envelope refused")
			return err
		}
		c.fail(err)
		return err
	}
	observability.RecordEnvelope(observability.DirectionOut, string(env.Kind()))
	return nil
}

// fail records the first transport write error and closes the transport so
// the read loop unwinds.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	first := c.writeErr == nil
	if first {
		c.writeErr = fmt.Errorf("host: write: %w", err)
	}
	c.mu.Unlock()
	if first {
		c.logger.Error().Err(err).Msg("transport write failed")
	}
	c.close()
}

// Close ends the transport. Serve unwinds, draining running commands first.
func (c *Connection) Close() {
	c.close()
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		_ = c.transport.Close()
	})
}

func metricName(d *command.Dispatcher, name string) string {
	if _, ok := d.Lookup(name); ok {
		return name
	}
	return "unknown"
}
