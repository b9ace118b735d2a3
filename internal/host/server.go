package host

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConnectionStatus is one row of the admin connections view.
type ConnectionStatus struct {
	ID       string    `json:"id"`
	Remote   string    `json:"remote"`
	Contexts int       `json:"contexts"`
	Opened   time.Time `json:"opened"`
}

type serverConn struct {
	conn   *Connection
	remote string
}

// Server accepts duplex connections and multiplexes each one independently.
type Server struct {
	dispatcher *command.Dispatcher
	logger     zerolog.Logger
	limits     frame.Limits

	mu    sync.RWMutex
	conns map[string]serverConn
	wg    sync.WaitGroup
}

func NewServer(dispatcher *command.Dispatcher, logger zerolog.Logger, limits frame.Limits) *Server {
	return &Server{
		dispatcher: dispatcher,
		logger:     logger,
		limits:     limits,
		conns:      make(map[string]serverConn),
	}
}

// Serve accepts until ctx is cancelled, then closes open connections and
// waits for their commands to drain.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("host listening")
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeAll()
	}()

	defer s.wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	logger := s.logger.With().Str("conn", id).Logger()
	c := NewConnection(conn, s.dispatcher, ConnectionConfig{ID: id, Limits: s.limits, Logger: &logger})

	s.mu.Lock()
	s.conns[id] = serverConn{conn: c, remote: remote}
	active := len(s.conns)
	s.mu.Unlock()
	logger.Info().Str("remote", remote).Int("active_connections", active).Msg("client connected")
	if ctx.Err() != nil {
		c.Close()
	}

	err := c.Serve(ctx)

	s.mu.Lock()
	delete(s.conns, id)
	remaining := len(s.conns)
	s.mu.Unlock()

	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.Int("active_connections", remaining).Msg("client disconnected")
}

// Connections lists open connections ordered by open time.
func (s *Server) Connections() []ConnectionStatus {
	s.mu.RLock()
	out := make([]ConnectionStatus, 0, len(s.conns))
	for id, sc := range s.conns {
		out = append(out, ConnectionStatus{
			ID:       id,
			Remote:   sc.remote,
			Contexts: sc.conn.ActiveContexts(),
			Opened:   sc.conn.opened,
		})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Opened.Before(out[j].Opened) })
	return out
}

// ActiveContexts sums executing commands across connections.
func (s *Server) ActiveContexts() int {
	total := 0
	for _, c := range s.Connections() {
		total += c.Contexts
	}
	return total
}

func (s *Server) closeAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.conns {
		sc.conn.Close()
	}
}
