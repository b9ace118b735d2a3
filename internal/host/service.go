package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/commands"
	"github.com/danmuck/donuts/internal/node"
	"github.com/danmuck/donuts/internal/protocol/frame"
	"github.com/danmuck/donuts/internal/store"
	"github.com/danmuck/donuts/internal/transport"
	"github.com/danmuck/donuts/internal/workspace"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidHeartbeatInterval = errors.New("host: invalid heartbeat interval")
	ErrAddressRequired          = errors.New("host: address required")
	ErrAlreadyStarted           = errors.New("host: service already started")
)

// ServiceConfig configures a standalone host process.
type ServiceConfig struct {
	HostID             string
	Address            string
	AdminListenAddr    string
	CORSOrigins        []string
	HeartbeatInterval  time.Duration
	CommandSets        []string
	StrictRegistration bool
	// KVPath is the badger directory for the kv set. Empty keeps kv in memory.
	KVPath       string
	MaxLineBytes int
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		HostID:             "donuts.local",
		Address:            "unix:/tmp/donuts.sock",
		HeartbeatInterval:  30 * time.Second,
		CommandSets:        []string{commands.SetCore, commands.SetWorkspace},
		StrictRegistration: true,
		MaxLineBytes:       frame.DefaultLimits().MaxLineBytes,
	}
}

// Service runs the host lifecycle: bootstrap, serve, drain.
type Service struct {
	cfg    ServiceConfig
	logger zerolog.Logger

	dispatcher *command.Dispatcher
	server     *Server
	workspace  *workspace.Workspace
	store      *store.Store

	routerOnce sync.Once
	router     *gin.Engine

	started   time.Time
	ready     atomic.Bool
	running   atomic.Bool
	listening chan net.Addr
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	return &Service{
		cfg:       cfg,
		logger:    log.Logger.With().Str("host", cfg.HostID).Logger(),
		listening: make(chan net.Addr, 1),
	}
}

// WithLogger replaces the service logger. Call before Run.
func (s *Service) WithLogger(logger zerolog.Logger) *Service {
	s.logger = logger
	return s
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext blocks until ctx ends and every connection has drained.
func (s *Service) RunContext(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := s.bootstrap(ctx); err != nil {
		s.shutdown()
		return err
	}
	defer s.shutdown()
	return s.serve(ctx)
}

// Listening yields the bound host address once serving starts.
func (s *Service) Listening() <-chan net.Addr {
	return s.listening
}

func (s *Service) Dispatcher() *command.Dispatcher {
	return s.dispatcher
}

func (s *Service) Server() *Server {
	return s.server
}

func (s *Service) Workspace() *workspace.Workspace {
	return s.workspace
}

var _ node.Node = (*Service)(nil)

func (s *Service) NodeID() string {
	return s.cfg.HostID
}

func (s *Service) Kind() string {
	return "host"
}

// HTTPRouter builds the admin router once. Call after bootstrap.
func (s *Service) HTTPRouter() *gin.Engine {
	s.routerOnce.Do(func() {
		s.router = s.AdminRouter()
	})
	return s.router
}

func (s *Service) bootstrap(ctx context.Context) error {
	if s.cfg.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if strings.TrimSpace(s.cfg.Address) == "" {
		return ErrAddressRequired
	}
	s.started = time.Now()

	s.workspace = workspace.New(ctx,
		workspace.WithLogger(s.logger.With().Str("component", "workspace").Logger()),
	)
	if slices.Contains(s.cfg.CommandSets, commands.SetKV) {
		st, err := store.Open(store.Config{
			Dir:    s.cfg.KVPath,
			Logger: s.logger.With().Str("component", "store").Logger(),
		})
		if err != nil {
			return err
		}
		s.store = st
	}

	cmds, err := commands.Builtin(s.cfg.CommandSets, commands.Deps{
		Workspace: s.workspace,
		Store:     s.store,
		Logger:    s.logger,
	})
	if err != nil {
		return err
	}
	opts := []command.Option{command.WithLogger(s.logger)}
	if s.cfg.StrictRegistration {
		opts = append(opts, command.WithStrictRegistration())
	}
	s.dispatcher = command.NewDispatcher(opts...)
	if err := s.dispatcher.Register(cmds...); err != nil {
		return err
	}

	s.server = NewServer(s.dispatcher, s.logger, frame.Limits{MaxLineBytes: s.cfg.MaxLineBytes})
	s.logger.Info().
		Strs("command_sets", s.cfg.CommandSets).
		Int("commands", len(s.dispatcher.Catalogue())).
		Bool("strict", s.cfg.StrictRegistration).
		Msg("host.Service.bootstrap ready")
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	ln, err := transport.Listen(s.cfg.Address)
	if err != nil {
		return err
	}
	s.listening <- ln.Addr()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- s.server.Serve(ctx, ln)
	}()

	adminErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminListenAddr) != "" {
		go func() {
			adminErr <- serveAdmin(ctx, s, s.cfg.AdminListenAddr, s.logger)
		}()
	}
	s.ready.Store(true)
	defer s.ready.Store(false)

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("host.Service.serve shutdown")
			return <-serverErr
		case err := <-serverErr:
			return err
		case err := <-adminErr:
			if err != nil {
				cancel()
				<-serverErr
				return fmt.Errorf("host: admin: %w", err)
			}
		case <-ticker.C:
			s.logger.Info().
				Int("connections", len(s.server.Connections())).
				Int("active_contexts", s.server.ActiveContexts()).
				Dur("uptime", time.Since(s.started)).
				Msg("host.Service.heartbeat")
		}
	}
}

func serveAdmin(ctx context.Context, n node.Node, addr string, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: n.HTTPRouter(), ReadHeaderTimeout: 10 * time.Second}
	logger.Info().Str("addr", ln.Addr().String()).Str("node", n.NodeID()).Str("kind", n.Kind()).Msg("host.admin listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Service) shutdown() {
	if s.workspace != nil {
		s.workspace.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("host.Service.shutdown store close failed")
		}
	}
}
