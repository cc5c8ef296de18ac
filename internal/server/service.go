package server

import (
	"context"
	"net"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/gridmesh/internal/auth"
	"github.com/danmuck/gridmesh/internal/config"
	"github.com/danmuck/gridmesh/internal/jobstore"
	"github.com/danmuck/gridmesh/internal/observability"
	"github.com/danmuck/gridmesh/internal/wire/session"
)

const heartbeatInterval = 30 * time.Second

// Service runs the solver daemon lifecycle as a standalone process.
type Service struct {
	cfg     config.DaemonConfig
	session session.Config
	logger  zerolog.Logger
	tokens  auth.Validator

	store    *jobstore.Store
	appeared time.Time

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	solverClients atomic.Int64
	wake          chan struct{}
}

func NewService(cfg config.DaemonConfig) *Service {
	return &Service{
		cfg:     cfg,
		session: session.DefaultConfig(),
		logger:  log.With().Str("component", "server").Str("daemon", cfg.Name).Logger(),
		tokens:  auth.StaticToken{Token: cfg.AuthToken},
		conns:   make(map[net.Conn]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Run blocks until a process signal shuts the daemon down.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.ValidateDaemonConfig(s.cfg); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// boot validates config, registers metrics, and opens the job store.
func (s *Service) boot() error {
	if err := config.ValidateDaemonConfig(s.cfg); err != nil {
		return err
	}
	observability.RegisterMetrics()

	store, err := jobstore.Open(s.cfg.DBPath)
	if err != nil {
		return err
	}
	s.store = store
	s.appeared = time.Now()

	sweepCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stale, err := store.FailStaleRunning(sweepCtx, "daemon restarted")
	if err != nil {
		return err
	}
	if stale > 0 {
		s.logger.Warn().Int64("jobs", stale).Msg("service.boot failed stale running jobs")
	}

	s.logger.Info().
		Str("db_path", s.cfg.DBPath).
		Int("workers", s.cfg.Workers).
		Msg("service.boot ready")
	return nil
}

// Serve boots the daemon and runs the worker pool, both listeners, and the
// heartbeat against an existing solver listener until ctx is canceled. Run
// wraps it with signal handling; callers with their own lifecycle use it
// directly.
func (s *Service) Serve(parent context.Context, ln net.Listener) error {
	defer ln.Close()
	if err := s.boot(); err != nil {
		return err
	}
	defer s.store.Close()

	ctx, cancel := context.WithCancel(parent)
	s.logger.Info().
		Str("listen_addr", ln.Addr().String()).
		Str("admin_addr", s.cfg.AdminAddr).
		Msg("service.serve listening")

	var workers sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			s.runWorker(ctx, id)
		}(i)
	}
	// cancel runs before the wait, so an error return also stops the pool
	defer workers.Wait()
	defer cancel()

	solverErr := make(chan error, 1)
	go func() { solverErr <- s.serveSolver(ctx, ln) }()
	adminErr := make(chan error, 1)
	go func() { adminErr <- s.serveAdmin(ctx) }()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("service.serve shutdown")
			if err := <-solverErr; err != nil {
				return err
			}
			if err := <-adminErr; err != nil {
				return err
			}
			return nil
		case err := <-solverErr:
			return err
		case err := <-adminErr:
			return err
		case <-ticker.C:
			s.heartbeat(ctx)
		}
	}
}

func (s *Service) heartbeat(ctx context.Context) {
	countCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	counts, err := s.store.CountByStatus(countCtx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("service.heartbeat count failed")
		return
	}
	s.logger.Info().
		Int64("pending", counts[jobstore.StatusPending]).
		Int64("running", counts[jobstore.StatusRunning]).
		Int64("done", counts[jobstore.StatusDone]).
		Int64("failed", counts[jobstore.StatusFailed]).
		Int64("solver_clients", s.solverClients.Load()).
		Msg("service.heartbeat")
}

// wakeWorkers nudges the pool after a submit; the send never blocks.
func (s *Service) wakeWorkers() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
