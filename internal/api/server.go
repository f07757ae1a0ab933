package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/soundmesh/soundmesh-core/internal/audit"
	"github.com/soundmesh/soundmesh-core/internal/commands"
	"github.com/soundmesh/soundmesh-core/internal/grouping"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/config"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/logging"
	"github.com/soundmesh/soundmesh-core/internal/state"
)

// shutdownGrace is how long Close waits for in-flight requests before
// dropping remaining connections.
const shutdownGrace = 10 * time.Second

// GroupingMonitor exposes the read-only side of the grouping reconciler.
type GroupingMonitor interface {
	GetZoneGroupingStatus(ctx context.Context) (*grouping.GroupingStatus, error)
	ValidateGroupingConsistency(ctx context.Context) error
}

// ReconcileTrigger requests an out-of-schedule grouping pass. Calls coalesce;
// triggering during a running pass schedules exactly one follow-up.
type ReconcileTrigger interface {
	Trigger()
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	States   *state.Store
	Commands *commands.Service
	Audit    audit.Repository // optional: audit trail endpoint
	Grouping GroupingMonitor  // optional: grouping status endpoints
	Trigger  ReconcileTrigger // optional: manual reconcile endpoint
	Version  string
}

// Server is the HTTP surface of the SoundMesh hub: the REST API, the
// WebSocket hub for live state, and the ticket store that bridges the two.
// Create one with New and bring it up with Start.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	states   *state.Store
	commands *commands.Service
	audit    audit.Repository
	grouping GroupingMonitor
	trigger  ReconcileTrigger
	version  string
	server   *http.Server
	hub      *Hub
	tickets  *ticketStore
	cancel   context.CancelFunc // stops hub and ticket cleanup on Close
}

// New validates the required dependencies and returns an unstarted server.
// Audit, Grouping and Trigger may be nil; the endpoints that need them
// answer 503 when they are absent.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.States == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command service is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		states:   deps.States,
		commands: deps.Commands,
		audit:    deps.Audit,
		grouping: deps.Grouping,
		trigger:  deps.Trigger,
		version:  deps.Version,
		tickets:  newTicketStore(),
	}, nil
}

// Start brings up the WebSocket hub, ticket cleanup, the state-change
// broadcaster and the HTTP listener. It returns once the listener goroutine
// is launched; Close stops everything.
func (s *Server) Start(ctx context.Context) error {
	// Derived context so Close can stop background goroutines without
	// waiting on the parent.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)
	s.subscribeStateUpdates()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go s.serve()
	return nil
}

// serve runs the listener until shutdown, with or without TLS.
func (s *Server) serve() {
	var err error
	if s.cfg.TLS.Enabled {
		s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
		err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		s.logger.Info("API server starting", "address", s.server.Addr)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server error", "error", err)
	}
}

// Close drains in-flight requests for up to shutdownGrace, then closes
// whatever remains.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the listener has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
