package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-minisplit/internal/audit"
	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatusSource is the part of the bridge service the API uses.
// *tuya.Service satisfies it.
type StatusSource interface {
	QueryStatus(ctx context.Context, forceRefresh bool) tuya.CanonicalStatus
	Apply(ctx context.Context, source, name string, value any) (*tuya.CommandResult, error)
	WriteRaw(ctx context.Context, source string, index int, value any) (*tuya.CommandResult, error)
	Reconnect(ctx context.Context) bool
	OnStatus(fn func(tuya.CanonicalStatus)) (unregister func())
	Table() *tuya.Table
	DisplayUnit() tuya.TemperatureUnit
	Identity() tuya.Identity
	Connected() bool
	Stats() tuya.ManagerStats
}

// MQTTStatus reports the broker connection for the metrics endpoint.
type MQTTStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Service StatusSource

	// Commands is optional; without it /commands answers 503.
	Commands audit.Repository

	// MQTT is optional and only feeds /metrics.
	MQTT MQTTStatus

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	service   StatusSource
	commands  audit.Repository
	mqtt      MQTTStatus
	version   string
	startTime time.Time

	server *http.Server
	addr   net.Addr
	hub    *Hub
	cancel context.CancelFunc

	observeOnce sync.Once
	unobserve   func()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if deps.Config.Token == "" {
		return nil, fmt.Errorf("API token is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		service:   deps.Service,
		commands:  deps.Commands,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start binds the listener and serves in the background. Status changes are
// relayed to WebSocket clients until Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.observeStatus()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr()
	s.logger.Info("API server listening", "address", s.addr.String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.unobserve != nil {
		s.unobserve()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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

// observeStatus registers the hub relay with the service exactly once.
func (s *Server) observeStatus() {
	s.observeOnce.Do(func() {
		s.unobserve = s.service.OnStatus(func(st tuya.CanonicalStatus) {
			s.hub.Broadcast(ChannelStatus, st)
		})
	})
}
