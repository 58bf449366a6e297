package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/aggregator"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/config"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/logging"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/mqtt"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Store is the read and edit surface of the persisted comparison table.
// Satisfied by *store.Store.
type Store interface {
	Records(ctx context.Context, filter store.Filter) ([]store.Row, error)
	Sidecars(ctx context.Context) (map[string]store.Sidecar, error)
	Fields() []store.Field
	EditSidecar(ctx context.Context, sourceFile string, values store.Sidecar) (int64, error)
	Runs(ctx context.Context, limit int) ([]store.Run, error)
}

// Aggregator runs one aggregation. Satisfied by *aggregator.Aggregator.
type Aggregator interface {
	Run(ctx context.Context) (*aggregator.Summary, error)
}

// HealthChecker is implemented by every backend /health reports on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EventPublisher forwards operator edits to the message bus.
// Satisfied by *mqtt.Client.
type EventPublisher interface {
	HealthChecker
	PublishSidecarEdited(ev mqtt.SidecarEditedEvent) error
	IsConnected() bool
}

// Connectivity reports whether an optional backend is reachable.
// Satisfied by *influxdb.Client.
type Connectivity interface {
	HealthChecker
	IsConnected() bool
}

// Database is the health and pool statistics surface of the store's
// database. Satisfied by *database.DB.
type Database interface {
	HealthChecker
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger
	Store  Store

	// Aggregator is optional; without it POST /aggregate answers 503.
	Aggregator Aggregator

	// Events, InfluxDB and DB are optional.
	Events   EventPublisher
	InfluxDB Connectivity
	DB       Database

	// AccuracyClass is used when a records query asks for class=default.
	AccuracyClass float64

	Version string
}

// Server is the HTTP API server of ctaggregate.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	store      Store
	aggregator Aggregator
	events     EventPublisher
	influx     Connectivity
	db         Database
	class      float64
	version    string
	startTime  time.Time
	server     *http.Server
	listener   net.Listener
	hub        *Hub
	cancel     context.CancelFunc // cancels the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, store)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		store:      deps.Store,
		aggregator: deps.Aggregator,
		events:     deps.Events,
		influx:     deps.InfluxDB,
		db:         deps.DB,
		class:      deps.AccuracyClass,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, binds the listener synchronously so that port
// conflicts surface here, and serves in a background goroutine. The server
// can be stopped with Close().
//
// Parameters:
//   - ctx: Context for the hub lifetime (not used for listener lifetime)
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
