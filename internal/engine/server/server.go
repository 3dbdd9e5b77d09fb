// Package server exposes the workflow engine over HTTP: registering a
// workflow document, running it, and driving a debug session
// (pause/resume/step/terminate) with a websocket stream of engine events.
// It follows the node service's functional-options Server shape, trimmed
// to what an in-memory execution engine actually needs — no database or
// cache, since a Manager's state is the live call stack and node
// instances of whatever is currently running, not a persisted resource.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/config"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/logger"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/middleware"
)

// Server hosts the engine's control-plane and debug event stream.
type Server struct {
	config           *config.Config
	logger           logger.Logger
	telemetry        interface{}
	httpServer       *http.Server
	manager          *engine.Manager
	registry         *engine.Registry
	clock            engine.Clock
	upgrader         websocket.Upgrader
	debugSessionsMu  sync.Mutex
	debugSessions    int
	maxDebugSessions int
	callMirror       sarama.SyncProducer
}

// Option configures a Server before New builds it.
type Option func(*Server)

func WithConfig(cfg *config.Config) Option { return func(s *Server) { s.config = cfg } }

func WithLogger(l logger.Logger) Option { return func(s *Server) { s.logger = l } }

func WithTelemetry(t interface{}) Option { return func(s *Server) { s.telemetry = t } }

// WithRegistry overrides the node type registry; defaults to the global
// one every built-in node type registers itself into.
func WithRegistry(r *engine.Registry) Option { return func(s *Server) { s.registry = r } }

// WithClock overrides the engine's time source; defaults to wall time.
func WithClock(c engine.Clock) Option { return func(s *Server) { s.clock = c } }

func New(opts ...Option) (*Server, error) {
	s := &Server{upgrader: websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}
	return s, nil
}

func (s *Server) initialize() error {
	s.manager = engine.NewManager(s.registry, s.logger, s.clock)
	s.maxDebugSessions = 4
	if s.config != nil {
		if s.config.Engine.MaxParallelDebugSessions > 0 {
			s.maxDebugSessions = s.config.Engine.MaxParallelDebugSessions
		}
		s.manager.SetGateWaitWarning(s.config.Engine.GateWaitWarning)
		if err := s.setupCallMirror(); err != nil {
			return fmt.Errorf("failed to set up call mirror: %w", err)
		}
	}
	s.setupHTTPServer()
	return nil
}

// setupCallMirror wires the manager's call-event mirror to a real Kafka
// producer when config.Engine.CallMirrorTopic is set, following the
// teacher's sarama.SyncProducer setup in platform/messaging/kafka. A no-op
// when the topic is left empty, which is the default.
func (s *Server) setupCallMirror() error {
	topic := s.config.Engine.CallMirrorTopic
	if topic == "" {
		return nil
	}
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(s.config.Kafka.Brokers, saramaConfig)
	if err != nil {
		return fmt.Errorf("failed to create call-mirror producer: %w", err)
	}
	s.callMirror = producer
	s.manager.SetCallMirror(producer, topic)
	s.logger.Info("call-event mirroring enabled", "topic", topic, "brokers", s.config.Kafka.Brokers)
	return nil
}

func (s *Server) setupHTTPServer() {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)
	router.Use(s.recoveryMiddleware)
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20))

	router.HandleFunc("/health/live", s.handleLiveness).Methods("GET")
	router.HandleFunc("/health/ready", s.handleReadiness).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	if s.config != nil && s.config.Auth.JWTSecret != "" {
		authMiddleware := middleware.NewAuthMiddleware([]byte(s.config.Auth.JWTSecret))
		apiRouter.Use(authMiddleware.Middleware)
	}

	apiRouter.HandleFunc("/workflows", s.handleRegisterWorkflows).Methods("POST")
	apiRouter.HandleFunc("/run", s.handleRun).Methods("POST")
	apiRouter.HandleFunc("/debug/start", s.handleDebugStart).Methods("POST")
	apiRouter.HandleFunc("/debug/pause", s.handleDebugPause).Methods("POST")
	apiRouter.HandleFunc("/debug/resume", s.handleDebugResume).Methods("POST")
	apiRouter.HandleFunc("/debug/step", s.handleDebugStep).Methods("POST")
	apiRouter.HandleFunc("/debug/terminate", s.handleDebugTerminate).Methods("POST")
	apiRouter.HandleFunc("/debug/status", s.handleDebugStatus).Methods("GET")
	apiRouter.HandleFunc("/debug/events", s.handleEventStream)

	port := 8080
	readTimeout, writeTimeout, idleTimeout := 10*time.Second, 10*time.Second, 120*time.Second
	if s.config != nil {
		port = s.config.HTTP.Port
		readTimeout, writeTimeout, idleTimeout = s.config.HTTP.ReadTimeout, s.config.HTTP.WriteTimeout, s.config.HTTP.IdleTimeout
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Start runs the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("Starting engine server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown marks every live engine terminated and gracefully stops the HTTP
// server. A debug run stops at its next gate check; a standard /run does not
// check the terminated flag.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down engine server")
	s.manager.TerminateCurrent()
	if s.callMirror != nil {
		if err := s.callMirror.Close(); err != nil {
			s.logger.Warn("failed to close call-mirror producer", "error", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}

// --- request/response wire types ----------------------------------------

type registerWorkflowsRequest struct {
	Workflows []engine.WorkflowDocument `json:"workflows"`
}

type runRequest struct {
	Input map[string]interface{} `json:"input,omitempty"`
}

type debugStartRequest struct {
	Breakpoints map[string][]string `json:"breakpoints,omitempty"`
}

// --- handlers ------------------------------------------------------------

func (s *Server) handleRegisterWorkflows(w http.ResponseWriter, r *http.Request) {
	var req registerWorkflowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.manager.RegisterWorkflows(req.Workflows); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := s.manager.Run(r.Context(), req.Input)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (s *Server) handleDebugStart(w http.ResponseWriter, r *http.Request) {
	if !s.acquireDebugSession() {
		s.respondError(w, http.StatusTooManyRequests, fmt.Errorf("max %d parallel debug sessions already running", s.maxDebugSessions))
		return
	}

	var req debugStartRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	go func() {
		defer s.releaseDebugSession()
		if err := s.manager.DebugRun(context.Background(), req.Breakpoints); err != nil {
			s.logger.Error("debug run failed to start", "error", err)
		}
	}()
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// acquireDebugSession reserves a debug-session slot, bounding how many
// /debug/start runs — each holding a Manager's call stack open across an
// arbitrary number of pause/resume round trips — can be in flight at once.
func (s *Server) acquireDebugSession() bool {
	s.debugSessionsMu.Lock()
	defer s.debugSessionsMu.Unlock()
	if s.debugSessions >= s.maxDebugSessions {
		return false
	}
	s.debugSessions++
	return true
}

func (s *Server) releaseDebugSession() {
	s.debugSessionsMu.Lock()
	defer s.debugSessionsMu.Unlock()
	if s.debugSessions > 0 {
		s.debugSessions--
	}
}

func (s *Server) handleDebugPause(w http.ResponseWriter, r *http.Request) {
	s.manager.PauseCurrent()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "pause requested"})
}

func (s *Server) handleDebugResume(w http.ResponseWriter, r *http.Request) {
	s.manager.ResumeCurrent()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleDebugStep(w http.ResponseWriter, r *http.Request) {
	s.manager.StepCurrent(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "stepped"})
}

func (s *Server) handleDebugTerminate(w http.ResponseWriter, r *http.Request) {
	s.manager.TerminateCurrent()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "terminated"})
}

func (s *Server) handleDebugStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": s.manager.GetAllStatus(),
		"memory":    s.manager.MemoryUsageSummary(),
	})
}

// handleEventStream upgrades to a websocket connection and forwards every
// event on the manager's aggregated bus until the client disconnects.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events := make(chan engine.EngineEvent, 256)
	s.manager.Events().On(engine.EventEngine, func(payload interface{}) {
		if ev, ok := payload.(engine.EngineEvent); ok {
			select {
			case events <- ev:
			default:
				s.logger.Warn("debug event stream backpressure, dropping event", "event", ev.Name)
			}
		}
	})

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
		s.logger.Info("HTTP request completed", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "error", rec)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
