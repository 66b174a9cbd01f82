package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/susu3304/tablesplit/internal/config"
	"github.com/susu3304/tablesplit/internal/tablesession"
)

// SettlementReader returns materialized settlements of closed sessions.
type SettlementReader interface {
	Settlement(ctx context.Context, sessionID string) (*tablesession.Settlement, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type API struct {
	router      *mux.Router
	server      *http.Server
	registry    *tablesession.Registry
	settlements SettlementReader
	pinger      Pinger
	config      *config.Config
	jwtSecret   []byte
	upgrader    websocket.Upgrader
}

func New(cfg *config.Config, registry *tablesession.Registry, settlements SettlementReader, pinger Pinger) *API {
	api := &API{
		router:      mux.NewRouter(),
		registry:    registry,
		settlements: settlements,
		pinger:      pinger,
		config:      cfg,
		jwtSecret:   []byte(cfg.JWTSecret),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.CORSOrigins),
		},
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Public endpoints
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")

	// WebSocket authenticates itself so it can accept anonymous connections
	a.router.HandleFunc("/ws/table_sessions/{session_id}", a.handleWebSocket).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/table_sessions/{session_id}", a.handleGetSession).Methods("GET")
	protected.HandleFunc("/table_sessions/{session_id}/summary", a.handleGetSummary).Methods("GET")
	protected.HandleFunc("/table_sessions/{session_id}/settlement", a.handleGetSettlement).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	// When AllowedOrigins is "*", AllowCredentials must be false
	wildcard := len(a.config.CORSOrigins) == 1 && a.config.CORSOrigins[0] == "*"
	corsOptions := cors.Options{
		AllowedOrigins:   a.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: !wildcard,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Start serves until Shutdown is called.
func (a *API) Start() error {
	a.server = &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("API server listening on http://%s", a.config.WebBind)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
