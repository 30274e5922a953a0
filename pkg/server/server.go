package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	gql "github.com/mnohosten/pkto/pkg/graphql"
	"github.com/mnohosten/pkto/pkg/audit"
	"github.com/mnohosten/pkto/pkg/auth"
	"github.com/mnohosten/pkto/pkg/compression"
	"github.com/mnohosten/pkto/pkg/metrics"
	"github.com/mnohosten/pkto/pkg/server/handlers"
	"github.com/mnohosten/pkto/pkg/stm"
)

// Server is the HTTP control plane in front of one PKTO runtime.
type Server struct {
	config    *Config
	rt        *stm.Runtime
	router    *chi.Mux
	httpSrv   *http.Server
	startTime time.Time

	metricsCollector *metrics.MetricsCollector
	promExporter     *metrics.PrometheusExporter
	auditLogger      *audit.AuditLogger
	tokenIssuer      *auth.TokenIssuer
	compressor       *compression.Compressor
	hub              *handlers.Hub
	h                *handlers.Handlers
}

// New creates a new HTTP server instance wrapping a freshly constructed
// stm.Runtime sized per config.
func New(config *Config) (*Server, error) {
	if config.EnableTLS {
		if config.TLSCertFile == "" || config.TLSKeyFile == "" {
			return nil, fmt.Errorf("TLS enabled but certificate or key file not specified")
		}
		if _, err := os.Stat(config.TLSCertFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("TLS certificate file not found: %s", config.TLSCertFile)
		}
		if _, err := os.Stat(config.TLSKeyFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("TLS key file not found: %s", config.TLSKeyFile)
		}
	}

	rt := stm.New(config.TobjCount, &stm.Config{K: config.K})

	metricsCollector := metrics.NewMetricsCollector()
	promExporter := metrics.NewPrometheusExporter(metricsCollector, rt)

	auditLogger, err := audit.NewAuditLogger(audit.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}

	var tokenIssuer *auth.TokenIssuer
	if config.AuthSecret != "" {
		if len(config.AuthSalt) > 0 {
			tokenIssuer = auth.NewTokenIssuer(config.AuthSecret, config.AuthSalt)
		} else {
			issuer, salt, err := auth.NewTokenIssuerRandomSalt(config.AuthSecret)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
			}
			tokenIssuer = issuer
			config.AuthSalt = salt
		}
	}

	compressor, err := compression.NewCompressor(compression.ZstdConfig(3))
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot compressor: %w", err)
	}

	hub := handlers.NewHub()
	h := handlers.New(rt, metricsCollector, auditLogger, hub)

	srv := &Server{
		config:           config,
		rt:               rt,
		router:           chi.NewRouter(),
		startTime:        time.Now(),
		metricsCollector: metricsCollector,
		promExporter:     promExporter,
		auditLogger:      auditLogger,
		tokenIssuer:      tokenIssuer,
		compressor:       compressor,
		hub:              hub,
		h:                h,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	if config.EnableGraphQL {
		if err := srv.setupGraphQLRoutes(); err != nil {
			return nil, fmt.Errorf("failed to setup GraphQL routes: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return srv, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}

	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}

	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/_health", s.h.Health(s.startTime))
	s.router.Get("/_metrics", s.handlePrometheusMetrics)
	s.router.Get("/_snapshot", s.handleSnapshot)
	s.router.Get("/_events", s.hub.ServeEvents)

	s.router.With(s.requireAuth(auth.PermissionViewStats)).Get("/stats", s.h.Stats)

	s.router.Route("/tx", func(r chi.Router) {
		r.With(s.requireAuth(auth.PermissionRead)).Post("/", s.h.Begin)

		r.Route("/{id}", func(r chi.Router) {
			r.With(s.requireAuth(auth.PermissionRead)).Post("/read", s.h.Read)
			r.With(s.requireAuth(auth.PermissionWrite)).Post("/write", s.h.Write)
			r.With(s.requireAuth(auth.PermissionWrite)).Post("/commit", s.h.Commit)
			r.With(s.requireAuth(auth.PermissionWrite)).Post("/abort", s.h.Abort)
		})
	})
}

func (s *Server) setupGraphQLRoutes() error {
	graphqlHandler, err := gql.NewHandler(s.rt)
	if err != nil {
		return fmt.Errorf("failed to create GraphQL handler: %w", err)
	}

	s.router.With(s.requireAuth(auth.PermissionRead)).Post("/graphql", graphqlHandler.ServeHTTP)
	s.router.Get("/graphiql", gql.GraphiQLHandler())

	return nil
}

// requireAuth returns middleware enforcing permission on the wrapped
// route. When the server has no AuthSecret configured, the control
// plane is open and this middleware is a no-op, matching pkg/auth's
// stateless design: there is nothing to check without a shared secret
// to verify against.
func (s *Server) requireAuth(permission auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.tokenIssuer == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, err := auth.ParseAuthHeader(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			claims, err := s.tokenIssuer.CheckPermission(token, permission)
			if err != nil {
				status := http.StatusUnauthorized
				if err == auth.ErrPermissionDenied {
					status = http.StatusForbidden
				}
				WriteError(w, status, "unauthorized", err.Error())
				return
			}

			ctx := handlers.WithPrincipal(r.Context(), claims.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := s.promExporter.WriteMetrics(w); err != nil {
		http.Error(w, fmt.Sprintf("Error writing metrics: %v", err), http.StatusInternalServerError)
	}
}

// handleSnapshot dumps every tobj's current committed value as
// compressed JSON, the diagnostic counterpart to the transactional
// surface: a point-in-time view with no isolation guarantee against
// concurrent commits. The ?format= query param selects the codec
// (zstd, the server's default; snappy, gzip, zlib, or none).
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "zstd"
	}

	compressor := s.compressor
	var cfg *compression.Config
	switch format {
	case "zstd":
		// reuse the server's long-lived zstd encoder
	case "snappy":
		cfg = compression.SnappyConfig()
	case "gzip":
		cfg = compression.GzipConfig(6)
	case "zlib":
		cfg = &compression.Config{Algorithm: compression.AlgorithmZlib, Level: 6}
	case "none":
		cfg = &compression.Config{Algorithm: compression.AlgorithmNone}
	default:
		http.Error(w, fmt.Sprintf("unsupported snapshot format: %s", format), http.StatusBadRequest)
		return
	}
	if cfg != nil {
		c, err := compression.NewCompressor(cfg)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to build %s compressor: %v", format, err), http.StatusInternalServerError)
			return
		}
		defer c.Close()
		compressor = c
	}

	raw, err := json.Marshal(s.h.Views())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal snapshot: %v", err), http.StatusInternalServerError)
		return
	}

	compressed, err := compressor.Compress(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to compress snapshot: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/"+format)
	w.Header().Set("X-Uncompressed-Length", fmt.Sprintf("%d", len(raw)))
	w.Header().Set("X-Compression-Ratio", fmt.Sprintf("%.4f", compression.CompressionRatio(len(raw), len(compressed))))
	w.Header().Set("X-Space-Savings-Percent", fmt.Sprintf("%.2f", compression.SpaceSavings(len(raw), len(compressed))))
	w.WriteHeader(http.StatusOK)
	w.Write(compressed)
}

// Start starts the HTTP server, blocking until it exits or a shutdown
// signal is received.
func (s *Server) Start() error {
	protocol := "http"
	if s.config.EnableTLS {
		protocol = "https"
	}
	fmt.Printf("pkto control plane starting on %s://%s:%d\n", protocol, s.config.Host, s.config.Port)
	fmt.Printf("tobj count: %d, K: %d\n", s.config.TobjCount, s.config.K)

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.config.EnableTLS {
			err = s.httpSrv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("\nreceived signal: %v\n", sig)
		return s.Shutdown()
	}
}

// Runtime returns the underlying stm.Runtime.
func (s *Server) Runtime() *stm.Runtime { return s.rt }

// GetMetricsCollector returns the metrics collector.
func (s *Server) GetMetricsCollector() *metrics.MetricsCollector {
	return s.metricsCollector
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	fmt.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		fmt.Printf("server shutdown error: %v\n", err)
		return err
	}

	if err := s.auditLogger.Close(); err != nil {
		fmt.Printf("audit logger close error: %v\n", err)
	}

	if err := s.compressor.Close(); err != nil {
		fmt.Printf("compressor close error: %v\n", err)
	}

	fmt.Println("server shutdown complete")
	return nil
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Printf("Error encoding JSON response: %v\n", err)
	}
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, statusCode int, errorType, message string) {
	response := map[string]interface{}{
		"ok":      false,
		"error":   errorType,
		"message": message,
		"code":    statusCode,
	}
	WriteJSON(w, statusCode, response)
}

// WriteSuccess writes a success response.
func WriteSuccess(w http.ResponseWriter, result interface{}) {
	response := map[string]interface{}{
		"ok":     true,
		"result": result,
	}
	WriteJSON(w, http.StatusOK, response)
}
