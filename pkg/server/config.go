package server

import "time"

// Config holds server configuration settings for the PKTO control
// plane.
type Config struct {
	Host string // Server host address
	Port int    // Server port

	TobjCount int // N: fixed number of tobjs the runtime manages
	K         int // Per-tobj bound on retained version history

	ReadTimeout    time.Duration // HTTP read timeout
	WriteTimeout   time.Duration // HTTP write timeout
	IdleTimeout    time.Duration // HTTP idle timeout
	MaxRequestSize int64         // Maximum request body size in bytes

	EnableCORS     bool     // Enable CORS middleware
	AllowedOrigins []string // CORS allowed origins
	EnableLogging  bool     // Enable request logging

	// TLS/SSL configuration
	EnableTLS   bool   // Enable TLS/SSL
	TLSCertFile string // Path to TLS certificate file
	TLSKeyFile  string // Path to TLS private key file

	// GraphQL configuration
	EnableGraphQL bool // Enable GraphQL API endpoint

	// AuthSecret, when non-empty, enables bearer-token auth on every
	// /tx endpoint (begin, read, write, commit, abort), on /stats, and
	// on /graphql. The /_health, /_metrics, /_snapshot and /_events
	// routes stay open. Empty means the control plane is open,
	// suitable only for local development.
	AuthSecret string
	// AuthSalt persists the PBKDF2 salt across restarts so tokens
	// issued before a restart keep verifying. Empty means a fresh
	// random salt is generated at startup (tokens issued in a prior
	// run stop verifying, by design — see pkg/auth).
	AuthSalt []byte
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           8080,
		TobjCount:      1000,
		K:              5,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 1 * 1024 * 1024, // 1MB; requests are small JSON envelopes
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableLogging:  true,
		EnableTLS:      false,
		TLSCertFile:    "",
		TLSKeyFile:     "",
		EnableGraphQL:  false,
		AuthSecret:     "",
	}
}
