package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mnohosten/pkto/pkg/server"
)

func main() {
	host := flag.String("host", "localhost", "Server host address")
	port := flag.Int("port", 8080, "Server port")
	tobjCount := flag.Int("tobjs", 1000, "Number of transactional objects the runtime manages")
	k := flag.Int("k", 5, "Per-tobj bound on retained version history")
	corsOrigin := flag.String("cors-origin", "*", "CORS allowed origin")
	enableTLS := flag.Bool("tls", false, "Enable TLS/SSL")
	tlsCert := flag.String("tls-cert", "", "Path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "Path to TLS private key file")
	tlsGenCert := flag.Bool("tls-gen-cert", false, "Generate a self-signed cert/key at -tls-cert/-tls-key if they don't already exist")
	enableGraphQL := flag.Bool("graphql", false, "Enable GraphQL API endpoint (/graphql) and GraphiQL playground (/graphiql)")
	authSecret := flag.String("secret", "", "Shared secret enabling bearer-token auth on mutating endpoints; empty leaves the control plane open")
	flag.Parse()

	if *enableTLS && *tlsGenCert {
		if *tlsCert == "" || *tlsKey == "" {
			fmt.Fprintln(os.Stderr, "-tls-gen-cert requires both -tls-cert and -tls-key")
			os.Exit(1)
		}
		if _, err := os.Stat(*tlsCert); os.IsNotExist(err) {
			if err := server.GenerateSelfSignedCert(*tlsCert, *tlsKey, *host); err != nil {
				fmt.Fprintf(os.Stderr, "failed to generate self-signed certificate: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("generated self-signed certificate at %s (key: %s)\n", *tlsCert, *tlsKey)
		}
	}

	config := server.DefaultConfig()
	config.Host = *host
	config.Port = *port
	config.TobjCount = *tobjCount
	config.K = *k
	config.AllowedOrigins = []string{*corsOrigin}
	config.EnableTLS = *enableTLS
	config.TLSCertFile = *tlsCert
	config.TLSKeyFile = *tlsKey
	config.EnableGraphQL = *enableGraphQL
	config.AuthSecret = *authSecret

	srv, err := server.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
