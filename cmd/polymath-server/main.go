package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polymath-app/polymath-go/internal/buildinfo"
	"github.com/polymath-app/polymath-go/internal/config"
	"github.com/polymath-app/polymath-go/internal/database"
	"github.com/polymath-app/polymath-go/internal/embeddings"
	"github.com/polymath-app/polymath-go/internal/metrics"
	"github.com/polymath-app/polymath-go/internal/reasoning"
	"github.com/polymath-app/polymath-go/internal/server"
	"github.com/polymath-app/polymath-go/pkg/polymath"
)

var (
	libsqlURL = flag.String("libsql-url", "", "libSQL database URL (default: file:./polymath.db)")
	authToken = flag.String("auth-token", "", "Authentication token for remote databases")
	transport = flag.String("transport", "", "Transport to use: http or mcp (default: http)")
	addr      = flag.String("addr", "", "Address to listen on for the HTTP transport")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal, closing server")
		cancel()
	}()

	dbConfig := database.NewConfig()
	if *libsqlURL != "" {
		dbConfig.URL = *libsqlURL
	}
	if *authToken != "" {
		dbConfig.AuthToken = *authToken
	}

	metrics.InitFromEnv()

	store, err := database.NewStore(dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("error closing database")
		}
	}()

	embedder := embeddings.NewFromEnv()
	if embedder == nil {
		log.Warn().Msg("no embeddings provider configured, suggestion and search operations will fail")
	} else {
		// Stored vectors must match the schema's F32_BLOB dimensionality.
		embedder = embeddings.WrapToDims(embedder, dbConfig.EmbeddingDims, os.Getenv("EMBEDDINGS_ADAPT_MODE"))
	}
	reasoner := reasoning.NewFromEnv()
	if reasoner == nil {
		log.Warn().Msg("no reasoning provider configured, suggestions will carry fallback reasoning")
	}

	svc := polymath.New(store, embedder, reasoner, cfg.Policy)

	log.Info().
		Str("version", buildinfo.Version).
		Str("transport", cfg.Transport).
		Msg("starting polymath server")

	switch cfg.Transport {
	case "mcp":
		if err := server.NewMCPServer(svc).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("mcp server error")
		}
	default:
		runHTTP(ctx, cfg.Addr, svc)
	}
}

func runHTTP(ctx context.Context, addr string, svc *polymath.Service) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, log.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	// Stdout is the MCP wire when serving stdio, so logs go to stderr.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
