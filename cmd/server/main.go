package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"promptguessr/internal/config"
	"promptguessr/internal/db"
	"promptguessr/internal/gamesvc"
	"promptguessr/internal/gateway"
	"promptguessr/internal/httpapi"
	"promptguessr/internal/imagegen"
	"promptguessr/internal/kv"
	"promptguessr/internal/orchestrator"
	"promptguessr/internal/scoring"

	xrate "golang.org/x/time/rate"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	store, err := newKVStore(cfg)
	if err != nil {
		log.Fatalf("failed to open KV store: %v", err)
	}

	generator, err := imagegen.New(imagegen.Config{
		Provider:          cfg.ImageProvider,
		EnableFallback:    cfg.EnableFallback,
		FallbackProvider:  cfg.FallbackProvider,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIModel:       cfg.OpenAIModel,
		HuggingFaceAPIKey: cfg.HuggingFaceAPIKey,
		HuggingFaceModel:  cfg.HuggingFaceModel,
		HTTPTimeout:       cfg.GenerationTimeout,
	})
	if err != nil {
		log.Fatalf("failed to configure image generator: %v", err)
	}

	manager := gamesvc.NewManager(store)

	gw := gateway.New(gateway.Config{
		ReadLimitBytes: cfg.WSReadLimitBytes,
		WriteTimeout:   cfg.WSWriteTimeout,
		RateLimit:      xrate.Limit(cfg.RateLimitPerSec),
		RateBurst:      cfg.RateLimitBurst,
	}, manager, logger, corsCheckOrigin(cfg))

	orch := orchestrator.New(manager, generator, scoring.Score, gw, logger)
	gw.SetOrchestrator(orch)

	api := httpapi.New(manager, store, httpapi.Config{
		AllowedOrigins:  parseOrigins(cfg.CORSOrigin),
		Production:      cfg.Production,
		RateLimitPerSec: cfg.HTTPRateLimitPerSec,
		RateLimitBurst:  cfg.HTTPRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.HandleFunc("/ws", gw.ServeWS)

	logger.Info("promptguessr server listening", "addr", cfg.HTTPAddr())
	if err := http.ListenAndServe(cfg.HTTPAddr(), mux); err != nil {
		log.Fatal(err)
	}
}

func newKVStore(cfg config.Config) (kv.Store, error) {
	switch cfg.KVBackend {
	case "postgres":
		conn, err := db.Open()
		if err != nil {
			return nil, err
		}
		return kv.NewPostgresStore(conn), nil
	default:
		return kv.NewMemoryStore(), nil
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func corsCheckOrigin(cfg config.Config) func(*http.Request) bool {
	allowed := parseOrigins(cfg.CORSOrigin)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" && !cfg.Production {
				return true
			}
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
