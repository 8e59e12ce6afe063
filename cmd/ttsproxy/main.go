// Command ttsproxy wires the speculative-synthesis engine up to a minimal
// HTTP/WS surface: enough to demonstrate the write path (LLM fragment
// stream -> splitter -> cache) and the read path (full text -> cache.Get),
// without pretending to be a complete production gateway.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubenschmidt/gsv-tts-proxy/internal/cache"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/config"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/env"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/rotator"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/streamsink"
	"github.com/hubenschmidt/gsv-tts-proxy/internal/ttsclient"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	rot, err := rotator.New(cfg.Tokens)
	if err != nil {
		slog.Error("rotator init failed", "error", err)
		os.Exit(1)
	}

	tts := ttsclient.New(cfg, rot)
	c := cache.New(cfg.CacheMaxSize, cfg.CacheTTL, cfg.CacheCleanupInterval, tts)

	sink := streamsink.NewHandler(c, streamsink.Config{
		Model:          cfg.TTSModel,
		SplitterMaxLen: cfg.SplitterMaxLen,
		SplitterMinLen: cfg.SplitterMinLen,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cache: c,
		model: cfg.TTSModel,
		sink:  sink,
	})

	port := env.Str("TTSPROXY_PORT", "8090")
	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv, c, tts)

	slog.Info("ttsproxy starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("ttsproxy stopped")
}

func awaitShutdown(srv *http.Server, c *cache.Cache, tts *ttsclient.Client) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.Close()
	tts.Close()
	srv.Shutdown(ctx)
}
