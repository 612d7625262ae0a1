package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"signal-trader/internal/engine"
	"signal-trader/internal/logger"
	"signal-trader/internal/store"
	"signal-trader/internal/trace"
	"signal-trader/internal/types"
)

func main() {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	ctx := context.Background()

	if err := trace.Init(); err != nil {
		logger.Warn(ctx, "Failed to initialize tracer, continuing without tracing", "error", err)
	}

	configPath := "config.yaml"
	if v := os.Getenv("TRADER_CONFIG"); v != "" {
		configPath = v
	}
	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		os.Exit(1)
	}
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode, venues are simulated")
	}

	sys, err := buildSystem(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to build system", err)
		os.Exit(1)
	}

	restored, err := sys.engine.Restore(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Startup recovery failed", err)
		os.Exit(1)
	}
	if restored {
		logger.Info(ctx, "Resumed in-flight trades from checkpoints")
	}

	hkCtx, stopHousekeeping := context.WithCancel(ctx)
	defer stopHousekeeping()
	sys.core.StartHousekeeping(hkCtx, time.Duration(cfg.Engine.HousekeepingSecs)*time.Second)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: newMux(sys),
	}
	go func() {
		logger.Info(ctx, "Signal intake listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "HTTP server failed", err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	logger.Info(ctx, "Shutting down, in-flight trades will resume from checkpoints")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = trace.Shutdown(shutdownCtx)
}

func newMux(sys *system) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/signal", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var sig types.Signal
		if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
			http.Error(w, "invalid signal payload", http.StatusBadRequest)
			return
		}

		sig, ok, reason := sys.filter.Admit(r.Context(), sig)
		if !ok {
			logger.Info(r.Context(), "Signal ignored", "ticker", sig.Ticker, "venue", sig.Venue, "reason", reason)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": reason})
			return
		}

		sys.primePaperTicker(sig)
		jobID, err := sys.engine.Submit(r.Context(), sig)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, engine.ErrVenueBusy) {
				status = http.StatusConflict
			} else if errors.Is(err, engine.ErrUnknownVenue) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]string{"status": "rejected", "reason": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": jobID})
	})

	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		report, err := sys.engine.Report(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	mux.HandleFunc("/venues/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/venues/")
		name, ok := strings.CutSuffix(rest, "/busy")
		if !ok || name == "" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"venue": name, "busy": sys.engine.VenueBusy(name)})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
