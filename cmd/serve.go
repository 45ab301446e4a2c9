package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docref/internal/docstore"
	"github.com/sells-group/docref/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		// Expired memory-cache entries are swept in the background for the
		// lifetime of the server.
		go env.Memory.StartSweeping(ctx, time.Duration(cfg.Cache.SweepIntervalSecs)*time.Second)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the operator HTTP surface.
func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/health", handleHealth(env))
	r.Post("/health", handleHealthAction(env))
	r.Get("/cache", handleCacheStatus(env))
	r.Delete("/cache", handleCachePurge(env))
	r.Post("/cache", handleCacheDelete(env))
	r.Get("/documents/{documentID}", handleDocument(env))
	r.Post("/citations", handleCitations(env))

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleHealth(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := env.Monitor.HealthStatus()

		status := http.StatusOK
		if report.Status == resilience.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, map[string]any{
			"status": report.Status,
			"checks": map[string]any{
				"connection_diagnostics": map[string]any{
					"circuit_breaker_active": report.CircuitBreakerOpen,
					"success_rate":           report.SuccessRate,
					"consecutive_failures":   report.ConsecutiveFailures,
					"last_attempt":           report.LastAttempt,
				},
			},
			"issues":          report.Issues,
			"recommendations": report.Recommendations,
		})
	}
}

func handleHealthAction(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var performed []string
		switch req.Action {
		case "reset_circuit_breaker":
			env.Monitor.ResetCircuit()
			performed = append(performed, "reset_circuit_breaker")
		case "reset_metrics":
			env.Monitor.ResetMetrics()
			performed = append(performed, "reset_metrics")
		case "clear_cache":
			env.Memory.Clear()
			performed = append(performed, "clear_cache")
		case "reset_all":
			env.Monitor.ResetCircuit()
			env.Monitor.ResetMetrics()
			env.Memory.Clear()
			performed = append(performed, "reset_circuit_breaker", "reset_metrics", "clear_cache")
		default:
			writeError(w, http.StatusBadRequest, "unrecognized action: "+req.Action)
			return
		}

		zap.L().Info("health action performed", zap.Strings("actions", performed))
		writeJSON(w, http.StatusOK, map[string]any{"actions_performed": performed})
	}
}

func handleCacheStatus(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := env.Disk.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var total int64
		for _, f := range files {
			total += f.Size
		}
		if files == nil {
			files = []docstore.CachedFile{}
		}

		payload := map[string]any{
			"fileCount": len(files),
			"totalSize": total,
			"files":     files,
			"memoryCache": map[string]any{
				"size":    env.Memory.Len(),
				"hitRate": env.Memory.HitRate(),
			},
		}
		if env.Store != nil {
			if stats, err := env.Store.RetrievalStats(r.Context()); err == nil {
				payload["retrievals"] = stats
			} else {
				zap.L().Warn("cache status: retrieval stats unavailable", zap.Error(err))
			}
		}

		writeJSON(w, http.StatusOK, payload)
	}
}

func handleCachePurge(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours := 0
		if v := r.URL.Query().Get("olderThan"); v != "" {
			h, err := strconv.Atoi(v)
			if err != nil || h < 0 {
				writeError(w, http.StatusBadRequest, "olderThan must be a non-negative integer (hours)")
				return
			}
			hours = h
		}

		removed, err := env.Disk.PurgeOlderThan(time.Duration(hours) * time.Hour)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		env.Memory.Clear()

		zap.L().Info("cache purged", zap.Int("removed", removed), zap.Int("older_than_hours", hours))
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
	}
}

func handleCacheDelete(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string `json:"action"`
			FileID string `json:"fileId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Action != "delete" {
			writeError(w, http.StatusBadRequest, "unrecognized action: "+req.Action)
			return
		}
		if req.FileID == "" {
			writeError(w, http.StatusBadRequest, "fileId is required")
			return
		}

		removed, err := env.Disk.DeleteByID(req.FileID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, "no cache entry for "+req.FileID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": req.FileID})
	}
}

func handleDocument(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := chi.URLParam(r, "documentID")

		data, err := env.Pipeline.Retrieve(r.Context(), documentID)
		if err != nil {
			if resilience.IsExhausted(err) {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(data) //nolint:errcheck
	}
}

func handleCitations(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}

		refs := env.Parser.Parse(req.Text)

		known, err := env.Registry.ListDocuments(r.Context())
		if err != nil {
			// Parsing is still useful without the registry; resolve against
			// an empty document set and report the degradation.
			zap.L().Warn("citations: document listing failed", zap.Error(err))
			known = nil
		}

		contexts := env.Resolver.Resolve(refs, known)
		autoShow := make([]bool, len(contexts))
		for i, c := range contexts {
			autoShow[i] = env.Resolver.ShouldAutoShow(c)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"references": refs,
			"contexts":   contexts,
			"auto_show":  autoShow,
		})
	}
}
