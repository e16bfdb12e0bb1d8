package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the discovery HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initDiscovery(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(ctx, env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.WithoutCancel(ctx))
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newServeMux builds the HTTP routes. Discovery requests run
// asynchronously; clients poll the run endpoint for the result.
func newServeMux(ctx context.Context, env *discoveryEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /discover", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Topic       string `json:"topic"`
			TargetCount int    `json:"target_count"`
			SessionID   string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Topic == "" {
			http.Error(w, `{"error":"topic is required"}`, http.StatusBadRequest)
			return
		}
		// An absent session_id leaves the campaign scoped to the topic
		// alone; repeat requests then deduplicate against each other.

		run, err := env.store.CreateRun(r.Context(), req.Topic, req.SessionID)
		if err != nil {
			zap.L().Error("create run failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}

		// Run discovery asynchronously under the server's lifetime, not
		// the request's.
		go func() {
			result, err := env.executeRun(ctx, run.ID, req.Topic, req.SessionID, req.TargetCount)
			if err != nil {
				zap.L().Error("discovery run failed",
					zap.String("run_id", run.ID),
					zap.String("topic", req.Topic),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("discovery run complete",
				zap.String("run_id", run.ID),
				zap.String("topic", req.Topic),
				zap.Int("emails", result.TotalEmails),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status":     "accepted",
			"run_id":     run.ID,
			"topic":      req.Topic,
			"session_id": req.SessionID,
		})
	})

	mux.HandleFunc("GET /runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		run, err := env.store.GetRun(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(run)
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
