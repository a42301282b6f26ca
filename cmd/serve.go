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
	"golang.org/x/sync/errgroup"

	"github.com/jobscout/jobscout/internal/engine"
	"github.com/jobscout/jobscout/internal/model"
	"github.com/jobscout/jobscout/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(eng, st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func newRouter(eng *engine.Engine, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/searches", func(w http.ResponseWriter, req *http.Request) {
		var criteria model.SearchCriteria
		if err := json.NewDecoder(req.Body).Decode(&criteria); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if criteria.Query == "" || criteria.Location == "" {
			writeError(w, http.StatusBadRequest, "query and location are required")
			return
		}
		res, err := eng.Start(req.Context(), criteria)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, res)
	})

	r.Post("/v1/sessions/{id}/refine", func(w http.ResponseWriter, req *http.Request) {
		id, ok := sessionID(w, req)
		if !ok {
			return
		}
		var refinements model.Refinements
		if err := json.NewDecoder(req.Body).Decode(&refinements); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res, err := eng.Refine(req.Context(), id, refinements)
		if err != nil {
			status := http.StatusBadGateway
			if eris.Is(err, store.ErrSessionNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/v1/sessions/{id}/run", func(w http.ResponseWriter, req *http.Request) {
		id, ok := sessionID(w, req)
		if !ok {
			return
		}
		var opts engine.RunOptions
		if req.ContentLength > 0 {
			if err := json.NewDecoder(req.Body).Decode(&opts); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		// Runs are long; accept and report through the session record.
		go func() {
			stats, err := eng.Run(context.WithoutCancel(req.Context()), id, opts)
			if err != nil {
				zap.L().Error("run failed", zap.Int64("session_id", id), zap.Error(err))
				return
			}
			zap.L().Info("run finished",
				zap.Int64("session_id", stats.SessionID),
				zap.Int("persisted", stats.Persisted),
				zap.Int("skipped", stats.Skipped))
		}()
		writeJSON(w, http.StatusAccepted, map[string]int64{"session_id": id})
	})

	r.Post("/v1/control/pause", func(w http.ResponseWriter, req *http.Request) {
		eng.Pause()
		writeJSON(w, http.StatusOK, map[string]string{"state": "paused"})
	})
	r.Post("/v1/control/resume", func(w http.ResponseWriter, req *http.Request) {
		eng.Resume()
		writeJSON(w, http.StatusOK, map[string]string{"state": "running"})
	})
	r.Post("/v1/control/stop", func(w http.ResponseWriter, req *http.Request) {
		eng.Stop()
		writeJSON(w, http.StatusOK, map[string]string{"state": "stopping"})
	})

	r.Get("/v1/sessions", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		sessions, err := st.ListSessions(req.Context(), store.SessionFilter{
			Status: model.SessionStatus(q.Get("status")),
			Source: q.Get("source"),
			Limit:  limit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	r.Get("/v1/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, ok := sessionID(w, req)
		if !ok {
			return
		}
		sess, err := st.GetSession(req.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if eris.Is(err, store.ErrSessionNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sess)
	})

	return r
}

func sessionID(w http.ResponseWriter, req *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
