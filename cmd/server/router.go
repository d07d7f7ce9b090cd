package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// jobStatus is one row of the /jobs response.
type jobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextFire time.Time `json:"next_fire"`
}

// jobsResponse describes the job runner state.
type jobsResponse struct {
	Running bool        `json:"running"`
	Jobs    []jobStatus `json:"jobs"`
}

// setupRouter configures the operational HTTP surface: liveness, readiness
// and the job runner status. Command ingestion lives with the chat platform
// adapter, not here.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := app.db.PingContext(ctx); err != nil {
			app.logger.Error("readiness check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/jobs", func(w http.ResponseWriter, _ *http.Request) {
		resp := jobsResponse{
			Running: app.runner.Running(),
			Jobs:    make([]jobStatus, 0, len(app.jobs)),
		}
		loc := app.loc
		if loc == nil {
			loc = time.UTC
		}
		now := time.Now().In(loc)
		for _, job := range app.jobs {
			resp.Jobs = append(resp.Jobs, jobStatus{
				Name:     job.Name,
				Schedule: job.Schedule.String(),
				NextFire: job.Schedule.Next(now, loc),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			app.logger.Error("failed to encode jobs response", "error", err)
		}
	})

	return r
}
