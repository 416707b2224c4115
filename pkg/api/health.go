package api

import (
	"net/http"
)

type healthReport struct {
	Status      string           `json:"status"`
	Store       bool             `json:"store"`
	Cache       bool             `json:"cache"`
	Projections map[string]int64 `json:"projections,omitempty"`
	Lag         int64            `json:"lag"`
}

// handleHealth aggregates store, cache, and projection health. The
// service degrades rather than fails: a closed cache or lagging
// projection reports 503 while the process keeps serving.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report := healthReport{Status: "ok", Store: true, Cache: true}

	if err := rt.es.Health(ctx); err != nil {
		report.Store = false
		report.Status = "degraded"
	}
	if err := rt.cache.Health(); err != nil {
		report.Cache = false
		report.Status = "degraded"
	}

	// Lag is the distance between the newest event and the slowest
	// projection bookmark.
	var latest int64
	if instanceIDs, err := rt.es.DistinctInstanceIDs(ctx); err == nil {
		for _, instanceID := range instanceIDs {
			if position, err := rt.es.LatestPosition(ctx, instanceID); err == nil && position > latest {
				latest = position
			}
		}
	}
	names := rt.engine.Names()
	if len(names) > 0 {
		report.Projections = make(map[string]int64, len(names))
		for _, name := range names {
			bookmark, err := rt.engine.Bookmarks().Load(ctx, name)
			if err != nil {
				continue
			}
			report.Projections[name] = bookmark.Position
			if lag := latest - bookmark.Position; lag > report.Lag {
				report.Lag = lag
			}
		}
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
