package handler

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spinhall/roulette/internal/infra"
	"github.com/spinhall/roulette/internal/scheduler"
)

// HealthHandler reports process health: database reachability (when a pool is
// configured) and whether the round engine is stalled on settlement.
func HealthHandler(pool *pgxpool.Pool, engine *scheduler.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{"status": "ok"}

		if pool != nil {
			if err := infra.HealthCheck(r.Context(), pool); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body["database"] = err.Error()
			}
		}
		if engine.Stalled() {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["round_engine"] = "stalled"
		}

		RespondJSON(w, status, body)
	}
}
