package controllers

import (
	"context"
	"net/http"

	"github.com/dormmatehq/dormmate-backend/api/responses"
	"github.com/dormmatehq/dormmate-backend/pkg/config"
	"github.com/dormmatehq/dormmate-backend/pkg/db"
	pkgerrors "github.com/dormmatehq/dormmate-backend/pkg/errors"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/dormmatehq/dormmate-backend/pkg/redis"
)

// pinger is satisfied by the db and redis clients.
type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-DormMate-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every configured backing store answers.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbc *db.Client, rdb *redis.Client) http.HandlerFunc {
	type probe struct {
		name string
		p    pinger
	}
	var probes []probe
	if dbc != nil {
		probes = append(probes, probe{"database", dbc})
	}
	if rdb != nil {
		probes = append(probes, probe{"redis", rdb})
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-DormMate-Env", cfg.App.Env)

		for _, pr := range probes {
			if err := pr.p.Ping(r.Context()); err != nil {
				wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, pr.name+" unavailable")
				responses.WriteError(r.Context(), logg, w, wrapped)
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
