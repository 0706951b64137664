package controllers

import (
	"context"
	"net/http"

	"github.com/julianshen/twspoc/api/responses"
	"github.com/julianshen/twspoc/pkg/config"
	pkgerrors "github.com/julianshen/twspoc/pkg/errors"
	"github.com/julianshen/twspoc/pkg/logger"
)

const envHeader = "X-Notifsync-Env"

// Pinger is satisfied by the push transport clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness reports whether the store has received its first view.
type Readiness interface {
	Ready() bool
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, readiness Readiness, logg *logger.Logger, pingers ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		if readiness == nil || !readiness.Ready() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sync engine not started"))
			return
		}
		for _, p := range pingers {
			if p == nil {
				continue
			}
			if err := p.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "push transport unreachable").
					WithDetails(map[string]any{"transport": cfg.Push.TransportKind()}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
