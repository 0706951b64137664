package controllers

import (
	"context"
	"net/http"

	"github.com/julianshen/twspoc/api/responses"
	"github.com/julianshen/twspoc/internal/reconcile"
	"github.com/julianshen/twspoc/internal/store"
	"github.com/julianshen/twspoc/internal/supervisor"
	pkgerrors "github.com/julianshen/twspoc/pkg/errors"
	"github.com/julianshen/twspoc/pkg/logger"
)

type SyncStore interface {
	Status() store.Status
	Refresh(ctx context.Context) error
}

// Connection is the supervisor surface. It is nil in offline mode.
type Connection interface {
	State() supervisor.State
	Failures() int
	Reset() bool
}

type syncStatusResponse struct {
	store.Status
	Connection supervisor.State `json:"connection"`
	Failures   int              `json:"failures"`
}

func SyncStatus(svc SyncStore, conn Connection, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification store unavailable"))
			return
		}

		resp := syncStatusResponse{Status: svc.Status(), Connection: supervisor.StateDisconnected}
		if conn != nil {
			resp.Connection = conn.State()
			resp.Failures = conn.Failures()
		}
		responses.WriteSuccess(w, resp)
	}
}

// RefreshSnapshot queues a snapshot fetch and answers 202 without waiting for it.
func RefreshSnapshot(svc SyncStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification store unavailable"))
			return
		}

		if err := svc.Refresh(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]bool{"refreshing": true})
	}
}

// ResetConnection re-arms a supervisor that exhausted its retry budget.
func ResetConnection(conn Connection, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if conn == nil {
			responses.WriteError(r.Context(), logg, w, reconcile.ErrOffline)
			return
		}

		reset := conn.Reset()
		if reset && logg != nil {
			logg.Info(r.Context(), "supervisor.reset_requested")
		}
		responses.WriteSuccess(w, map[string]any{"reset": reset, "state": conn.State()})
	}
}
