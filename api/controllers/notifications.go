package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/julianshen/twspoc/api/responses"
	"github.com/julianshen/twspoc/api/validators"
	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/internal/store"
	pkgerrors "github.com/julianshen/twspoc/pkg/errors"
	"github.com/julianshen/twspoc/pkg/logger"
	"github.com/julianshen/twspoc/pkg/types"
)

// NotificationStore is the slice of *store.Store the notification routes need.
type NotificationStore interface {
	List(filter store.Filter) []notifications.Notification
	Get(id string) (notifications.Notification, bool)
	UnreadCount() int
	MarkRead(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type mutationResponse struct {
	ID      string `json:"id"`
	Read    bool   `json:"read,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	Applied bool   `json:"applied"`
}

// ListNotifications returns the current feed, filtered and sorted by the query.
func ListNotifications(svc NotificationStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification store unavailable"))
			return
		}

		filter, err := validators.ParseNotificationFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := svc.List(filter)
		responses.WriteList(w, items, types.ListMeta{Count: len(items), Unread: svc.UnreadCount()})
	}
}

func UnreadCount(svc NotificationStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification store unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]int{"unread": svc.UnreadCount()})
	}
}

// MarkNotificationRead applies the read locally and returns before the remote confirms.
// Marking an already read notification succeeds with applied=false.
func MarkNotificationRead(svc NotificationStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification store unavailable"))
			return
		}

		id, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithNotificationID(ctx, id)
		}

		applied, err := svc.MarkRead(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !applied {
			if _, ok := svc.Get(id); !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found"))
				return
			}
		}
		responses.WriteSuccess(w, mutationResponse{ID: id, Read: true, Applied: applied})
	}
}

// DeleteNotification removes the notification locally. Deleting an unknown or already
// deleted id succeeds with applied=false.
func DeleteNotification(svc NotificationStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification store unavailable"))
			return
		}

		id, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithNotificationID(ctx, id)
		}

		applied, err := svc.Delete(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, mutationResponse{ID: id, Deleted: true, Applied: applied})
	}
}

func notificationIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "notificationId"))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "notification id is required").
			WithDetails(map[string]any{"field": "notificationId"})
	}
	return id, nil
}
