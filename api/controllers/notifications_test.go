package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/internal/store"
	"github.com/julianshen/twspoc/pkg/enums"
	pkgerrors "github.com/julianshen/twspoc/pkg/errors"
	"github.com/julianshen/twspoc/pkg/logger"
)

type testNotificationStore struct {
	listFn     func(filter store.Filter) []notifications.Notification
	getFn      func(id string) (notifications.Notification, bool)
	unread     int
	markReadFn func(ctx context.Context, id string) (bool, error)
	deleteFn   func(ctx context.Context, id string) (bool, error)
}

func (s *testNotificationStore) List(filter store.Filter) []notifications.Notification {
	if s.listFn != nil {
		return s.listFn(filter)
	}
	return nil
}

func (s *testNotificationStore) Get(id string) (notifications.Notification, bool) {
	if s.getFn != nil {
		return s.getFn(id)
	}
	return notifications.Notification{}, false
}

func (s *testNotificationStore) UnreadCount() int {
	return s.unread
}

func (s *testNotificationStore) MarkRead(ctx context.Context, id string) (bool, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, id)
	}
	return false, nil
}

func (s *testNotificationStore) Delete(ctx context.Context, id string) (bool, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return false, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestListNotificationsAppliesQuery(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var got store.Filter
	svc := &testNotificationStore{
		unread: 1,
		listFn: func(filter store.Filter) []notifications.Notification {
			got = filter
			return []notifications.Notification{
				{ID: "a", Title: "A", Timestamp: now, Priority: enums.PriorityHigh},
			}
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?read=false&priority=high&sort=priority", nil)
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.Read == nil || *got.Read {
		t.Fatalf("expected read=false filter, got %+v", got.Read)
	}
	if len(got.Priorities) != 1 || got.Priorities[0] != enums.PriorityHigh {
		t.Fatalf("unexpected priorities %v", got.Priorities)
	}
	if got.Sort != store.SortPriority {
		t.Fatalf("unexpected sort %q", got.Sort)
	}

	var envelope struct {
		Data []notifications.Notification `json:"data"`
		Meta struct {
			Count  int `json:"count"`
			Unread int `json:"unread"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].ID != "a" {
		t.Fatalf("unexpected data %+v", envelope.Data)
	}
	if envelope.Meta.Count != 1 || envelope.Meta.Unread != 1 {
		t.Fatalf("unexpected meta %+v", envelope.Meta)
	}
}

func TestListNotificationsInvalidQuery(t *testing.T) {
	called := false
	svc := &testNotificationStore{
		listFn: func(store.Filter) []notifications.Notification {
			called = true
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?sort=title", nil)
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatal("store should not be queried on invalid input")
	}
}

func TestUnreadCount(t *testing.T) {
	resp := httptest.NewRecorder()
	UnreadCount(&testNotificationStore{unread: 4}, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil))

	var envelope struct {
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["unread"] != 4 {
		t.Fatalf("expected unread=4 got %v", envelope.Data)
	}
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	called := false
	svc := &testNotificationStore{
		markReadFn: func(ctx context.Context, id string) (bool, error) {
			called = true
			if id != "n-1" {
				t.Fatalf("unexpected notification %s", id)
			}
			return true, nil
		},
	}

	req := addRouteParam(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/n-1/read", nil), "notificationId", "n-1")
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected store called")
	}
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["read"] != true || envelope.Data["applied"] != true {
		t.Fatalf("unexpected body %v", envelope.Data)
	}
}

func TestMarkNotificationReadAlreadyRead(t *testing.T) {
	svc := &testNotificationStore{
		getFn: func(id string) (notifications.Notification, bool) {
			return notifications.Notification{ID: id, Read: true}, true
		},
	}

	req := addRouteParam(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/n-1/read", nil), "notificationId", "n-1")
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for repeated read got %d", resp.Code)
	}
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["applied"] != false {
		t.Fatalf("expected applied=false got %v", envelope.Data)
	}
}

func TestMarkNotificationReadUnknown(t *testing.T) {
	req := addRouteParam(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/ghost/read", nil), "notificationId", "ghost")
	resp := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationStore{}, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestMarkNotificationReadMissingID(t *testing.T) {
	req := addRouteParam(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/%20/read", nil), "notificationId", " ")
	resp := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationStore{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkNotificationReadEngineError(t *testing.T) {
	svc := &testNotificationStore{
		markReadFn: func(context.Context, string) (bool, error) {
			return false, pkgerrors.New(pkgerrors.CodeDependency, "sync engine closed")
		},
	}
	req := addRouteParam(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/n-1/read", nil), "notificationId", "n-1")
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestDeleteNotificationIsIdempotent(t *testing.T) {
	calls := 0
	svc := &testNotificationStore{
		deleteFn: func(ctx context.Context, id string) (bool, error) {
			calls++
			return calls == 1, nil
		},
	}

	for i, want := range []bool{true, false} {
		req := addRouteParam(httptest.NewRequest(http.MethodDelete, "/api/v1/notifications/n-1", nil), "notificationId", "n-1")
		resp := httptest.NewRecorder()
		DeleteNotification(svc, testLogger())(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("call %d: unexpected status %d", i, resp.Code)
		}
		var envelope struct {
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if envelope.Data["applied"] != want {
			t.Fatalf("call %d: expected applied=%v got %v", i, want, envelope.Data["applied"])
		}
	}
}

func TestNilStoreIsInternalError(t *testing.T) {
	resp := httptest.NewRecorder()
	ListNotifications(nil, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}
