package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/twspoc/internal/fallback"
	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/internal/reconcile"
	"github.com/julianshen/twspoc/pkg/enums"
	"github.com/julianshen/twspoc/pkg/logger"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func note(id string, minute int, read bool, priority enums.Priority, labels ...string) notifications.Notification {
	return notifications.Notification{
		ID:        id,
		Title:     "title " + id,
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Read:      read,
		Priority:  priority,
		Labels:    labels,
	}
}

func ids(items []notifications.Notification) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		out = append(out, n.ID)
	}
	return out
}

type fakeEngine struct {
	markReadFn func(ctx context.Context, id string) (bool, error)
	deleteFn   func(ctx context.Context, id string) (bool, error)
	refreshFn  func(ctx context.Context) error
}

func (f *fakeEngine) MarkRead(ctx context.Context, id string) (bool, error) {
	return f.markReadFn(ctx, id)
}

func (f *fakeEngine) Delete(ctx context.Context, id string) (bool, error) {
	return f.deleteFn(ctx, id)
}

func (f *fakeEngine) Refresh(ctx context.Context) error {
	return f.refreshFn(ctx)
}

func seededStore() *Store {
	s := New(nil)
	groupItem := note("D", 3, false, enums.PriorityLow, "Team")
	groupItem.GroupID = "g-1"
	s.Publish(reconcile.View{
		Notifications: []notifications.Notification{
			note("C", 12, false, enums.PriorityLow, "System"),
			note("A", 10, false, enums.PriorityHigh, "Important", "System"),
			note("B", 5, true, enums.PriorityMedium),
			groupItem,
		},
		Unread: 3,
	})
	return s
}

func TestListDefaultsToNewestFirst(t *testing.T) {
	s := seededStore()
	assert.Equal(t, []string{"C", "A", "B", "D"}, ids(s.List(Filter{})))
	assert.Equal(t, 3, s.UnreadCount())
}

func TestListFilters(t *testing.T) {
	s := seededStore()
	unread := false
	read := true
	since := base.Add(5 * time.Minute)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "unread", filter: Filter{Read: &unread}, want: []string{"C", "A", "D"}},
		{name: "read", filter: Filter{Read: &read}, want: []string{"B"}},
		{name: "priority", filter: Filter{Priorities: []enums.Priority{enums.PriorityHigh, enums.PriorityMedium}}, want: []string{"A", "B"}},
		{name: "labels any-of", filter: Filter{Labels: []string{"Important", "Team"}}, want: []string{"A", "D"}},
		{name: "group", filter: Filter{GroupID: "g-1"}, want: []string{"D"}},
		{name: "since inclusive", filter: Filter{Since: &since}, want: []string{"C", "A", "B"}},
		{name: "combined", filter: Filter{Read: &unread, Labels: []string{"System"}}, want: []string{"C", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(s.List(tt.filter)))
		})
	}
}

func TestListSorts(t *testing.T) {
	s := seededStore()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "timestamp asc", filter: Filter{Order: OrderAsc}, want: []string{"D", "B", "A", "C"}},
		{name: "priority desc", filter: Filter{Sort: SortPriority}, want: []string{"A", "B", "C", "D"}},
		{name: "priority asc", filter: Filter{Sort: SortPriority, Order: OrderAsc}, want: []string{"C", "D", "B", "A"}},
		{name: "read desc", filter: Filter{Sort: SortRead}, want: []string{"B", "C", "A", "D"}},
		{name: "read asc", filter: Filter{Sort: SortRead, Order: OrderAsc}, want: []string{"C", "A", "D", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(s.List(tt.filter)))
		})
	}
}

func TestParseSort(t *testing.T) {
	field, err := ParseSortField(" Priority ")
	require.NoError(t, err)
	assert.Equal(t, SortPriority, field)

	field, err = ParseSortField("")
	require.NoError(t, err)
	assert.Equal(t, SortTimestamp, field)

	_, err = ParseSortField("title")
	assert.Error(t, err)

	order, err := ParseSortOrder("ASC")
	require.NoError(t, err)
	assert.Equal(t, OrderAsc, order)

	_, err = ParseSortOrder("sideways")
	assert.Error(t, err)
}

func TestListReturnsCopies(t *testing.T) {
	s := seededStore()
	items := s.List(Filter{})
	items[0].Title = "mutated"
	items[1].Labels[0] = "mutated"

	again := s.List(Filter{})
	assert.Equal(t, "title C", again[0].Title)
	assert.Equal(t, "Important", again[1].Labels[0])

	got, ok := s.Get("A")
	require.True(t, ok)
	assert.Equal(t, "A", got.ID)
	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStatusReflectsView(t *testing.T) {
	s := New(logger.Nop())
	assert.False(t, s.Ready())
	assert.False(t, s.Status().Ready)

	lastSeen := base.Add(12 * time.Minute)
	s.Publish(reconcile.View{
		Notifications:  []notifications.Notification{note("A", 12, false, enums.PriorityLow)},
		Unread:         1,
		Degraded:       true,
		FallbackActive: true,
		LastSeen:       lastSeen,
		Pending:        []notifications.PendingMutation{{ID: "x", Kind: enums.MutationRead}},
	})

	status := s.Status()
	assert.True(t, status.Ready)
	assert.True(t, status.Degraded)
	assert.True(t, status.FallbackActive)
	assert.False(t, status.Live)
	assert.Equal(t, 1, status.Pending)
	assert.Equal(t, 1, status.Unread)
	assert.Equal(t, 1, status.Total)
	assert.True(t, status.LastSeen.Equal(lastSeen))
}

func TestMutationsDelegateToEngine(t *testing.T) {
	s := New(logger.Nop())

	_, err := s.MarkRead(context.Background(), "a")
	assert.ErrorIs(t, err, errNotBound)
	assert.ErrorIs(t, s.Refresh(context.Background()), errNotBound)

	boom := errors.New("boom")
	var calls []string
	s.Bind(&fakeEngine{
		markReadFn: func(_ context.Context, id string) (bool, error) {
			calls = append(calls, "read:"+id)
			return true, nil
		},
		deleteFn: func(_ context.Context, id string) (bool, error) {
			calls = append(calls, "delete:"+id)
			return false, nil
		},
		refreshFn: func(context.Context) error {
			calls = append(calls, "refresh")
			return boom
		},
	})

	applied, err := s.MarkRead(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Delete(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, applied)

	assert.ErrorIs(t, s.Refresh(context.Background()), boom)
	assert.Equal(t, []string{"read:a", "delete:b", "refresh"}, calls)
}

func TestSubscribeDeliversLatestView(t *testing.T) {
	s := New(logger.Nop())
	s.Publish(reconcile.View{Unread: 1})

	ch, cancel := s.Subscribe()
	first := <-ch
	assert.Equal(t, 1, first.Unread)

	// A slow subscriber only sees the newest of several views.
	s.Publish(reconcile.View{Unread: 2})
	s.Publish(reconcile.View{Unread: 3})
	s.Publish(reconcile.View{Unread: 4})
	latest := <-ch
	assert.Equal(t, 4, latest.Unread)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	s.Publish(reconcile.View{Unread: 5})
}

func TestSubscribersReceiveIndependentCopies(t *testing.T) {
	s := New(logger.Nop())
	first, cancelFirst := s.Subscribe()
	defer cancelFirst()
	second, cancelSecond := s.Subscribe()
	defer cancelSecond()

	s.Publish(reconcile.View{
		Notifications: []notifications.Notification{note("a", 10, false, enums.PriorityHigh, "Work")},
		Unread:        1,
	})

	got := <-first
	got.Notifications[0].Title = "changed"
	got.Notifications[0].Labels[0] = "changed"

	other := <-second
	assert.Equal(t, "title a", other.Notifications[0].Title)
	assert.Equal(t, []string{"Work"}, other.Notifications[0].Labels)

	stored, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"Work"}, stored.Labels)
}

type scriptedRemote struct {
	snapshot []notifications.Notification
}

func (r *scriptedRemote) FetchSnapshot(context.Context) ([]notifications.Notification, error) {
	return r.snapshot, nil
}

func (r *scriptedRemote) ConfirmRead(context.Context, string) error   { return nil }
func (r *scriptedRemote) ConfirmDelete(context.Context, string) error { return nil }

func TestScenarioThroughStore(t *testing.T) {
	gen, err := fallback.New(fallback.Params{Logger: logger.Nop()})
	require.NoError(t, err)

	s := New(logger.Nop())
	engine, err := reconcile.New(reconcile.Params{
		Remote: &scriptedRemote{snapshot: []notifications.Notification{
			note("A", 10, false, enums.PriorityHigh),
			note("B", 5, true, enums.PriorityLow),
		}},
		Fallback: gen,
		Sink:     s,
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	s.Bind(engine)

	ctx := context.Background()
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(func() { _ = engine.Close() })

	require.Eventually(t, func() bool { return s.Status().Total == 2 }, 2*time.Second, 5*time.Millisecond)

	payload, err := json.Marshal(notifications.NewRecord(note("C", 12, false, enums.PriorityMedium)))
	require.NoError(t, err)
	engine.Push(ctx, payload)

	require.Eventually(t, func() bool { return s.Status().Total == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"C", "A", "B"}, ids(s.List(Filter{})))
	assert.Equal(t, 2, s.UnreadCount())

	applied, err := s.MarkRead(ctx, "A")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, s.UnreadCount())

	applied, err = s.MarkRead(ctx, "A")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, s.UnreadCount())
}
