package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/internal/reconcile"
	"github.com/julianshen/twspoc/pkg/logger"
)

var errNotBound = errors.New("store is not bound to a sync engine")

// Engine is the mutation surface the store delegates to.
type Engine interface {
	MarkRead(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Refresh(ctx context.Context) error
}

// Status summarizes sync health for observers.
type Status struct {
	Ready          bool      `json:"ready"`
	Live           bool      `json:"live"`
	Degraded       bool      `json:"degraded"`
	FallbackActive bool      `json:"fallbackActive"`
	Offline        bool      `json:"offline"`
	Pending        int       `json:"pending"`
	Unread         int       `json:"unread"`
	Total          int       `json:"total"`
	LastSeen       time.Time `json:"lastSeen"`
}

// Store holds the latest published view and fans it out to subscribers. It implements
// reconcile.Sink.
type Store struct {
	logg *logger.Logger

	mu      sync.RWMutex
	engine  Engine
	view    reconcile.View
	ready   bool
	subs    map[int]chan reconcile.View
	nextSub int
}

func New(logg *logger.Logger) *Store {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{logg: logg, subs: map[int]chan reconcile.View{}}
}

// Bind attaches the engine that owns the working set.
func (s *Store) Bind(engine Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

// Publish replaces the current view. Subscribers that have not consumed the previous
// view only see the latest one.
func (s *Store) Publish(view reconcile.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = view
	s.ready = true
	for _, ch := range s.subs {
		offerLatest(ch, view.Clone())
	}
}

// Ready reports whether the engine has published at least once.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// List returns copies of the notifications matching filter in the requested order.
func (s *Store) List(filter Filter) []notifications.Notification {
	s.mu.RLock()
	items := s.view.Notifications
	s.mu.RUnlock()

	out := make([]notifications.Notification, 0, len(items))
	for _, n := range items {
		if filter.matches(n) {
			out = append(out, n.Clone())
		}
	}
	sort.SliceStable(out, filter.less(out))
	return out
}

// Get returns a copy of one notification.
func (s *Store) Get(id string) (notifications.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.view.Notifications {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return notifications.Notification{}, false
}

func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.Unread
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Ready:          s.ready,
		Live:           s.view.Live,
		Degraded:       s.view.Degraded,
		FallbackActive: s.view.FallbackActive,
		Offline:        s.view.Offline,
		Pending:        len(s.view.Pending),
		Unread:         s.view.Unread,
		Total:          len(s.view.Notifications),
		LastSeen:       s.view.LastSeen,
	}
}

// MarkRead returns once the optimistic update is visible. Repeating it is a no-op.
func (s *Store) MarkRead(ctx context.Context, id string) (bool, error) {
	engine, err := s.bound()
	if err != nil {
		return false, err
	}
	return engine.MarkRead(ctx, id)
}

// Delete returns once the notification is gone locally. Repeating it is a no-op.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	engine, err := s.bound()
	if err != nil {
		return false, err
	}
	return engine.Delete(ctx, id)
}

func (s *Store) Refresh(ctx context.Context) error {
	engine, err := s.bound()
	if err != nil {
		return err
	}
	return engine.Refresh(ctx)
}

// Subscribe delivers the latest view on the returned channel until cancel is called.
func (s *Store) Subscribe() (<-chan reconcile.View, func()) {
	ch := make(chan reconcile.View, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if s.ready {
		ch <- s.view.Clone()
	}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) bound() (Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return nil, errNotBound
	}
	return s.engine, nil
}

func offerLatest(ch chan reconcile.View, view reconcile.View) {
	select {
	case ch <- view:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- view:
	default:
	}
}
