package reconcile

import (
	"sync"

	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/pkg/enums"
)

type intakeKind int

const (
	intakeRefresh intakeKind = iota
	intakeOffline
	intakeSnapshot
	intakePush
	intakeFallback
	intakeLive
	intakeDegraded
	intakeMutation
	intakeConfirmed
)

type intake struct {
	kind intakeKind

	// snapshot
	items []notifications.Notification
	err   error
	gen   uint64
	mark  uint64

	// push, fallback
	notification notifications.Notification
	epoch        uint64

	// mutation, confirmation
	id       string
	mutation enums.MutationKind
	reply    chan bool
	seq      uint64
	attempts int
}

// queue is an unbounded FIFO so producers never wait on the engine loop.
type queue struct {
	mu    sync.Mutex
	items []intake
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(in intake) {
	q.mu.Lock()
	q.items = append(q.items, in)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *queue) drain() []intake {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
