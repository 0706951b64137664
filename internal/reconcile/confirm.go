package reconcile

import (
	"context"
	"time"

	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/pkg/enums"
)

type confirmFunc func(ctx context.Context, id string) error

func (e *Engine) applyMutation(kind enums.MutationKind, id string) bool {
	idx := e.indexOf(id)
	if idx < 0 {
		return false
	}

	switch kind {
	case enums.MutationRead:
		if e.items[idx].Read {
			return false
		}
		e.items[idx].Read = true
		e.readIDs[id] = struct{}{}
		if e.remote != nil {
			e.track(kind, id, e.remote.ConfirmRead)
		}
	case enums.MutationDelete:
		e.items = append(e.items[:idx], e.items[idx+1:]...)
		e.tombstones[id] = struct{}{}
		if prev, ok := e.pending[id]; ok {
			close(prev.stop)
			delete(e.pending, id)
			e.metrics.IncConfirmation(string(prev.mutation.Kind), "superseded")
		}
		if e.remote != nil {
			e.track(kind, id, e.remote.ConfirmDelete)
		}
	default:
		return false
	}

	e.logg.Info(e.logg.WithField(e.logg.WithNotificationID(e.ctx, id), "kind", string(kind)), "reconcile.mutation_applied")
	return true
}

func (e *Engine) track(kind enums.MutationKind, id string, call confirmFunc) {
	e.mutSeq++
	entry := &pendingEntry{
		mutation: notifications.PendingMutation{ID: id, Kind: kind, IssuedAt: e.now()},
		seq:      e.mutSeq,
		stop:     make(chan struct{}),
	}
	e.pending[id] = entry

	e.workers.Add(1)
	go e.confirm(entry.mutation, entry.seq, entry.stop, call)
}

// confirm retries call every retryInterval up to maxAttempts. Closing stop ends the
// schedule without canceling an attempt already in flight.
func (e *Engine) confirm(m notifications.PendingMutation, seq uint64, stop <-chan struct{}, call confirmFunc) {
	defer e.workers.Done()
	logCtx := e.logg.WithField(e.logg.WithNotificationID(e.ctx, m.ID), "kind", string(m.Kind))

	for attempt := 1; ; attempt++ {
		select {
		case <-stop:
			return
		default:
		}

		attemptCtx, cancel := context.WithTimeout(e.ctx, e.confirmTimeout)
		err := call(attemptCtx, m.ID)
		cancel()
		if e.ctx.Err() != nil {
			return
		}
		if err == nil {
			e.queue.push(intake{kind: intakeConfirmed, id: m.ID, mutation: m.Kind, seq: seq, attempts: attempt})
			return
		}

		e.metrics.IncConfirmation(string(m.Kind), "failed")
		e.logg.Warn(e.logg.WithFields(logCtx, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		}), "reconcile.confirm_failed")

		if attempt >= e.maxAttempts {
			e.queue.push(intake{kind: intakeConfirmed, id: m.ID, mutation: m.Kind, seq: seq, attempts: attempt, err: err})
			return
		}

		timer := time.NewTimer(e.retryInterval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-e.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// applyConfirmation clears the pending entry. An exhausted schedule keeps the local state.
func (e *Engine) applyConfirmation(in intake) bool {
	entry, ok := e.pending[in.id]
	if !ok || entry.seq != in.seq {
		return false
	}
	delete(e.pending, in.id)

	ctx := e.logg.WithFields(e.logg.WithNotificationID(e.ctx, in.id), map[string]any{
		"kind":     string(in.mutation),
		"attempts": in.attempts,
	})
	if in.err != nil {
		e.metrics.IncConfirmation(string(in.mutation), "exhausted")
		e.logg.Warn(ctx, "reconcile.confirm_exhausted")
		return true
	}
	e.metrics.IncConfirmation(string(in.mutation), "confirmed")
	e.logg.Info(ctx, "reconcile.confirmed")
	return true
}
