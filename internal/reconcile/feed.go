package reconcile

import (
	"context"
	"errors"
	"sort"

	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/pkg/enums"
)

func (e *Engine) fetch() {
	if e.remote == nil {
		return
	}
	e.fetchGen++
	gen, mark := e.fetchGen, e.admitSeq

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		ctx, cancel := context.WithTimeout(e.ctx, e.snapshotTimeout)
		defer cancel()

		items, err := e.remote.FetchSnapshot(ctx)
		if e.ctx.Err() != nil {
			return
		}
		e.queue.push(intake{kind: intakeSnapshot, items: items, err: err, gen: gen, mark: mark})
	}()
}

func (e *Engine) applySnapshot(in intake) {
	if in.gen < e.appliedGen {
		e.logg.Debug(e.logg.WithField(e.ctx, "generation", in.gen), "reconcile.snapshot_stale")
		return
	}

	if in.err != nil {
		e.logg.Error(e.ctx, "reconcile.snapshot_failed", in.err)
		changed := e.seed()
		if !e.live && e.activateFallback() {
			changed = true
		}
		if changed {
			e.publish()
		}
		return
	}

	e.appliedGen = in.gen
	e.synced = true
	now := e.now()

	inSnapshot := make(map[string]struct{}, len(in.items))
	next := make([]notifications.Notification, 0, len(in.items)+len(e.items))
	for _, n := range in.items {
		if _, dup := inSnapshot[n.ID]; dup {
			e.metrics.IncDropped("duplicate")
			continue
		}
		inSnapshot[n.ID] = struct{}{}
		if _, gone := e.tombstones[n.ID]; gone {
			e.metrics.IncDropped("tombstoned")
			continue
		}
		if n.Expired(now) {
			e.metrics.IncDropped("expired")
			continue
		}
		next = append(next, e.rememberRead(n.Clone()))
		e.metrics.IncAdmitted(string(enums.EventSourceSnapshot))
	}

	kept := 0
	for _, cur := range e.items {
		if _, ok := inSnapshot[cur.ID]; ok {
			continue
		}
		if seq, ok := e.admitted[cur.ID]; ok && seq > in.mark {
			next = append(next, cur)
			kept++
		}
	}
	sort.SliceStable(next, func(i, j int) bool {
		return notifications.Newer(next[i], next[j])
	})

	for id, seq := range e.admitted {
		if seq <= in.mark {
			delete(e.admitted, id)
		}
	}
	e.items = next
	e.position.Reset(next)

	e.logg.Info(e.logg.WithFields(e.ctx, map[string]any{
		"count": len(next),
		"kept":  kept,
	}), "reconcile.snapshot_applied")
	e.publish()
}

// admit inserts one incremental event. It reports whether the working set changed.
func (e *Engine) admit(n notifications.Notification, source enums.EventSource) bool {
	if _, gone := e.tombstones[n.ID]; gone {
		e.drop(n.ID, source, "tombstoned")
		return false
	}
	if n.Expired(e.now()) {
		e.drop(n.ID, source, "expired")
		return false
	}
	if e.indexOf(n.ID) >= 0 {
		e.drop(n.ID, source, "duplicate")
		return false
	}

	n = e.rememberRead(n.Clone())
	idx := sort.Search(len(e.items), func(i int) bool {
		return e.items[i].Timestamp.Before(n.Timestamp)
	})
	e.items = append(e.items, notifications.Notification{})
	copy(e.items[idx+1:], e.items[idx:])
	e.items[idx] = n

	e.position.Observe(n)
	e.admitSeq++
	e.admitted[n.ID] = e.admitSeq
	e.metrics.IncAdmitted(string(source))
	return true
}

func (e *Engine) drop(id string, source enums.EventSource, reason string) {
	e.metrics.IncDropped(reason)
	e.logg.Debug(e.logg.WithFields(e.logg.WithNotificationID(e.ctx, id), map[string]any{
		"source": string(source),
		"reason": reason,
	}), "reconcile.event_dropped")
}

// rememberRead keeps read state monotonic across remote sync.
func (e *Engine) rememberRead(n notifications.Notification) notifications.Notification {
	if _, ok := e.readIDs[n.ID]; ok {
		n.Read = true
	} else if n.Read {
		e.readIDs[n.ID] = struct{}{}
	}
	return n
}

func (e *Engine) indexOf(id string) int {
	for i := range e.items {
		if e.items[i].ID == id {
			return i
		}
	}
	return -1
}

// seed admits the sample entries once per session, and only before the first successful
// snapshot.
func (e *Engine) seed() bool {
	if e.synced || e.seeded {
		return false
	}
	e.seeded = true
	changed := false
	for _, n := range e.fallback.Sample(e.seedCount) {
		if e.admit(n, enums.EventSourceFallback) {
			changed = true
		}
	}
	return changed
}

func (e *Engine) startOffline() {
	e.seed()
	e.degraded = true
	e.activateFallback()
	e.publish()
}

func (e *Engine) setLive() {
	e.live = true
	e.degraded = false
	e.deactivateFallback()
	e.logg.Info(e.ctx, "reconcile.live")
	e.publish()
}

func (e *Engine) setDegraded() {
	e.live = false
	e.degraded = true
	e.activateFallback()
	e.logg.Warn(e.ctx, "reconcile.degraded")
	e.publish()
}

// activateFallback starts a generator run tagged with a fresh epoch.
func (e *Engine) activateFallback() bool {
	if e.fallbackActive {
		return false
	}
	e.epoch++
	epoch := e.epoch
	ctx, cancel := context.WithCancel(e.ctx)
	e.stopFallback = cancel
	e.fallbackActive = true
	e.metrics.SetFallbackActive(true)

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		err := e.fallback.Run(ctx, func(n notifications.Notification) {
			e.queue.push(intake{kind: intakeFallback, notification: n, epoch: epoch})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			e.logg.Error(ctx, "reconcile.fallback_stopped", err)
		}
	}()

	e.logg.Info(e.logg.WithField(e.ctx, "epoch", epoch), "reconcile.fallback_activated")
	return true
}

// deactivateFallback cancels the running generator. Queued events from it are discarded
// by epoch.
func (e *Engine) deactivateFallback() bool {
	if !e.fallbackActive {
		return false
	}
	e.stopFallback()
	e.stopFallback = nil
	e.epoch++
	e.fallbackActive = false
	e.metrics.SetFallbackActive(false)
	e.logg.Info(e.ctx, "reconcile.fallback_deactivated")
	return true
}

func (e *Engine) publish() {
	view := View{
		Notifications:  make([]notifications.Notification, 0, len(e.items)),
		Live:           e.live,
		Degraded:       e.degraded,
		FallbackActive: e.fallbackActive,
		Offline:        e.offline,
		LastSeen:       e.position.LastSeen,
		Pending:        make([]notifications.PendingMutation, 0, len(e.pending)),
	}
	for _, n := range e.items {
		view.Notifications = append(view.Notifications, n.Clone())
		if !n.Read {
			view.Unread++
		}
	}
	for _, entry := range e.pending {
		view.Pending = append(view.Pending, entry.mutation)
	}
	sort.Slice(view.Pending, func(i, j int) bool {
		if view.Pending[i].IssuedAt.Equal(view.Pending[j].IssuedAt) {
			return view.Pending[i].ID < view.Pending[j].ID
		}
		return view.Pending[i].IssuedAt.Before(view.Pending[j].IssuedAt)
	})

	e.metrics.SetUnread(view.Unread)
	e.sink.Publish(view)
}
