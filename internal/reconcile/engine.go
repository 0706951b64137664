package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/pkg/config"
	"github.com/julianshen/twspoc/pkg/enums"
	pkgerrors "github.com/julianshen/twspoc/pkg/errors"
	"github.com/julianshen/twspoc/pkg/logger"
	"github.com/julianshen/twspoc/pkg/metrics"
)

const (
	defaultSnapshotTimeout = 10 * time.Second
	defaultConfirmTimeout  = 10 * time.Second
	defaultMaxAttempts     = 5
	defaultRetryInterval   = 5 * time.Second
)

var (
	ErrNotStarted = pkgerrors.New(pkgerrors.CodeDependency, "sync engine not started")
	ErrClosed     = pkgerrors.New(pkgerrors.CodeDependency, "sync engine closed")
	ErrOffline    = pkgerrors.New(pkgerrors.CodeConflict, "remote sync disabled in offline mode")
)

// Remote is the subset of the remote client the engine drives.
type Remote interface {
	FetchSnapshot(ctx context.Context) ([]notifications.Notification, error)
	ConfirmRead(ctx context.Context, id string) error
	ConfirmDelete(ctx context.Context, id string) error
}

// Generator supplies synthetic notifications while the remote is unavailable.
type Generator interface {
	Run(ctx context.Context, emit func(notifications.Notification)) error
	Sample(n int) []notifications.Notification
}

type Params struct {
	Remote   Remote
	Fallback Generator
	Sink     Sink
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics

	Confirm         config.ConfirmConfig
	SeedCount       int
	SnapshotTimeout time.Duration
	Offline         bool
	Now             func() time.Time
}

type pendingEntry struct {
	mutation notifications.PendingMutation
	seq      uint64
	stop     chan struct{}
}

// Engine owns the working set. A single loop goroutine applies every intake in arrival
// order; all other methods only enqueue.
type Engine struct {
	remote   Remote
	fallback Generator
	sink     Sink
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
	now      func() time.Time

	offline         bool
	seedCount       int
	snapshotTimeout time.Duration
	confirmTimeout  time.Duration
	maxAttempts     int
	retryInterval   time.Duration

	queue *queue

	lifecycle sync.Mutex
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	workers   sync.WaitGroup

	// Loop-owned state below.
	items      []notifications.Notification
	position   *notifications.FeedPosition
	tombstones map[string]struct{}
	readIDs    map[string]struct{}
	pending    map[string]*pendingEntry
	admitted   map[string]uint64
	admitSeq   uint64
	mutSeq     uint64
	fetchGen   uint64
	appliedGen uint64
	synced     bool
	seeded     bool

	live           bool
	degraded       bool
	fallbackActive bool
	epoch          uint64
	stopFallback   context.CancelFunc
}

func New(params Params) (*Engine, error) {
	if params.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Fallback == nil {
		return nil, errors.New("fallback generator is required")
	}
	if params.Remote == nil && !params.Offline {
		return nil, errors.New("remote client is required unless offline")
	}

	snapshotTimeout := params.SnapshotTimeout
	if snapshotTimeout <= 0 {
		snapshotTimeout = defaultSnapshotTimeout
	}
	confirmTimeout := params.Confirm.Timeout
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	maxAttempts := params.Confirm.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryInterval := params.Confirm.RetryInterval
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		remote:          params.Remote,
		fallback:        params.Fallback,
		sink:            params.Sink,
		logg:            params.Logger,
		metrics:         params.Metrics,
		now:             now,
		offline:         params.Offline,
		seedCount:       params.SeedCount,
		snapshotTimeout: snapshotTimeout,
		confirmTimeout:  confirmTimeout,
		maxAttempts:     maxAttempts,
		retryInterval:   retryInterval,
		queue:           newQueue(),
		done:            make(chan struct{}),
		position:        notifications.NewFeedPosition(),
		tombstones:      map[string]struct{}{},
		readIDs:         map[string]struct{}{},
		pending:         map[string]*pendingEntry{},
		admitted:        map[string]uint64{},
	}, nil
}

// Start launches the loop and issues the initial snapshot fetch, or seeds the synthetic
// feed in offline mode.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.started {
		return errors.New("sync engine already started")
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)

	if e.offline {
		e.queue.push(intake{kind: intakeOffline})
	} else {
		e.queue.push(intake{kind: intakeRefresh})
	}
	go e.loop()

	e.logg.Info(e.logg.WithField(ctx, "offline", e.offline), "reconcile.started")
	return nil
}

// Close stops the loop, the fallback generator and any confirmation retries.
func (e *Engine) Close() error {
	e.lifecycle.Lock()
	started := e.started
	cancel := e.cancel
	e.lifecycle.Unlock()
	if !started {
		return nil
	}
	cancel()
	<-e.done
	e.workers.Wait()
	return nil
}

// Refresh issues a fresh snapshot fetch. It does not wait for the result.
func (e *Engine) Refresh(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.offline {
		return ErrOffline
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.queue.push(intake{kind: intakeRefresh})
	return nil
}

// Push decodes one push channel payload and enqueues it. Malformed payloads are dropped.
func (e *Engine) Push(ctx context.Context, raw []byte) {
	n, err := notifications.DecodePayload(raw)
	if err != nil {
		e.metrics.IncDropped("decode")
		e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
			"error":  err.Error(),
			"source": string(enums.EventSourcePush),
		}), "reconcile.decode_failed")
		return
	}
	e.queue.push(intake{kind: intakePush, notification: n})
}

// OnLive reports an established push channel.
func (e *Engine) OnLive(context.Context) {
	e.queue.push(intake{kind: intakeLive})
}

// OnDegraded reports that the push channel gave up reconnecting.
func (e *Engine) OnDegraded(context.Context) {
	e.queue.push(intake{kind: intakeDegraded})
}

// MarkRead marks id read locally and confirms it remotely in the background. It reports
// false when id is absent or already read.
func (e *Engine) MarkRead(ctx context.Context, id string) (bool, error) {
	return e.mutate(ctx, enums.MutationRead, id)
}

// Delete removes id locally and confirms it remotely in the background. It reports false
// when id is absent.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	return e.mutate(ctx, enums.MutationDelete, id)
}

func (e *Engine) mutate(ctx context.Context, kind enums.MutationKind, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "notification id is required")
	}
	if err := e.ready(); err != nil {
		return false, err
	}

	reply := make(chan bool, 1)
	e.queue.push(intake{kind: intakeMutation, mutation: kind, id: id, reply: reply})

	select {
	case applied := <-reply:
		return applied, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-e.done:
		return false, ErrClosed
	}
}

func (e *Engine) ready() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if !e.started {
		return ErrNotStarted
	}
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	return nil
}

func (e *Engine) loop() {
	defer close(e.done)
	defer e.deactivateFallback()

	e.publish()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.queue.ready:
		}
		for _, in := range e.queue.drain() {
			if e.ctx.Err() != nil {
				return
			}
			e.handle(in)
		}
	}
}

func (e *Engine) handle(in intake) {
	switch in.kind {
	case intakeRefresh:
		e.fetch()
	case intakeOffline:
		e.startOffline()
	case intakeSnapshot:
		e.applySnapshot(in)
	case intakePush:
		if e.admit(in.notification, enums.EventSourcePush) {
			e.publish()
		}
	case intakeFallback:
		if !e.fallbackActive || in.epoch != e.epoch {
			e.metrics.IncDropped("stale_epoch")
			return
		}
		if e.admit(in.notification, enums.EventSourceFallback) {
			e.publish()
		}
	case intakeLive:
		e.setLive()
	case intakeDegraded:
		e.setDegraded()
	case intakeMutation:
		applied := e.applyMutation(in.mutation, in.id)
		if applied {
			e.publish()
		}
		in.reply <- applied
	case intakeConfirmed:
		if e.applyConfirmation(in) {
			e.publish()
		}
	}
}
