package supervisor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/julianshen/twspoc/internal/remote"
	"github.com/julianshen/twspoc/pkg/config"
	"github.com/julianshen/twspoc/pkg/logger"
	"github.com/julianshen/twspoc/pkg/metrics"
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultStableAfter = 10 * time.Second
)

// State is the push channel lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Listener receives channel health transitions.
type Listener interface {
	OnLive(ctx context.Context)
	OnDegraded(ctx context.Context)
}

// Handler receives each payload in channel order.
type Handler func(ctx context.Context, payload []byte)

type Params struct {
	Opener   remote.Opener
	Handler  Handler
	Listener Listener
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
	Config   config.SupervisorConfig

	// Sleep, Jitter and Now are overridable for tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(d time.Duration) time.Duration
	Now    func() time.Time
}

// Supervisor keeps one push channel open, reconnecting with capped exponential backoff.
type Supervisor struct {
	opener   remote.Opener
	handler  Handler
	listener Listener
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func(d time.Duration) time.Duration
	now      func() time.Time

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxRetries  int
	stableAfter time.Duration

	mu       sync.Mutex
	state    State
	failures int
	reset    chan struct{}
}

func New(params Params) (*Supervisor, error) {
	if params.Opener == nil {
		return nil, errors.New("push channel opener is required")
	}
	if params.Handler == nil {
		return nil, errors.New("payload handler is required")
	}
	if params.Listener == nil {
		return nil, errors.New("listener is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	base := params.Config.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	maxDelay := params.Config.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if maxDelay < base {
		maxDelay = base
	}
	stableAfter := params.Config.StableAfter
	if stableAfter <= 0 {
		stableAfter = defaultStableAfter
	}

	s := &Supervisor{
		opener:      params.Opener,
		handler:     params.Handler,
		listener:    params.Listener,
		logg:        params.Logger,
		metrics:     params.Metrics,
		sleep:       params.Sleep,
		jitter:      params.Jitter,
		now:         params.Now,
		baseDelay:   base,
		maxDelay:    maxDelay,
		maxRetries:  params.Config.MaxRetries,
		stableAfter: stableAfter,
		state:       StateDisconnected,
		reset:       make(chan struct{}, 1),
	}
	if s.sleep == nil {
		s.sleep = sleep
	}
	if s.jitter == nil {
		s.jitter = fractionJitter(params.Config.JitterFraction)
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.metrics.SetSupervisorState(string(StateDisconnected))
	return s, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failures returns the consecutive failure count since the last established channel. A
// channel is established once it delivers a payload or stays open for StableAfter.
func (s *Supervisor) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Reset leaves Failed and reconnects. It reports false when the supervisor is not failed.
func (s *Supervisor) Reset() bool {
	if s.State() != StateFailed {
		return false
	}
	select {
	case s.reset <- struct{}{}:
	default:
	}
	return true
}

// Run drives the channel until ctx is canceled. It always returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	for {
		if err := s.connectLoop(ctx); err != nil {
			return err
		}

		s.logg.Warn(s.logg.WithField(ctx, "failures", s.Failures()), "supervisor.failed")
		s.listener.OnDegraded(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.reset:
		}

		s.clearFailures()
		s.setState(StateDisconnected)
		s.logg.Info(ctx, "supervisor.reset")
	}
}

// connectLoop returns nil once the retry budget is exhausted and ctx.Err() on cancellation.
func (s *Supervisor) connectLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StateConnecting)
		ch, err := s.opener.OpenPushChannel(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "supervisor.connect_failed")
		} else {
			if err := s.pump(ctx, ch); err != nil {
				return err
			}
		}

		failures := s.recordFailure()
		if s.exhausted(failures) {
			s.setState(StateFailed)
			return nil
		}

		s.setState(StateReconnecting)
		s.metrics.IncReconnect()
		delay := s.backoff(failures)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"attempt":  failures,
			"delay_ms": delay.Milliseconds(),
		}), "supervisor.reconnecting")
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// pump delivers payloads until the channel fails. It returns ctx.Err() on cancellation.
// The failure count survives a channel that closes before it is established.
func (s *Supervisor) pump(ctx context.Context, ch remote.PushChannel) error {
	defer func() { _ = ch.Close() }()

	s.setState(StateConnected)
	s.logg.Info(ctx, "supervisor.connected")
	s.listener.OnLive(ctx)

	opened := s.now()
	established := false
	for {
		payload, err := ch.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !established && s.now().Sub(opened) >= s.stableAfter {
				s.clearFailures()
			}
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"error":       err.Error(),
				"established": established,
			}), "supervisor.channel_closed")
			return nil
		}
		if !established {
			established = true
			s.clearFailures()
		}
		s.handler(ctx, payload)
	}
}

func (s *Supervisor) clearFailures() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

func (s *Supervisor) recordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.failures
}

func (s *Supervisor) exhausted(failures int) bool {
	return s.maxRetries > 0 && failures > s.maxRetries
}

// backoff returns min(base*2^(n-1), max) plus jitter.
func (s *Supervisor) backoff(attempt int) time.Duration {
	d := s.baseDelay
	for i := 1; i < attempt && d < s.maxDelay; i++ {
		d *= 2
	}
	if d > s.maxDelay {
		d = s.maxDelay
	}
	return d + s.jitter(d)
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.metrics.SetSupervisorState(string(next))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func fractionJitter(fraction float64) func(time.Duration) time.Duration {
	if fraction <= 0 {
		return func(time.Duration) time.Duration { return 0 }
	}
	var mu sync.Mutex
	source := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(d time.Duration) time.Duration {
		window := int64(float64(d) * fraction)
		if window <= 0 {
			return 0
		}
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(source.Int63n(window))
	}
}
