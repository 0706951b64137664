package fallback

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/pkg/config"
	"github.com/julianshen/twspoc/pkg/enums"
	"github.com/julianshen/twspoc/pkg/logger"
)

const (
	defaultInterval = 15 * time.Second
	idPrefix        = "mock-"
	syntheticTitle  = "New Notification"
	seedSpacing     = 11 * time.Minute
	seedOffset      = 27 * time.Minute
)

var syntheticLabels = []string{"Mock", "Automated"}

// seedTemplates shape the notifications served when the snapshot is unavailable.
var seedTemplates = []struct {
	message    string
	priority   enums.Priority
	labels     []string
	attachment *notifications.Attachment
}{
	{
		message:  "Notification service is unreachable; showing locally generated notifications",
		priority: enums.PriorityHigh,
		labels:   []string{"System", "Important"},
		attachment: &notifications.Attachment{
			ID:    "doc1",
			Type:  enums.AttachmentTypeDocument,
			Title: "Connectivity report",
			Data:  map[string]any{"content": "The remote feed could not be reached."},
		},
	},
	{
		message:  "Generated while the remote feed was offline",
		priority: enums.PriorityLow,
		labels:   []string{"Debug", "Low Priority"},
	},
}

type Params struct {
	Config config.FallbackConfig
	Logger *logger.Logger
	Now    func() time.Time
	Source rand.Source
}

// Generator produces synthetic notifications shaped like the real feed.
type Generator struct {
	interval time.Duration
	logg     *logger.Logger
	now      func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func New(params Params) (*Generator, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	interval := params.Config.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	source := params.Source
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	return &Generator{
		interval: interval,
		logg:     params.Logger,
		now:      now,
		rng:      rand.New(source),
	}, nil
}

// Interval returns the emission period.
func (g *Generator) Interval() time.Duration {
	return g.interval
}

// Next builds one synthetic notification stamped with the current time.
func (g *Generator) Next() notifications.Notification {
	now := g.now()
	return notifications.Notification{
		ID:        idPrefix + uuid.NewString(),
		Title:     syntheticTitle,
		Message:   fmt.Sprintf("This is a generated notification created at %s", now.Format(time.Kitchen)),
		Timestamp: now,
		Priority:  g.priority(),
		Labels:    append([]string(nil), syntheticLabels...),
	}
}

// Sample returns n backdated seed notifications, newest first.
func (g *Generator) Sample(n int) []notifications.Notification {
	if n <= 0 {
		return nil
	}
	now := g.now()
	out := make([]notifications.Notification, 0, n)
	for i := 0; i < n; i++ {
		tpl := seedTemplates[i%len(seedTemplates)]
		item := notifications.Notification{
			ID:        idPrefix + uuid.NewString(),
			Title:     syntheticTitle,
			Message:   tpl.message,
			Timestamp: now.Add(-seedOffset - time.Duration(i)*seedSpacing),
			Priority:  tpl.priority,
			Labels:    append([]string(nil), tpl.labels...),
		}
		if tpl.attachment != nil {
			att := *tpl.attachment
			att.Data = maps.Clone(tpl.attachment.Data)
			item.Attachment = &att
		}
		out = append(out, item)
	}
	return out
}

// Run emits one notification immediately and then one per interval until ctx ends.
func (g *Generator) Run(ctx context.Context, emit func(notifications.Notification)) error {
	if emit == nil {
		return errors.New("emit func is required")
	}
	g.logg.Info(g.logg.WithField(ctx, "interval_ms", g.interval.Milliseconds()), "fallback.started")
	defer g.logg.Info(ctx, "fallback.stopped")

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(g.Next())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// priority draws high:1, medium:3, low:6.
func (g *Generator) priority() enums.Priority {
	g.mu.Lock()
	roll := g.rng.Intn(10)
	g.mu.Unlock()
	switch {
	case roll < 1:
		return enums.PriorityHigh
	case roll < 4:
		return enums.PriorityMedium
	default:
		return enums.PriorityLow
	}
}
