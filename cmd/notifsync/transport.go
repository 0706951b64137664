package main

import (
	"context"
	"io"

	"go.uber.org/multierr"

	"github.com/julianshen/twspoc/api/controllers"
	"github.com/julianshen/twspoc/internal/reconcile"
	"github.com/julianshen/twspoc/internal/remote"
	"github.com/julianshen/twspoc/pkg/config"
	"github.com/julianshen/twspoc/pkg/enums"
	"github.com/julianshen/twspoc/pkg/logger"
	"github.com/julianshen/twspoc/pkg/metrics"
	"github.com/julianshen/twspoc/pkg/pubsub"
	"github.com/julianshen/twspoc/pkg/redis"
)

// transport bundles the remote client with the configured push channel source.
type transport struct {
	remote  reconcile.Remote
	opener  remote.Opener
	pingers []controllers.Pinger
	closers []io.Closer
}

func (t *transport) Close() error {
	var err error
	for i := len(t.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, t.closers[i].Close())
	}
	return err
}

func buildTransport(ctx context.Context, cfg *config.Config, logg *logger.Logger, m *metrics.SyncMetrics) (*transport, error) {
	t := &transport{}
	if cfg.Remote.Offline {
		return t, nil
	}

	client, err := remote.NewHTTPClient(cfg.Remote.UserID,
		remote.WithBaseURL(cfg.Remote.BaseURL),
		remote.WithRequestTimeout(cfg.Remote.RequestTimeout),
		remote.WithMaxEventSize(cfg.Remote.MaxEventBytes),
		remote.WithDecodeErrorHandler(func(raw []byte, err error) {
			m.IncDropped("decode")
			logg.Warn(logg.WithFields(ctx, map[string]any{"error": err.Error(), "bytes": len(raw)}), "remote.snapshot_entry_dropped")
		}),
	)
	if err != nil {
		return nil, err
	}
	t.remote = client

	userID := cfg.Remote.UserID
	switch cfg.Push.TransportKind() {
	case enums.PushTransportRedis:
		rc, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, rc)
		t.pingers = append(t.pingers, rc)
		opener, err := remote.NewBrokerOpener("redis", func(ctx context.Context) (remote.PushChannel, error) {
			sub, err := rc.Subscribe(ctx, userID)
			if err != nil {
				return nil, err
			}
			return sub, nil
		})
		if err != nil {
			return nil, multierr.Append(err, t.Close())
		}
		t.opener = opener
	case enums.PushTransportPubSub:
		pc, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, pc)
		t.pingers = append(t.pingers, pc)
		opener, err := remote.NewBrokerOpener("pubsub", func(ctx context.Context) (remote.PushChannel, error) {
			stream, err := pc.Subscribe(ctx, userID)
			if err != nil {
				return nil, err
			}
			return stream, nil
		})
		if err != nil {
			return nil, multierr.Append(err, t.Close())
		}
		t.opener = opener
	default:
		t.opener = client
	}

	logg.Info(logg.WithField(ctx, "transport", string(cfg.Push.TransportKind())), "push.transport_selected")
	return t, nil
}
