package remote

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/julianshen/twspoc/pkg/errors"
)

// SubscribeFunc opens a subscription on a message broker and returns it as a channel.
type SubscribeFunc func(ctx context.Context) (PushChannel, error)

// BrokerOpener carries the push channel over a broker subscription (redis, pubsub)
// instead of the SSE endpoint. Records on the broker share the snapshot JSON shape.
type BrokerOpener struct {
	name      string
	subscribe SubscribeFunc
}

// NewBrokerOpener wraps subscribe so failures surface with the push channel taxonomy.
func NewBrokerOpener(name string, subscribe SubscribeFunc) (*BrokerOpener, error) {
	if subscribe == nil {
		return nil, errors.New("subscribe func is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "broker"
	}
	return &BrokerOpener{name: name, subscribe: subscribe}, nil
}

func (b *BrokerOpener) OpenPushChannel(ctx context.Context) (PushChannel, error) {
	ch, err := b.subscribe(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConnect, err, "subscribe "+b.name)
	}
	if ch == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConnect, "subscribe "+b.name+": no channel")
	}
	return &brokerChannel{name: b.name, inner: ch}, nil
}

type brokerChannel struct {
	name  string
	inner PushChannel
}

func (c *brokerChannel) Next(ctx context.Context) ([]byte, error) {
	payload, err := c.inner.Next(ctx)
	if err != nil {
		if ctx.Err() != nil || pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, err, "receive from "+c.name)
	}
	return payload, nil
}

func (c *brokerChannel) Close() error {
	return c.inner.Close()
}
