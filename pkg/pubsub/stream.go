package pubsub

import (
	"context"
	"errors"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// UserIDAttribute scopes a message to one user. Messages without it are delivered.
const UserIDAttribute = "user_id"

var errStreamClosed = errors.New("pubsub stream closed")

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Stream adapts the callback-driven Receive loop into a pull-style iterator. A message
// is acked once Next hands it to the caller.
type Stream struct {
	messages  chan []byte
	done      chan struct{}
	cancel    context.CancelFunc
	err       error
	closeOnce sync.Once
}

// NewStream starts receiving from sub until the stream is closed or ctx ends.
func NewStream(ctx context.Context, sub receiver, userID string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		messages: make(chan []byte),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	go func() {
		defer close(s.done)
		err := sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			if !addressedTo(msg, userID) {
				msg.Ack()
				return
			}
			select {
			case s.messages <- msg.Data:
				msg.Ack()
			case <-msgCtx.Done():
				msg.Nack()
			}
		})
		if err == nil {
			err = errStreamClosed
		}
		s.err = err
	}()

	return s
}

// Next blocks until a message arrives or the receive loop ends.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload := <-s.messages:
		return payload, nil
	case <-s.done:
		return nil, s.err
	}
}

// Close stops the receive loop and waits for it to return.
func (s *Stream) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

func addressedTo(msg *pubsub.Message, userID string) bool {
	if msg == nil || msg.Attributes == nil {
		return true
	}
	target, ok := msg.Attributes[UserIDAttribute]
	if !ok || target == "" {
		return true
	}
	return target == userID
}
