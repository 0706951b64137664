package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestNotificationChannel(t *testing.T) {
	client := &Client{}
	if got := client.NotificationChannel("user123"); got != "notifsync:notifications:user123" {
		t.Fatalf("unexpected default channel %s", got)
	}

	prefixed := &Client{namespace: "staging:"}
	if got := prefixed.NotificationChannel(" user123 "); got != "staging:notifications:user123" {
		t.Fatalf("unexpected prefixed channel %s", got)
	}
	if got := prefixed.buildKey("a", "", "b"); got != "staging:a:b" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestPublishTargetsUserChannel(t *testing.T) {
	mock := &mockCmdable{}
	client := &Client{store: mock}

	receivers, err := client.Publish(context.Background(), "user-1", []byte(`{"id":"1"}`))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if receivers != 1 {
		t.Fatalf("expected 1 receiver, got %d", receivers)
	}
	if mock.channel != "notifsync:notifications:user-1" {
		t.Fatalf("unexpected channel %s", mock.channel)
	}
	if string(mock.message.([]byte)) != `{"id":"1"}` {
		t.Fatalf("unexpected message %v", mock.message)
	}
}

func TestSubscribeYieldsPayloads(t *testing.T) {
	src := &fakeSource{messages: []string{"first", "second"}}
	var gotChannel string
	client := &Client{subscribe: func(_ context.Context, channel string) (messageSource, error) {
		gotChannel = channel
		return src, nil
	}}

	sub, err := client.Subscribe(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if gotChannel != "notifsync:notifications:user-1" || sub.Channel() != gotChannel {
		t.Fatalf("unexpected channel %s", gotChannel)
	}

	for _, want := range []string{"first", "second"} {
		payload, err := sub.Next(context.Background())
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		if string(payload) != want {
			t.Fatalf("expected %q got %q", want, payload)
		}
	}
	if _, err := sub.Next(context.Background()); !errors.Is(err, redis.ErrClosed) {
		t.Fatalf("expected closed error once drained, got %v", err)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !src.closed {
		t.Fatalf("expected source to be closed")
	}
}

func TestSubscribeFailureIsWrapped(t *testing.T) {
	boom := errors.New("dial refused")
	client := &Client{subscribe: func(context.Context, string) (messageSource, error) {
		return nil, boom
	}}
	if _, err := client.Subscribe(context.Background(), "user-1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if _, err := client.Subscribe(context.Background(), "u"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op: %v", err)
	}
}

func TestOptionsFromConfigRequiresAddress(t *testing.T) {
	if _, err := optionsFromConfig(configWith("", "")); err == nil {
		t.Fatalf("expected missing address to fail")
	}
	opts, err := optionsFromConfig(configWith("redis://localhost:6380/3", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 3 {
		t.Fatalf("unexpected options %s db=%d", opts.Addr, opts.DB)
	}
	if opts.PoolSize != 10 {
		t.Fatalf("expected pool size from config, got %d", opts.PoolSize)
	}
}

type mockCmdable struct {
	channel string
	message any
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	m.channel = channel
	m.message = message
	return redis.NewIntResult(1, nil)
}

type fakeSource struct {
	messages []string
	closed   bool
}

func (f *fakeSource) ReceiveMessage(context.Context) (*redis.Message, error) {
	if len(f.messages) == 0 {
		return nil, redis.ErrClosed
	}
	msg := &redis.Message{Channel: "test", Payload: f.messages[0]}
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}
