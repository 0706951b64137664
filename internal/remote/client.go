package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/julianshen/twspoc/internal/notifications"
	pkgerrors "github.com/julianshen/twspoc/pkg/errors"
)

const (
	defaultBaseURL         = "http://localhost:8080"
	defaultRequestTimeout  = 10 * time.Second
	responseBodyReadLimit  = 1024
	defaultMaxEventSize    = 1 << 20
	notificationsPath      = "/api/notifications"
	notificationsSubscribe = "/api/notifications/subscribe"
)

var errUserIDRequired = errors.New("remote user id is required")

// Client is the transport to the notification authority. It holds no local state and
// performs no retries.
type Client interface {
	Opener
	FetchSnapshot(ctx context.Context) ([]notifications.Notification, error)
	ConfirmRead(ctx context.Context, id string) error
	ConfirmDelete(ctx context.Context, id string) error
}

// Opener establishes a push channel.
type Opener interface {
	OpenPushChannel(ctx context.Context) (PushChannel, error)
}

// PushChannel yields raw event payloads until it fails or is closed. It cannot be
// restarted; open a new one instead.
type PushChannel interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// DecodeErrorHandler observes entries dropped because they failed to decode.
type DecodeErrorHandler func(raw []byte, err error)

// HTTPClient talks to the notification service over HTTP and SSE.
type HTTPClient struct {
	httpClient     *http.Client
	baseURL        string
	userID         string
	requestTimeout time.Duration
	maxEventSize   int
	onDecodeError  DecodeErrorHandler
}

// Option configures optional client behavior.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client. Do not set a client-wide Timeout:
// it would also cut the push stream.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the service base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *HTTPClient) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithRequestTimeout bounds every request/response round trip except the push stream.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithMaxEventSize caps the bytes of one push event, line framing included.
func WithMaxEventSize(n int) Option {
	return func(c *HTTPClient) {
		if n > 0 {
			c.maxEventSize = n
		}
	}
}

// WithDecodeErrorHandler registers a hook for snapshot entries that fail to decode.
func WithDecodeErrorHandler(fn DecodeErrorHandler) Option {
	return func(c *HTTPClient) {
		c.onDecodeError = fn
	}
}

// NewHTTPClient builds the remote client for userID.
func NewHTTPClient(userID string, opts ...Option) (*HTTPClient, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return nil, errUserIDRequired
	}

	client := &HTTPClient{
		httpClient:     &http.Client{},
		baseURL:        defaultBaseURL,
		userID:         trimmed,
		requestTimeout: defaultRequestTimeout,
		maxEventSize:   defaultMaxEventSize,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// FetchSnapshot lists every current notification for the user. Entries that fail to
// decode are dropped.
func (c *HTTPClient) FetchSnapshot(ctx context.Context) ([]notifications.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	endpoint := c.buildURL(notificationsPath, url.Values{"userId": {c.userID}})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, err, "build snapshot request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(ctx, err, "fetch snapshot")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "fetch snapshot")
	}

	var entries []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, classify(ctx, err, "decode snapshot response")
	}

	items := make([]notifications.Notification, 0, len(entries))
	for _, raw := range entries {
		n, err := notifications.DecodePayload(raw)
		if err != nil {
			if c.onDecodeError != nil {
				c.onDecodeError(raw, err)
			}
			continue
		}
		items = append(items, n)
	}
	return items, nil
}

// ConfirmRead tells the authority id was read. Any 2xx is a confirmation.
func (c *HTTPClient) ConfirmRead(ctx context.Context, id string) error {
	endpoint := c.buildURL(notificationsPath+"/"+url.PathEscape(id)+"/read", nil)
	return c.confirm(ctx, http.MethodPost, endpoint, "confirm read", false)
}

// ConfirmDelete tells the authority id was deleted. A 404 means it is already gone.
func (c *HTTPClient) ConfirmDelete(ctx context.Context, id string) error {
	endpoint := c.buildURL(notificationsPath+"/"+url.PathEscape(id), nil)
	return c.confirm(ctx, http.MethodDelete, endpoint, "confirm delete", true)
}

func (c *HTTPClient) confirm(ctx context.Context, method, endpoint, op string, notFoundOK bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransport, err, "build "+op+" request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, err, op)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil
	case notFoundOK && resp.StatusCode == http.StatusNotFound:
		return nil
	}
	return statusError(resp, op)
}

// OpenPushChannel subscribes to the server-sent event stream. The channel lives as long
// as ctx.
func (c *HTTPClient) OpenPushChannel(ctx context.Context) (PushChannel, error) {
	endpoint := c.buildURL(notificationsSubscribe, url.Values{"userId": {c.userID}})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConnect, err, "build subscribe request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConnect, err, "open push channel")
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeConnect,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"open push channel").WithDetails(map[string]any{"status": resp.StatusCode})
	}

	return newSSEChannel(resp.Body, c.maxEventSize), nil
}

func (c *HTTPClient) buildURL(path string, query url.Values) string {
	endpoint := strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

// classify maps a transport failure onto TIMEOUT_ERROR or TRANSPORT_ERROR.
func classify(ctx context.Context, err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransport, err, op)
}

func statusError(resp *http.Response, op string) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	return pkgerrors.Wrap(pkgerrors.CodeTransport,
		fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		op+" failed").WithDetails(map[string]any{"status": resp.StatusCode})
}
