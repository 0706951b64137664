package remote

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	pkgerrors "github.com/julianshen/twspoc/pkg/errors"
)

const sseInitialBuffer = 4096

// sseChannel reads a text/event-stream body. Each dispatched event yields the joined
// data lines; comments and the event, id and retry fields are ignored.
type sseChannel struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	maxEvent  int
	closeOnce sync.Once
	closeErr  error
}

func newSSEChannel(body io.ReadCloser, maxEvent int) *sseChannel {
	if maxEvent <= 0 {
		maxEvent = defaultMaxEventSize
	}
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, min(sseInitialBuffer, maxEvent)), maxEvent)
	return &sseChannel{body: body, scanner: scanner, maxEvent: maxEvent}
}

func (c *sseChannel) Next(ctx context.Context) ([]byte, error) {
	var (
		data    []string
		hasData bool
		size    int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !c.scanner.Scan() {
			err := c.scanner.Err()
			switch {
			case err == nil:
				return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, io.ErrUnexpectedEOF, "push channel closed by remote")
			case errors.Is(err, bufio.ErrTooLong):
				return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, err, "push event exceeds size limit").
					WithDetails(map[string]any{"limit": c.maxEvent})
			default:
				return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, err, "read push channel")
			}
		}
		line := strings.TrimRight(c.scanner.Text(), "\r")

		if line == "" {
			if hasData {
				return []byte(strings.Join(data, "\n")), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		if field != "data" {
			continue
		}
		size += len(value) + 1
		if size > c.maxEvent {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, bufio.ErrTooLong, "push event exceeds size limit").
				WithDetails(map[string]any{"limit": c.maxEvent})
		}
		data = append(data, value)
		hasData = true
	}
}

func (c *sseChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.body.Close()
	})
	return c.closeErr
}
