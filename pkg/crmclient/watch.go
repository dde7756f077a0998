package crmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/lalith-99/crmhub/internal/tenancy"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"go.uber.org/zap"
)

func (c *Client) eventsURL(token string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("crmclient: parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/events"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Watch subscribes to the server's change stream and invalidates the
// cache as events arrive. It blocks until ctx is done or the stream
// fails; callers typically run it in a goroutine and redial on error.
func (s *Session) Watch(ctx context.Context) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	target, err := s.client.eventsURL(token)
	if err != nil {
		return err
	}
	header := http.Header{}
	if s.client.subdomain != "" {
		header.Set(tenancy.HeaderSubdomain, s.client.subdomain)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		return fmt.Errorf("%w: dial event stream: %w", ErrRetryable, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var ev invalidation.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: read event: %w", ErrRetryable, err)
		}
		s.client.logger.Debug("change event",
			zap.String("group", string(ev.Group)),
			zap.String("action", string(ev.Action)),
		)
		s.ApplyEvent(ev)
	}
}
