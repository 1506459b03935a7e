package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	transport "quiz-battle-service/internal/transport/http"
	"github.com/cenkalti/backoff/v4"
)

// Client talks to a quiz battle server's REST API and store gateway.
type Client struct {
	base string
	http *http.Client
}

var (
	_ app.QuestionProvider = (*Client)(nil)
	_ app.HistoryRecorder  = (*Client)(nil)
)

func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Deps returns coordinator dependencies served entirely by the remote server over conn.
func (c *Client) Deps(conn *Conn) app.Deps {
	return app.Deps{Store: conn, Questions: c, History: c}
}

// Dial opens a store gateway connection, retrying transient failures until ctx ends.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	u, err := url.Parse(c.base + "/ws")
	if err != nil {
		return nil, fmt.Errorf("gateway url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 15 * time.Second

	var conn *Conn
	err = backoff.Retry(func() error {
		var err error
		conn, err = Dial(ctx, u.String())
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) Questions(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	var out []domain.Question
	if err := c.do(ctx, http.MethodGet, "/questions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Append(ctx context.Context, record domain.HistoryRecord) (string, error) {
	var out transport.HistoryResponse
	if err := c.do(ctx, http.MethodPost, "/history", record, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) CreateRoom(ctx context.Context, cfg domain.RoomConfig, hostID string) (string, domain.RoomConfig, error) {
	return c.createRoom(ctx, transport.CreateRoomRequest{HostID: hostID, Config: &cfg})
}

func (c *Client) CreateFromSelection(ctx context.Context, sel app.Selection, hostID string) (string, domain.RoomConfig, error) {
	return c.createRoom(ctx, transport.CreateRoomRequest{HostID: hostID, Selection: &sel})
}

func (c *Client) createRoom(ctx context.Context, req transport.CreateRoomRequest) (string, domain.RoomConfig, error) {
	var out transport.CreateRoomResponse
	if err := c.do(ctx, http.MethodPost, "/rooms", req, &out); err != nil {
		return "", domain.RoomConfig{}, err
	}
	return out.Code, out.Config, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.base+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.base+path, nil)
	}
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e transport.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}
		if sentinel := transport.DomainError(e.Code); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, e.Error)
		}
		return errors.New(e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
