package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/christianmark/transmit/internal/models"
)

// Remote talks to a transmit server over its REST API and stream endpoint.
type Remote struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	dialer     *websocket.Dialer
	opts       options
}

// NewRemote creates a client for the server at baseURL. Requests carry
// userAgent, which the server keeps as the message signature.
func NewRemote(baseURL, userAgent string, opts ...Option) *Remote {
	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
		opts:       newOptions(opts),
	}
}

func (r *Remote) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var apiErr models.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("server error (status %d)", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (r *Remote) Push(ctx context.Context, msg *models.Message) error {
	var stored models.Message
	err := r.do(ctx, http.MethodPost, "/api/transmissions", models.PostMessageRequest{
		Author:    msg.Author,
		Text:      msg.Text,
		UserAgent: msg.UserAgent,
	}, &stored)
	if err != nil {
		return err
	}

	msg.ID = stored.ID
	msg.Timestamp = stored.Timestamp
	return nil
}

func (r *Remote) Get(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := r.do(ctx, http.MethodGet, "/api/transmissions/"+url.PathEscape(id), nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *Remote) Remove(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/api/transmissions/"+url.PathEscape(id), nil, nil)
}

func (r *Remote) All(ctx context.Context) ([]models.Message, error) {
	var resp models.GetMessagesResponse
	if err := r.do(ctx, http.MethodGet, "/api/transmissions", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Transmissions == nil {
		resp.Transmissions = []models.Message{}
	}
	return resp.Transmissions, nil
}

// Watch dials the stream endpoint. The server sends the current snapshot on
// connect and after every change.
func (r *Remote) Watch(ctx context.Context) (<-chan Snapshot, error) {
	streamURL, err := r.streamURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("User-Agent", r.userAgent)
	conn, _, err := r.dialer.DialContext(ctx, streamURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	out := make(chan Snapshot, 1)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(out)
		defer cancel()

		for {
			var frame models.SnapshotFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if ctx.Err() == nil {
					r.opts.logger.Warn().Err(err).Msg("stream closed")
				}
				return
			}
			if frame.Type != models.FrameSnapshot {
				continue
			}
			if frame.Transmissions == nil {
				frame.Transmissions = []models.Message{}
			}
			offer(out, Snapshot(frame.Transmissions))
		}
	}()

	return out, nil
}

func (r *Remote) streamURL() (string, error) {
	u, err := url.Parse(r.baseURL + "/api/transmissions/stream")
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (r *Remote) Ping(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (r *Remote) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

var _ Store = (*Remote)(nil)
