package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/christianmark/transmit/internal/models"
)

// SupabaseStore is a wrapper around the Supabase REST API.
// It uses the service role key for backend operations with elevated privileges.
// The database assigns ids and timestamps; changes are found by polling.
type SupabaseStore struct {
	baseURL    string
	apiKey     string
	table      string
	interval   time.Duration
	httpClient *http.Client
	opts       options
}

// NewSupabase creates a new Supabase store for the given project and table.
func NewSupabase(baseURL, apiKey, table string, pollInterval time.Duration, opts ...Option) *SupabaseStore {
	return &SupabaseStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		table:    table,
		interval: pollInterval,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		opts: newOptions(opts),
	}
}

// doRequest executes an HTTP request to the Supabase REST API.
// It automatically adds authentication headers and handles the response.
func (s *SupabaseStore) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	endpointURL := fmt.Sprintf("%s/rest/v1/%s", s.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, endpointURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Add Supabase authentication headers
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("supabase error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// supabaseRow is the insert payload; id and timestamp come from column defaults.
type supabaseRow struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	UserAgent string `json:"user_agent"`
}

// Push inserts a new transmission and copies back the stored row.
func (s *SupabaseStore) Push(ctx context.Context, msg *models.Message) error {
	respBody, err := s.doRequest(ctx, http.MethodPost, s.table, supabaseRow{
		Author:    msg.Author,
		Text:      msg.Text,
		UserAgent: msg.UserAgent,
	})
	if err != nil {
		return err
	}

	var rows []models.Message
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return fmt.Errorf("failed to parse transmission: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("supabase returned no row for insert")
	}

	msg.ID = rows[0].ID
	msg.Timestamp = rows[0].Timestamp.UTC()
	return nil
}

// Get retrieves a transmission by its ID.
func (s *SupabaseStore) Get(ctx context.Context, id string) (*models.Message, error) {
	endpoint := fmt.Sprintf("%s?id=eq.%s&select=*", s.table, url.QueryEscape(id))
	respBody, err := s.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var rows []models.Message
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse transmission: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	rows[0].Timestamp = rows[0].Timestamp.UTC()
	return &rows[0], nil
}

// Remove deletes a transmission from the table.
func (s *SupabaseStore) Remove(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s?id=eq.%s", s.table, url.QueryEscape(id))
	respBody, err := s.doRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	var rows []models.Message
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return fmt.Errorf("failed to parse deleted rows: %w", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// All retrieves every transmission.
func (s *SupabaseStore) All(ctx context.Context) ([]models.Message, error) {
	respBody, err := s.doRequest(ctx, http.MethodGet, s.table+"?select=*", nil)
	if err != nil {
		return nil, err
	}

	var rows []models.Message
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse transmissions: %w", err)
	}
	for i := range rows {
		rows[i].Timestamp = rows[i].Timestamp.UTC()
	}
	if rows == nil {
		rows = []models.Message{}
	}
	return rows, nil
}

func (s *SupabaseStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	poller := NewPoller(s.All, s.interval, s.opts.logger)
	if err := poller.Prime(ctx); err != nil {
		cancel()
		return nil, err
	}
	go poller.Start(ctx)

	return follow(ctx, cancel, poller.Changed(), s.All, s.opts.logger), nil
}

// Ping issues the cheapest possible read against the table.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	_, err := s.doRequest(ctx, http.MethodGet, s.table+"?select=id&limit=1", nil)
	return err
}

func (s *SupabaseStore) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

var _ Store = (*SupabaseStore)(nil)
