package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/board"
	"github.com/christianmark/transmit/internal/feed"
	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/render"
	"github.com/christianmark/transmit/internal/session"
	"github.com/christianmark/transmit/internal/store"
	"github.com/christianmark/transmit/internal/websocket"
)

type testServer struct {
	*httptest.Server
	store *store.MemoryStore
	hub   *websocket.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.NewMemory()
	html, err := render.NewHTML(time.UTC)
	if err != nil {
		t.Fatalf("NewHTML failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	registry := board.NewRegistry(ctx, session.NewMemoryKV(), time.Minute, func(sess *session.Store) *board.Board {
		return board.New(st, sess, board.WithHTML(html))
	}, zerolog.Nop())

	events := feed.Subscribe(ctx, st, feed.WithRetry(10*time.Millisecond))
	hub := websocket.NewHub(events, registry, zerolog.Nop())
	go hub.Run(ctx)

	h := NewHandler(st, registry, hub, html, zerolog.Nop(), "test")
	srv := httptest.NewServer(NewRouter(h, zerolog.Nop(), []string{"*"}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	ts := &testServer{Server: srv, store: st, hub: hub}
	eventually(t, hub.Connected)
	return ts
}

// browser returns a client that keeps cookies and does not follow redirects.
func (ts *testServer) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar failed: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func form(t *testing.T, c *http.Client, target string, values url.Values) (int, string) {
	t.Helper()
	resp, err := c.PostForm(target, values)
	if err != nil {
		t.Fatalf("POST %s failed: %v", target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func get(t *testing.T, c *http.Client, target string) (int, string) {
	t.Helper()
	resp, err := c.Get(target)
	if err != nil {
		t.Fatalf("GET %s failed: %v", target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func login(t *testing.T, ts *testServer, c *http.Client, name string) {
	t.Helper()
	status, body := form(t, c, ts.URL+"/session", url.Values{"username": {name}})
	if status != http.StatusSeeOther {
		t.Fatalf("expected 303 from login, got %d: %s", status, body)
	}
}

func TestIndexSetsDeviceCookie(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)

	resp, err := c.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	resp.Body.Close()

	var found bool
	for _, cookie := range resp.Cookies() {
		if cookie.Name == DeviceCookie && cookie.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an HttpOnly device cookie")
	}

	_, body := get(t, c, ts.URL+"/")
	if !strings.Contains(body, `id="user-setup"`) {
		t.Error("expected the setup view for a new device")
	}
}

func TestLoginSwitchesToActiveView(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	get(t, c, ts.URL+"/")

	login(t, ts, c, "al")

	_, body := get(t, c, ts.URL+"/")
	if !strings.Contains(body, `id="current-user">AL<`) {
		t.Errorf("expected active view for AL, got %s", body)
	}
	if !strings.Contains(body, "OPERATIVE AL CONNECTED") {
		t.Error("expected the connection notice")
	}

	// another browser has its own session
	_, other := get(t, ts.browser(t), ts.URL+"/")
	if !strings.Contains(other, `id="user-setup"`) {
		t.Error("expected a second device to start in setup view")
	}
}

func TestLoginRejectsShortName(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)

	status, body := form(t, c, ts.URL+"/session", url.Values{"username": {"a"}})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if !strings.Contains(body, "ERROR: USERNAME MUST BE AT LEAST 2 CHARACTERS") {
		t.Error("expected the validation alert on the page")
	}
	if !strings.Contains(body, `id="user-setup"`) {
		t.Error("expected to stay on the setup view")
	}
}

func TestPostFlow(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)

	status, body := form(t, c, ts.URL+"/transmissions", url.Values{"text": {"hello"}})
	if status != http.StatusUnauthorized || !strings.Contains(body, "SESSION EXPIRED") {
		t.Fatalf("expected 401 session expired, got %d", status)
	}

	login(t, ts, c, "alpha")

	status, _ = form(t, c, ts.URL+"/transmissions", url.Values{"text": {strings.Repeat("x", 501)}})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for 501 characters, got %d", status)
	}
	if ts.store.Count() != 0 {
		t.Fatal("expected no transmission after a rejected post")
	}

	status, _ = form(t, c, ts.URL+"/transmissions", url.Values{"text": {"<b>hello</b>"}})
	if status != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", status)
	}
	if ts.store.Count() != 1 {
		t.Fatalf("expected 1 transmission, got %d", ts.store.Count())
	}

	eventually(t, func() bool {
		_, body := get(t, c, ts.URL+"/")
		return strings.Contains(body, "&lt;b&gt;hello&lt;/b&gt;")
	})
	_, body = get(t, c, ts.URL+"/")
	if !strings.Contains(body, `id="message-count">1<`) {
		t.Error("expected the message count to read 1")
	}
}

func TestDeleteFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	theirs := &models.Message{Author: "BRAVO", Text: "not yours"}
	ts.store.Push(ctx, theirs)

	c := ts.browser(t)
	login(t, ts, c, "alpha")
	form(t, c, ts.URL+"/transmissions", url.Values{"text": {"mine"}})

	var mine models.Message
	all, _ := ts.store.All(ctx)
	for _, m := range all {
		if m.Author == "ALPHA" {
			mine = m
		}
	}

	status, body := get(t, c, ts.URL+"/transmissions/"+mine.ID+"/delete")
	if status != http.StatusOK || !strings.Contains(body, "CONFIRM DELETION") {
		t.Fatalf("expected the confirmation panel, got %d", status)
	}

	status, body = form(t, c, ts.URL+"/transmissions/"+theirs.ID+"/delete", nil)
	if status != http.StatusForbidden || !strings.Contains(body, "UNAUTHORIZED DELETION ATTEMPT") {
		t.Fatalf("expected 403 unauthorized, got %d", status)
	}
	if _, err := ts.store.Get(ctx, theirs.ID); err != nil {
		t.Fatal("expected the other author's transmission to remain")
	}

	status, _ = form(t, c, ts.URL+"/transmissions/"+mine.ID+"/delete", nil)
	if status != http.StatusSeeOther {
		t.Fatalf("expected 303 after deleting own transmission, got %d", status)
	}
	if ts.store.Count() != 1 {
		t.Fatalf("expected 1 transmission left, got %d", ts.store.Count())
	}

	_, body = get(t, c, ts.URL+"/")
	if !strings.Contains(body, "TRANSMISSION DELETED SUCCESSFULLY") {
		t.Error("expected the deletion notice")
	}
}

func TestCancelDeleteClosesPanel(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	login(t, ts, c, "alpha")

	get(t, c, ts.URL+"/transmissions/some-id/delete")
	status, _ := form(t, c, ts.URL+"/transmissions/delete/cancel", nil)
	if status != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", status)
	}

	_, body := get(t, c, ts.URL+"/")
	if strings.Contains(body, "CONFIRM DELETION") {
		t.Error("expected the confirmation panel to be closed")
	}
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	login(t, ts, c, "zulu")

	status, _ := form(t, c, ts.URL+"/session/logout", nil)
	if status != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", status)
	}

	_, body := get(t, c, ts.URL+"/")
	if !strings.Contains(body, `id="user-setup"`) {
		t.Error("expected setup view after logout")
	}
}

func postJSON(t *testing.T, target string, v interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(v)
	resp, err := http.Post(target, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", target, err)
	}
	return resp
}

func TestTransmissionsAPI(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/api/transmissions"

	resp := postJSON(t, base, models.PostMessageRequest{Author: "ALPHA", Text: "  over the wire  ", UserAgent: strings.Repeat("z", 90)})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created models.Message
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.ID == "" || created.Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", created)
	}
	if created.Text != "over the wire" || len(created.UserAgent) != models.UserAgentMaxLength {
		t.Errorf("unexpected stored fields %+v", created)
	}

	_, body := get(t, http.DefaultClient, base)
	var list models.GetMessagesResponse
	json.Unmarshal([]byte(body), &list)
	if len(list.Transmissions) != 1 {
		t.Fatalf("expected 1 transmission in list, got %d", len(list.Transmissions))
	}

	status, _ := get(t, http.DefaultClient, base+"/"+created.ID)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	req, _ := http.NewRequest(http.MethodDelete, base+"/"+created.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	status, _ = get(t, http.DefaultClient, base+"/"+created.ID)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", status)
	}
}

func TestTransmissionsAPIValidation(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/api/transmissions"

	cases := []models.PostMessageRequest{
		{Author: "A", Text: "short name"},
		{Author: "alpha", Text: "not uppercased"},
		{Author: "ALPHA", Text: "   "},
		{Author: "ALPHA", Text: strings.Repeat("x", 501)},
	}
	for _, req := range cases {
		resp := postJSON(t, base, req)
		var apiErr models.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&apiErr)
		resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%+v: expected 400, got %d", req, resp.StatusCode)
		}
		if apiErr.Kind != models.KindValidation.String() {
			t.Errorf("%+v: expected validation kind, got %q", req, apiErr.Kind)
		}
	}
	if ts.store.Count() != 0 {
		t.Error("expected nothing stored")
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	status, body := get(t, http.DefaultClient, ts.URL+"/health")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var health HealthResponse
	json.Unmarshal([]byte(body), &health)
	if health.Status != "ok" || health.Checks["store"].Status != "pass" {
		t.Errorf("unexpected health %+v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	get(t, http.DefaultClient, ts.URL+"/health")

	status, body := get(t, http.DefaultClient, ts.URL+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(body, "transmit_http_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}
