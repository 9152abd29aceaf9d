// Package board holds the per-viewer state of the transmissions page and the
// commands that change it.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/feed"
	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/render"
	"github.com/christianmark/transmit/internal/session"
	"github.com/christianmark/transmit/internal/store"
)

// Board is the state behind one viewer's page: who they are, the latest
// ordered snapshot, local notices and a pending delete confirmation.
//
// Messages only change through Apply. Commands mutate the store and wait for
// the feed to bring the result back.
type Board struct {
	mu sync.Mutex

	store   store.Store
	session *session.Store
	html    *render.HTML
	logger  zerolog.Logger
	now     func() time.Time

	userAgent string
	notices   *render.Notices
	messages  []models.Message
	connected bool
	pending   *models.Message
}

// Option configures a Board.
type Option func(*Board)

// WithHTML sets the renderer used by Frame.
func WithHTML(h *render.HTML) Option {
	return func(b *Board) { b.html = h }
}

// WithUserAgent sets the client signature attached to posts.
func WithUserAgent(ua string) Option {
	return func(b *Board) { b.userAgent = ua }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Board) { b.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// New creates a board over st for the viewer whose name lives in sess.
func New(st store.Store, sess *session.Store, opts ...Option) *Board {
	b := &Board{
		store:   st,
		session: sess,
		logger:  zerolog.Nop(),
		now:     time.Now,
		notices: render.NewNotices(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// View is derived from the session: a stored name means the active view.
func (b *Board) View() render.View {
	if _, ok := b.session.CurrentName(); ok {
		return render.ViewActive
	}
	return render.ViewSetup
}

// Username returns the current session name, or "".
func (b *Board) Username() string {
	name, _ := b.session.CurrentName()
	return name
}

// SetUserAgent replaces the signature attached to later posts.
func (b *Board) SetUserAgent(ua string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userAgent = ua
}

// SetUsername stores a new display name. When the feed is connected the
// arrival is announced with a notice.
func (b *Board) SetUsername(raw string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name, err := b.session.SetName(raw)
	if err != nil {
		return "", err
	}
	if b.connected {
		b.notices.Add(fmt.Sprintf("OPERATIVE %s CONNECTED", name), b.now())
	}
	b.logger.Debug().Str("user", name).Msg("session started")
	return name, nil
}

// Post sends text as the current user. Blank text is ignored. The new
// transmission is not added locally; it arrives with the next snapshot.
func (b *Board) Post(ctx context.Context, text string) (*models.Message, error) {
	name, ok := b.session.CurrentName()
	if !ok {
		return nil, models.ErrSessionExpired
	}

	text, err := models.NormalizeText(text)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	b.mu.Lock()
	ua := b.userAgent
	b.mu.Unlock()

	msg := &models.Message{
		Author:    name,
		Text:      text,
		UserAgent: models.Signature(ua),
	}
	if err := b.store.Push(ctx, msg); err != nil {
		return nil, models.RemoteAlert(err)
	}
	return msg, nil
}

// ConfirmDelete opens the confirmation step for id.
func (b *Board) ConfirmDelete(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := &models.Message{ID: id}
	for _, m := range b.messages {
		if m.ID == id {
			m := m
			pending = &m
			break
		}
	}
	b.pending = pending
}

// CancelDelete closes the confirmation step.
func (b *Board) CancelDelete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// Pending returns the transmission awaiting confirmation, if any.
func (b *Board) Pending() *models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return nil
	}
	p := *b.pending
	return &p
}

// Delete removes id after re-reading it and checking that the current user
// wrote it. The check happens here only; the store itself accepts any removal.
func (b *Board) Delete(ctx context.Context, id string) error {
	name, ok := b.session.CurrentName()

	msg, err := b.store.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		msg = nil
	case err != nil:
		return models.RemoteAlert(err)
	}

	if !ok || msg == nil || !msg.OwnedBy(name) {
		b.CancelDelete()
		b.logger.Warn().Str("id", id).Str("user", name).Msg("unauthorized deletion attempt")
		return models.ErrUnauthorized
	}

	// The confirmation stays open when the store refuses.
	if err := b.store.Remove(ctx, id); err != nil {
		return models.RemoteAlert(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.notices.Add("TRANSMISSION DELETED SUCCESSFULLY", b.now())
	return nil
}

// Logout announces the departure, forgets the name and returns to setup.
func (b *Board) Logout() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name, ok := b.session.CurrentName(); ok {
		b.notices.Add(fmt.Sprintf("OPERATIVE %s DISCONNECTED", name), b.now())
	}
	b.pending = nil
	return b.session.Clear()
}

// Apply folds a feed event into the board.
func (b *Board) Apply(ev feed.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch ev.Kind {
	case feed.EventSnapshot:
		b.messages = ev.Messages
	case feed.EventConnected:
		b.connected = true
		if name, ok := b.session.CurrentName(); ok {
			b.notices.Add(fmt.Sprintf("OPERATIVE %s CONNECTED", name), b.now())
		}
	case feed.EventDisconnected:
		b.connected = false
	}
}

// Refresh replaces the messages with a direct read from the store, for
// callers that do not run a feed.
func (b *Board) Refresh(ctx context.Context) error {
	msgs, err := b.store.All(ctx)
	if err != nil {
		return models.RemoteAlert(err)
	}
	b.Apply(feed.Event{Kind: feed.EventSnapshot, Messages: feed.Order(msgs)})
	return nil
}

// State is a consistent copy of what the board shows.
type State struct {
	View      render.View
	Username  string
	Messages  []models.Message
	Notices   []render.Notice
	Pending   *models.Message
	Connected bool
}

func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	name, ok := b.session.CurrentName()
	view := render.ViewSetup
	if ok {
		view = render.ViewActive
	}

	var pending *models.Message
	if b.pending != nil {
		p := *b.pending
		pending = &p
	}
	return State{
		View:      view,
		Username:  name,
		Messages:  b.messages,
		Notices:   b.notices.List(),
		Pending:   pending,
		Connected: b.connected,
	}
}

// Frame renders the message list for this board's viewer.
func (b *Board) Frame() (render.Frame, error) {
	if b.html == nil {
		return render.Frame{}, fmt.Errorf("board has no html renderer")
	}
	st := b.State()
	out, err := b.html.Messages(st.Username, st.Messages, st.Notices)
	if err != nil {
		return render.Frame{}, err
	}
	return render.Frame{
		HTML:            string(out),
		Count:           len(st.Messages),
		ScrollThreshold: render.ScrollThreshold,
	}, nil
}

// Page builds the full page data, with alert shown as a banner.
func (b *Board) Page(alert string) (render.PageData, error) {
	if b.html == nil {
		return render.PageData{}, fmt.Errorf("board has no html renderer")
	}
	st := b.State()
	list, err := b.html.Messages(st.Username, st.Messages, st.Notices)
	if err != nil {
		return render.PageData{}, err
	}
	return render.PageData{
		View:      st.View,
		Username:  st.Username,
		Count:     len(st.Messages),
		Connected: st.Connected,
		Messages:  list,
		Alert:     alert,
		Pending:   st.Pending,
	}, nil
}
