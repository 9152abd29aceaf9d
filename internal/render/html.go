package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/christianmark/transmit/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// View selects which half of the page is shown.
type View string

const (
	ViewSetup  View = "setup"
	ViewActive View = "active"
)

// PageData is everything the full page needs.
type PageData struct {
	View      View
	Username  string
	Count     int
	Connected bool

	// Messages is the pre-rendered list from HTML.Messages
	Messages template.HTML

	// Alert is shown as a banner when an action failed
	Alert string

	// Pending is the transmission awaiting delete confirmation, if any
	Pending *models.Message

	ScrollThreshold int
	NameMaxLength   int
	TextMaxLength   int
}

// HTML renders pages and message list fragments.
type HTML struct {
	tmpl *template.Template
	loc  *time.Location
}

// NewHTML parses the embedded templates. Times are shown in loc.
func NewHTML(loc *time.Location) (*HTML, error) {
	if loc == nil {
		loc = time.Local
	}
	tmpl, err := template.New("").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &HTML{tmpl: tmpl, loc: loc}, nil
}

type messageView struct {
	ID     string
	Author string
	Text   string
	Time   string
	Own    bool
}

type listView struct {
	Notices  []Notice
	Messages []messageView
}

// Messages renders the list fragment: notices first, then msgs in the order
// given. viewer owns the messages whose author equals it.
func (h *HTML) Messages(viewer string, msgs []models.Message, notices []Notice) (template.HTML, error) {
	data := listView{
		Notices:  notices,
		Messages: make([]messageView, 0, len(msgs)),
	}
	for _, m := range msgs {
		data.Messages = append(data.Messages, messageView{
			ID:     m.ID,
			Author: m.Author,
			Text:   m.Text,
			Time:   Clock(m.Timestamp, h.loc),
			Own:    m.OwnedBy(viewer),
		})
	}

	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "messages", data); err != nil {
		return "", fmt.Errorf("render messages: %w", err)
	}
	// Output of html/template is already escaped.
	return template.HTML(buf.String()), nil
}

// Page writes the full document.
func (h *HTML) Page(w io.Writer, data PageData) error {
	if data.ScrollThreshold == 0 {
		data.ScrollThreshold = ScrollThreshold
	}
	if data.NameMaxLength == 0 {
		data.NameMaxLength = models.NameMaxLength
	}
	if data.TextMaxLength == 0 {
		data.TextMaxLength = models.TextMaxLength
	}
	if err := h.tmpl.ExecuteTemplate(w, "page", data); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}
