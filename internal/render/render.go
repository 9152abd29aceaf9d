// Package render draws the transmissions list for browsers and terminals.
package render

import (
	"time"
)

const (
	// MaxNotices is how many system notices are kept on screen.
	MaxNotices = 5

	// ScrollThreshold is the distance in pixels from the bottom of the list
	// within which a redraw keeps the view pinned to the bottom.
	ScrollThreshold = 100
)

// Notice is a local-only system line. It is never stored remotely.
type Notice struct {
	Text string
	At   time.Time
}

// Notices keeps the most recent system notices, oldest first.
// It is not safe for concurrent use.
type Notices struct {
	items []Notice
	max   int
}

func NewNotices() *Notices {
	return &Notices{max: MaxNotices}
}

// Add appends a notice, evicting the oldest when the cap is exceeded.
func (n *Notices) Add(text string, at time.Time) {
	n.items = append(n.items, Notice{Text: text, At: at})
	if over := len(n.items) - n.max; over > 0 {
		n.items = append(n.items[:0], n.items[over:]...)
	}
}

// List returns a copy of the retained notices.
func (n *Notices) List() []Notice {
	out := make([]Notice, len(n.items))
	copy(out, n.items)
	return out
}

func (n *Notices) Len() int {
	return len(n.items)
}

// Viewport is the scroll state of a message list.
type Viewport struct {
	ScrollTop    int
	ScrollHeight int
	ClientHeight int
}

// NearBottom reports whether the view is within ScrollThreshold of the bottom.
func (v Viewport) NearBottom() bool {
	return v.ScrollHeight-v.ScrollTop-v.ClientHeight < ScrollThreshold
}

// Frame is one redraw of the message list.
type Frame struct {
	HTML            string `json:"html"`
	Count           int    `json:"count"`
	ScrollThreshold int    `json:"scroll_threshold"`
}

// Clock formats t as 24 hour HH:MM in loc.
func Clock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("15:04")
}
