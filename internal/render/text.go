package render

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/christianmark/transmit/internal/models"
)

// escapeSeq matches CSI, OSC and two-byte escape sequences.
var escapeSeq = regexp.MustCompile(`\x1b(\[[0-?]*[ -/]*[@-~]|\][^\x07\x1b]*(\x07|\x1b\\)?|[@-Z\\-_])`)

// Sanitize makes s inert on a terminal: escape sequences are removed and
// remaining control characters dropped. Line breaks and tabs become spaces.
func Sanitize(s string) string {
	s = escapeSeq.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

// Text renders the list for a terminal.
type Text struct {
	loc *time.Location
}

func NewText(loc *time.Location) *Text {
	if loc == nil {
		loc = time.Local
	}
	return &Text{loc: loc}
}

// Lines returns one line per notice and message, notices first.
// Own messages are marked with '*' and show their id for deletion.
func (t *Text) Lines(viewer string, msgs []models.Message, notices []Notice) []string {
	lines := make([]string, 0, len(notices)+len(msgs)+2)
	for _, n := range notices {
		lines = append(lines, "[SYSTEM] "+Sanitize(n.Text))
	}

	if len(msgs) == 0 {
		return append(lines, "> NO TRANSMISSIONS FOUND", "> BE THE FIRST TO BROADCAST")
	}

	for _, m := range msgs {
		line := fmt.Sprintf("[%s] %s: %s", Clock(m.Timestamp, t.loc), Sanitize(m.Author), Sanitize(m.Text))
		if m.OwnedBy(viewer) {
			line = "* " + line + "  (" + Sanitize(m.ID) + ")"
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return lines
}

// Render writes the last height lines, or every line when height is not positive.
func (t *Text) Render(w io.Writer, viewer string, msgs []models.Message, notices []Notice, height int) error {
	lines := t.Lines(viewer, msgs, notices)
	if height > 0 && len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
