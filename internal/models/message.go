package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// NameMinLength is the shortest display name a session accepts
	NameMinLength = 2

	// NameMaxLength is the longest display name a session accepts
	NameMaxLength = 20

	// TextMaxLength is the longest message body that can be posted
	TextMaxLength = 500

	// UserAgentMaxLength is how much of the user agent is kept as a client signature
	UserAgentMaxLength = 50
)

// Message represents a single transmission in the shared feed.
// Messages are created by the post command and never mutated afterwards.
type Message struct {
	// ID is assigned by the store when the message is appended
	ID string `json:"id"`

	// Author is the display name of the session that posted the message
	Author string `json:"author"`

	// Text is the message body, stored exactly as posted
	Text string `json:"text"`

	// Timestamp is the creation instant, assigned by the store
	Timestamp time.Time `json:"timestamp"`

	// UserAgent is a truncated user agent string used as a loose client signature
	UserAgent string `json:"user_agent,omitempty"`
}

// OwnedBy reports whether name owns the message.
// Ownership is plain name equality and is not enforced by any store.
func (m Message) OwnedBy(name string) bool {
	return name != "" && m.Author == name
}

// PostMessageRequest is the request body for appending a message
type PostMessageRequest struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	UserAgent string `json:"user_agent"`
}

// GetMessagesResponse is the response for listing the collection.
// The order of Transmissions carries no meaning.
type GetMessagesResponse struct {
	Transmissions []Message `json:"transmissions"`
}

// NormalizeName trims and uppercases a display name and checks its length.
func NormalizeName(raw string) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	n := utf8.RuneCountInString(name)
	if n < NameMinLength {
		return "", ErrNameTooShort
	}
	if n > NameMaxLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// NormalizeText trims a message body. An empty result means there is nothing to post.
func NormalizeText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if utf8.RuneCountInString(text) > TextMaxLength {
		return "", ErrMessageTooLong
	}
	return text, nil
}

// Signature truncates a user agent to UserAgentMaxLength characters.
func Signature(userAgent string) string {
	if utf8.RuneCountInString(userAgent) <= UserAgentMaxLength {
		return userAgent
	}
	runes := []rune(userAgent)
	return string(runes[:UserAgentMaxLength])
}

// Validate checks a request against the collection limits.
func (r PostMessageRequest) Validate() error {
	if _, err := NormalizeName(r.Author); err != nil {
		return err
	}
	if r.Author != strings.ToUpper(strings.TrimSpace(r.Author)) {
		return ErrNameNotNormalized
	}
	text, err := NormalizeText(r.Text)
	if err != nil {
		return err
	}
	if text == "" {
		return ErrMessageEmpty
	}
	return nil
}

// Stream frame types.
const (
	FrameSnapshot = "snapshot"
	FrameRender   = "frame"
)

// SnapshotFrame is pushed to stream subscribers after every change.
type SnapshotFrame struct {
	Type          string    `json:"type"`
	Transmissions []Message `json:"transmissions"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
