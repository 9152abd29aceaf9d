package models

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeNameAcceptsBounds(t *testing.T) {
	name, err := NormalizeName("al")
	if err != nil {
		t.Fatalf("expected 2-character name to be accepted, got %v", err)
	}
	if name != "AL" {
		t.Errorf("expected AL, got %q", name)
	}

	name, err = NormalizeName(strings.Repeat("z", NameMaxLength))
	if err != nil {
		t.Fatalf("expected 20-character name to be accepted, got %v", err)
	}
	if name != strings.Repeat("Z", NameMaxLength) {
		t.Errorf("expected uppercased name, got %q", name)
	}
}

func TestNormalizeNameTrimsBeforeCounting(t *testing.T) {
	if _, err := NormalizeName("  a  "); !errors.Is(err, ErrNameTooShort) {
		t.Fatalf("expected ErrNameTooShort, got %v", err)
	}
	name, err := NormalizeName("  neo ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "NEO" {
		t.Errorf("expected NEO, got %q", name)
	}
}

func TestNormalizeNameRejects(t *testing.T) {
	if _, err := NormalizeName("a"); !errors.Is(err, ErrNameTooShort) {
		t.Errorf("expected ErrNameTooShort for 1 character, got %v", err)
	}
	if _, err := NormalizeName(""); !errors.Is(err, ErrNameTooShort) {
		t.Errorf("expected ErrNameTooShort for empty name, got %v", err)
	}
	if _, err := NormalizeName(strings.Repeat("x", NameMaxLength+1)); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("expected ErrNameTooLong for 21 characters, got %v", err)
	}
}

func TestNormalizeNameCountsRunes(t *testing.T) {
	// 20 multi-byte characters are still 20 characters.
	if _, err := NormalizeName(strings.Repeat("ア", NameMaxLength)); err != nil {
		t.Fatalf("expected 20 runes to be accepted, got %v", err)
	}
}

func TestNormalizeText(t *testing.T) {
	text, err := NormalizeText(strings.Repeat("a", TextMaxLength))
	if err != nil {
		t.Fatalf("expected 500 characters to be accepted, got %v", err)
	}
	if len(text) != TextMaxLength {
		t.Errorf("expected text to be kept, got %d characters", len(text))
	}

	if _, err := NormalizeText(strings.Repeat("a", TextMaxLength+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}

	text, err = NormalizeText("   \n\t ")
	if err != nil || text != "" {
		t.Errorf("expected blank text to normalize to empty, got %q, %v", text, err)
	}
}

func TestSignature(t *testing.T) {
	short := "curl/8.0"
	if got := Signature(short); got != short {
		t.Errorf("expected short agent unchanged, got %q", got)
	}
	long := strings.Repeat("m", 80)
	if got := Signature(long); len(got) != UserAgentMaxLength {
		t.Errorf("expected %d characters, got %d", UserAgentMaxLength, len(got))
	}
}

func TestOwnedBy(t *testing.T) {
	m := Message{Author: "TRINITY"}
	if !m.OwnedBy("TRINITY") {
		t.Error("expected author to own message")
	}
	if m.OwnedBy("trinity") {
		t.Error("ownership is exact string equality")
	}
	if (Message{}).OwnedBy("") {
		t.Error("empty name must never own a message")
	}
}

func TestPostMessageRequestValidate(t *testing.T) {
	ok := PostMessageRequest{Author: "MORPHEUS", Text: "wake up"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	cases := map[string]PostMessageRequest{
		"short name": {Author: "M", Text: "x"},
		"lowercase":  {Author: "morpheus", Text: "x"},
		"empty text": {Author: "MORPHEUS", Text: "  "},
		"long text":  {Author: "MORPHEUS", Text: strings.Repeat("x", TextMaxLength+1)},
	}
	for name, req := range cases {
		var alert *Alert
		if err := req.Validate(); !errors.As(err, &alert) || alert.Kind != KindValidation {
			t.Errorf("%s: expected validation alert, got %v", name, err)
		}
	}
}

func TestRemoteAlertWrapsCause(t *testing.T) {
	cause := errors.New("permission denied")
	alert := RemoteAlert(cause)
	if alert.Error() != "ERROR: permission denied" {
		t.Errorf("unexpected message %q", alert.Error())
	}
	if !errors.Is(alert, cause) {
		t.Error("expected alert to unwrap to its cause")
	}
	if alert.Kind.String() != "remote" {
		t.Errorf("unexpected kind %q", alert.Kind)
	}
}
