package models

import "fmt"

// AlertKind classifies a user-visible failure.
type AlertKind int

const (
	// KindValidation covers name and message length errors
	KindValidation AlertKind = iota + 1

	// KindUnauthorized is a delete on a message the session does not own
	KindUnauthorized

	// KindRemote is a store operation that failed
	KindRemote

	// KindSessionExpired is a post attempted without a session
	KindSessionExpired
)

func (k AlertKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindRemote:
		return "remote"
	case KindSessionExpired:
		return "session_expired"
	default:
		return fmt.Sprintf("alert(%d)", int(k))
	}
}

// Alert is a failure that is shown to the user verbatim and ends the action.
type Alert struct {
	Kind    AlertKind
	Message string
	Err     error
}

func (a *Alert) Error() string {
	return a.Message
}

func (a *Alert) Unwrap() error {
	return a.Err
}

// RemoteAlert wraps a store failure so its text reaches the user.
func RemoteAlert(err error) *Alert {
	return &Alert{
		Kind:    KindRemote,
		Message: "ERROR: " + err.Error(),
		Err:     err,
	}
}

var (
	ErrNameTooShort = &Alert{Kind: KindValidation, Message: "ERROR: USERNAME MUST BE AT LEAST 2 CHARACTERS"}
	ErrNameTooLong  = &Alert{Kind: KindValidation, Message: "ERROR: USERNAME TOO LONG"}

	// ErrNameNotNormalized is only returned by the REST API, which expects names
	// already trimmed and uppercased by a session store.
	ErrNameNotNormalized = &Alert{Kind: KindValidation, Message: "ERROR: USERNAME MUST BE UPPERCASE"}

	ErrMessageTooLong = &Alert{Kind: KindValidation, Message: "ERROR: MESSAGE EXCEEDS 500 CHARACTER LIMIT"}
	ErrMessageEmpty   = &Alert{Kind: KindValidation, Message: "ERROR: MESSAGE IS EMPTY"}

	ErrUnauthorized   = &Alert{Kind: KindUnauthorized, Message: "ERROR: UNAUTHORIZED DELETION ATTEMPT"}
	ErrSessionExpired = &Alert{Kind: KindSessionExpired, Message: "ERROR: SESSION EXPIRED. PLEASE RECONNECT."}
)
