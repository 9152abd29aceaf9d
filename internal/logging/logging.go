package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the process logger: human readable in development, JSON otherwise.
func New(development bool) zerolog.Logger {
	return NewWriter(os.Stdout, development)
}

// NewWriter is New with an explicit output.
func NewWriter(out io.Writer, development bool) zerolog.Logger {
	if development {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Logger()
}
