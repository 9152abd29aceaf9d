package store

import (
	"os"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	if os.Getenv("TRANSMIT_TEST_LOG") != "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return zerolog.Nop()
}
