package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/christianmark/transmit/internal/board"
	"github.com/christianmark/transmit/internal/config"
	"github.com/christianmark/transmit/internal/logging"
	"github.com/christianmark/transmit/internal/session"
	"github.com/christianmark/transmit/internal/store"
)

const TransmitVersion = "0.1.0"

func main() {
	usage := `Transmit terminal client.

The server is read from TRANSMIT_SERVER (default http://localhost:8080).
The operative name is kept in TRANSMIT_SESSION_FILE.

Usage:
    transmit login <name> [options]
    transmit whoami [options]
    transmit logout [options]
    transmit post <text>... [options]
    transmit rm <id> [--yes] [options]
    transmit ls [options]
    transmit watch [options]
    transmit -h | --help
    transmit --version

Options:
    -h --help       Show this screen.
    --version       Show version.
    -y --yes        Delete without asking for confirmation.
    -v --verbose    Log client activity to stderr.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], TransmitVersion)
	if err != nil {
		panic(err)
	}

	cfg := config.LoadClient(TransmitVersion)

	logger := zerolog.Nop()
	if verbose, _ := opts.Bool("--verbose"); verbose {
		logger = logging.NewWriter(os.Stderr, true)
	}

	remote := store.NewRemote(cfg.ServerURL, cfg.UserAgent, store.WithLogger(logger))
	defer remote.Close()

	sess := session.New(session.NewFileKV(cfg.SessionFile))
	a := &app{
		board: board.New(remote, sess,
			board.WithUserAgent(cfg.UserAgent),
			board.WithLogger(logger),
		),
		source:  remote,
		out:     os.Stdout,
		confirm: confirmTerminal,
		height:  terminalHeight,
		logger:  logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.dispatch(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// confirmTerminal asks on stdin. Without a terminal there is nobody to ask.
func confirmTerminal(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errNoTerminal
	}
	fmt.Fprint(os.Stdout, prompt)
	var answer string
	if _, err := fmt.Fscanln(os.Stdin, &answer); err != nil {
		return false, nil
	}
	return answer == "y" || answer == "Y" || answer == "yes", nil
}

// terminalHeight is the number of rows on stdout, or 0 when it is not a terminal.
func terminalHeight() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	_, h, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return h
}
