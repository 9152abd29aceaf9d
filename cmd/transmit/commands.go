package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/board"
	"github.com/christianmark/transmit/internal/feed"
	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/render"
)

var errNoTerminal = errors.New("ERROR: REFUSING TO DELETE WITHOUT A TERMINAL. USE --yes")

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\x1b[H\x1b[2J"

type app struct {
	board   *board.Board
	source  feed.Source
	out     io.Writer
	confirm func(prompt string) (bool, error)
	height  func() int
	logger  zerolog.Logger
	loc     *time.Location
	retry   time.Duration
}

func (a *app) dispatch(ctx context.Context, opts docopt.Opts) error {
	if login_, _ := opts.Bool("login"); login_ {
		name, _ := opts.String("<name>")
		return a.login(name)
	} else if whoami_, _ := opts.Bool("whoami"); whoami_ {
		return a.whoami()
	} else if logout_, _ := opts.Bool("logout"); logout_ {
		return a.logout()
	} else if post_, _ := opts.Bool("post"); post_ {
		words, _ := opts["<text>"].([]string)
		return a.post(ctx, strings.Join(words, " "))
	} else if rm_, _ := opts.Bool("rm"); rm_ {
		id, _ := opts.String("<id>")
		yes, _ := opts.Bool("--yes")
		return a.remove(ctx, id, yes)
	} else if ls_, _ := opts.Bool("ls"); ls_ {
		return a.list(ctx)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		return a.watch(ctx)
	}
	return nil
}

func (a *app) text() *render.Text {
	return render.NewText(a.loc)
}

func (a *app) login(name string) error {
	name, err := a.board.SetUsername(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "OPERATIVE %s CONNECTED\n", name)
	return nil
}

func (a *app) whoami() error {
	name := a.board.Username()
	if name == "" {
		return models.ErrSessionExpired
	}
	fmt.Fprintln(a.out, name)
	return nil
}

func (a *app) logout() error {
	name := a.board.Username()
	if err := a.board.Logout(); err != nil {
		return err
	}
	if name != "" {
		fmt.Fprintf(a.out, "OPERATIVE %s DISCONNECTED\n", name)
	}
	return nil
}

func (a *app) post(ctx context.Context, text string) error {
	msg, err := a.board.Post(ctx, text)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	a.logger.Debug().Str("id", msg.ID).Msg("transmission sent")
	fmt.Fprintln(a.out, msg.ID)
	return nil
}

// remove follows the page flow: open the confirmation, ask, then delete or abort.
func (a *app) remove(ctx context.Context, id string, yes bool) error {
	if err := a.board.Refresh(ctx); err != nil {
		return err
	}
	a.board.ConfirmDelete(id)

	if !yes {
		pending := a.board.Pending()
		prompt := fmt.Sprintf("CONFIRM DELETION OF %s", id)
		if pending != nil && pending.Text != "" {
			prompt = fmt.Sprintf("CONFIRM DELETION OF %q", render.Sanitize(pending.Text))
		}
		ok, err := a.confirm(prompt + " [y/N] ")
		if err != nil {
			a.board.CancelDelete()
			return err
		}
		if !ok {
			a.board.CancelDelete()
			fmt.Fprintln(a.out, "ABORTED")
			return nil
		}
	}

	if err := a.board.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "TRANSMISSION DELETED SUCCESSFULLY")
	return nil
}

func (a *app) list(ctx context.Context) error {
	if err := a.board.Refresh(ctx); err != nil {
		return err
	}
	st := a.board.State()
	return a.text().Render(a.out, st.Username, st.Messages, st.Notices, 0)
}

// watch redraws the board on every feed event until ctx ends.
func (a *app) watch(ctx context.Context) error {
	var opts []feed.Option
	opts = append(opts, feed.WithLogger(a.logger))
	if a.retry > 0 {
		opts = append(opts, feed.WithRetry(a.retry))
	}

	text := a.text()
	for ev := range feed.Subscribe(ctx, a.source, opts...) {
		a.board.Apply(ev)
		if ev.Kind == feed.EventDisconnected {
			a.logger.Warn().Msg("feed disconnected, retrying")
		}
		if err := a.draw(text); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) draw(text *render.Text) error {
	st := a.board.State()

	status := "OFFLINE"
	if st.Connected {
		status = "ONLINE"
	}
	header := fmt.Sprintf("TRANSMISSIONS: %d  LINK: %s", len(st.Messages), status)
	if st.Username != "" {
		header += "  OPERATIVE: " + st.Username
	}

	height := 0
	if a.height != nil {
		height = a.height()
	}
	if height > 0 {
		fmt.Fprint(a.out, clearScreen)
		height -= 2
		if height < 1 {
			height = 1
		}
	}

	if _, err := fmt.Fprintln(a.out, header); err != nil {
		return err
	}
	return text.Render(a.out, st.Username, st.Messages, st.Notices, height)
}
