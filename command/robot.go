package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zephyrtronium/cytubebot/cytube"
	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/metrics"
	"github.com/zephyrtronium/cytubebot/moderate"
	"github.com/zephyrtronium/cytubebot/pending"
	"github.com/zephyrtronium/cytubebot/room"
	"github.com/zephyrtronium/cytubebot/settings"
	"github.com/zephyrtronium/cytubebot/store"
)

// Store is the persistent store as is visible to commands.
type Store interface {
	FlagVideo(ctx context.Context, m media.Media, flags store.Flags) error
	SetUserBlocked(ctx context.Context, name string, blocked bool) error
	SetUserBlacklisted(ctx context.Context, name string, blacklisted bool) error
	AddCookie(ctx context.Context, name string, n int) (int64, error)
	Stats(ctx context.Context, top int) (*store.Stats, error)
	UserStats(ctx context.Context, name string) (*store.UserStats, error)
}

// Emitter sends actions to the room.
type Emitter interface {
	moderate.Emitter
	// Message sends a chat or private message. Messages are dropped while
	// muted.
	Message(m message.Sent)
	// Frame sends a frame regardless of mute.
	Frame(f cytube.Frame)
	// Mute sets whether chat messages are dropped.
	Mute(muted bool)
}

// Robot is the bot state as is visible to commands.
// Everything except Async work runs on the goroutine which owns the room.
type Robot struct {
	Log *slog.Logger
	// Name is the bot's own name in the room.
	Name string
	// Sigil prefixes commands.
	Sigil string
	// Commands is the command table.
	Commands map[string]*Command
	// Start is the time the bot started. Messages from before it are not
	// treated as commands.
	Start time.Time

	Room     *room.State
	Settings *settings.Settings
	// SaveSettings persists the settings after a change.
	SaveSettings func(*settings.Settings) error
	Store        Store
	Engine       *moderate.Engine
	Emit         Emitter
	Pending      *pending.Queue
	Limits       *Limits
	// Invoked counts command invocations by name. It may be nil.
	Invoked metrics.Observer

	// Async runs work on its own goroutine. If work returns a non-nil
	// function, that function is run on the room goroutine afterward.
	Async func(work func(ctx context.Context) func())
	// After runs f on the room goroutine once d elapses.
	After func(d time.Duration, f func())

	// Replenish is the number of videos added when the playlist runs dry.
	Replenish int
	// Raffle is the raffle in progress.
	Raffle Raffle
}

// Reply sends a message in response to an invocation. Responses to private
// messages are private.
func (robo *Robot) Reply(call *Invocation, m message.Sent) {
	if call.Message.Private() {
		m.To = call.Message.Sender
	}
	robo.Emit.Message(m)
}

// replier returns a function which replies to the invoker of call. Unlike
// the Invocation, it may be retained by work that finishes later.
func (robo *Robot) replier(call *Invocation) func(message.Sent) {
	var to string
	if call.Message.Private() {
		to = call.Message.Sender
	}
	return func(m message.Sent) {
		if to != "" {
			m.To = to
		}
		robo.Emit.Message(m)
	}
}

func (robo *Robot) usage(call *Invocation) {
	robo.Reply(call, message.Format("", "Usage: %s%s %s", robo.Sigil, call.Command.Name, call.Command.Usage))
}

func (robo *Robot) save() error {
	if err := robo.SaveSettings(robo.Settings); err != nil {
		return fmt.Errorf("%w: couldn't save settings: %w", ErrFatal, err)
	}
	return nil
}

// rank gets the effective rank of a message sender. Bridged users are
// never matched against the userlist since their names belong to another
// service.
func (robo *Robot) rank(msg *message.Received) room.Rank {
	if !msg.Bridged {
		return robo.Room.Users.Rank(msg.Sender)
	}
	if msg.IsModerator {
		return room.Moderator
	}
	return room.Guest
}

// Dispatch runs the command in a chat message, if there is one.
// The only errors it returns wrap [ErrFatal].
func (robo *Robot) Dispatch(ctx context.Context, msg *message.Received) error {
	if room.SameName(msg.Sender, robo.Name) {
		return nil
	}
	if msg.Time().Before(robo.Start) {
		return nil
	}
	name, args, ok := Parse(robo.Sigil, msg.Text)
	if !ok {
		return nil
	}
	cmd := robo.Commands[name]
	if cmd == nil {
		return nil
	}
	log := robo.Log.With(slog.String("command", name), slog.String("user", msg.Sender), slog.Bool("bridged", msg.Bridged))
	call := &Invocation{Command: cmd, Args: args, Message: msg, Rank: robo.rank(msg)}
	if msg.Bridged && cmd.NoBridge {
		log.InfoContext(ctx, "refused bridged command")
		robo.Reply(call, message.Format("", "%s%s can't be used from the bridge.", robo.Sigil, name))
		return nil
	}
	var grant string
	if !msg.Bridged {
		grant = robo.Settings.Grant(msg.Sender)
	}
	if !Permitted(call.Rank, cmd.Rank, grant, cmd.Letter) {
		log.DebugContext(ctx, "not permitted", slog.String("rank", call.Rank.String()), slog.String("grant", grant))
		return nil
	}
	if wait, ok := robo.Limits.Try(cmd.Limit, time.Now()); !ok {
		robo.Reply(call, message.Format("", "Please wait %s before using %s%s again.", wait.Round(time.Second), robo.Sigil, name))
		return nil
	}
	if robo.Invoked != nil {
		robo.Invoked.Observe(1, name)
	}
	log.InfoContext(ctx, "command", slog.String("args", args))
	return robo.run(ctx, log, call)
}

func (robo *Robot) run(ctx context.Context, log *slog.Logger, call *Invocation) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.ErrorContext(ctx, "command panicked", slog.Any("panic", r))
		robo.Reply(call, message.Format("", "Something went wrong with %s%s.", robo.Sigil, call.Command.Name))
		err = nil
	}()
	err = call.Command.Func(ctx, robo, call)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFatal):
		log.ErrorContext(ctx, "fatal command error", slog.Any("err", err))
		return err
	default:
		log.ErrorContext(ctx, "command failed", slog.Any("err", err))
		robo.Reply(call, message.Format("", "Couldn't %s%s, sorry.", robo.Sigil, call.Command.Name))
		return nil
	}
}
