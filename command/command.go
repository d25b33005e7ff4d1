package command

import (
	"context"
	"errors"
	"strings"

	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/room"
	"github.com/zephyrtronium/cytubebot/settings"
)

// Invocation is a command invocation. An Invocation and its fields must not
// be modified or retained by any command.
type Invocation struct {
	// Command is the command being invoked.
	Command *Command
	// Args is the raw text following the command name.
	Args string
	// Message is the message which triggered the invocation.
	Message *message.Received
	// Rank is the effective rank of the invoking user.
	Rank room.Rank
}

// Func executes a command. Commands report mistakes in their invocation to
// the invoker themselves; returned errors are for failures the invoker
// could not have avoided. Errors wrapping [ErrFatal] stop the bot.
type Func func(ctx context.Context, robo *Robot, call *Invocation) error

// ErrFatal is wrapped by command errors that must stop the bot.
var ErrFatal = errors.New("fatal")

// Command is an entry in the command table.
type Command struct {
	// Name is the command's name, without the sigil.
	Name string
	// Func runs the command.
	Func Func
	// Usage describes the command's arguments.
	Usage string
	// Rank is the minimum rank that may use the command.
	Rank room.Rank
	// Letter is the hybrid moderator permission letter which allows users
	// below Rank to use the command. Zero means no letter does.
	Letter byte
	// NoBridge prevents the command from being used through the chat bridge.
	NoBridge bool
	// Limit names the rate limit family the command spends from, if any.
	Limit string
}

// Permitted reports whether a user with the given rank and hybrid moderator
// grant may use a command requiring min or the given letter. A grant of
// [settings.All] permits every command, including those with no letter.
func Permitted(rank, min room.Rank, grant string, letter byte) bool {
	if rank >= min || grant == settings.All {
		return true
	}
	return letter != 0 && strings.IndexByte(grant, letter) >= 0
}

// Parse splits a chat message into a command name and its arguments.
// The message is a command only if it begins with the sigil.
func Parse(sigil, text string) (name, args string, ok bool) {
	if sigil == "" || !strings.HasPrefix(text, sigil) {
		return "", "", false
	}
	name, args, _ = strings.Cut(text[len(sigil):], " ")
	if name == "" {
		return "", "", false
	}
	return name, args, true
}
