package command

import (
	"context"
	"errors"
	"strings"

	"github.com/zephyrtronium/cytubebot/cytube"
	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/pending"
	"github.com/zephyrtronium/cytubebot/room"
	"github.com/zephyrtronium/cytubebot/settings"
)

// BanlistTag is the pending tag fired when the ban list arrives.
const BanlistTag pending.Tag = "banlist"

// roomCommand sends a slash command to the room chat.
func roomCommand(robo *Robot, text string) {
	robo.Emit.Frame(cytube.Chat(text, cytube.ChatMeta{}))
}

// Kick kicks a user from the room.
func Kick(ctx context.Context, robo *Robot, call *Invocation) error {
	name, reason, ok := targetUser(robo, call)
	if !ok {
		return nil
	}
	roomCommand(robo, strings.TrimSpace("/kick "+name+" "+reason))
	return nil
}

// Ban bans a user from the room.
func Ban(ctx context.Context, robo *Robot, call *Invocation) error {
	name, reason, ok := targetUser(robo, call)
	if !ok {
		return nil
	}
	roomCommand(robo, strings.TrimSpace("/ban "+name+" "+reason))
	return nil
}

// Unban lifts a ban. The room only identifies bans by ID, so this has to
// wait for the ban list.
func Unban(ctx context.Context, robo *Robot, call *Invocation) error {
	name := strings.TrimSpace(call.Args)
	if name == "" || strings.ContainsAny(name, " \t") {
		robo.usage(call)
		return nil
	}
	reply := robo.replier(call)
	robo.Pending.Add(BanlistTag, func(p any) {
		bans, _ := p.([]cytube.Ban)
		var n int
		for _, b := range bans {
			if room.SameName(b.Name, name) {
				robo.Emit.Frame(cytube.Unban(b.ID, b.Name))
				n++
			}
		}
		if n == 0 {
			reply(message.Format("", "%s isn't banned.", name))
			return
		}
		reply(message.Format("", "Unbanned %s.", name))
	})
	robo.Emit.Frame(cytube.RequestBanlist())
	return nil
}

// Permissions shows or changes hybrid moderator permissions.
//   - name: the user whose permissions to show or change
//   - change: optional ALL, NONE, or + or - followed by permission letters
func Permissions(ctx context.Context, robo *Robot, call *Invocation) error {
	f := strings.Fields(call.Args)
	switch len(f) {
	case 1:
		g := robo.Settings.Grant(f[0])
		if g == "" {
			g = "none"
		}
		robo.Reply(call, message.Format("", "%s has permissions: %s", f[0], g))
		return nil
	case 2:
		// handled below
	default:
		robo.usage(call)
		return nil
	}
	g, err := robo.Settings.Modify(f[0], f[1])
	if errors.Is(err, settings.ErrBadGrant) {
		robo.usage(call)
		return nil
	}
	if err != nil {
		return err
	}
	if err := robo.save(); err != nil {
		return err
	}
	if g == "" {
		g = "none"
	}
	robo.Reply(call, message.Format("", "%s now has permissions: %s", f[0], g))
	return nil
}

// Mute stops the bot from chatting.
func Mute(ctx context.Context, robo *Robot, call *Invocation) error {
	return setMuted(robo, call, true)
}

// Unmute lets the bot chat again.
func Unmute(ctx context.Context, robo *Robot, call *Invocation) error {
	return setMuted(robo, call, false)
}

func setMuted(robo *Robot, call *Invocation, muted bool) error {
	if robo.Settings.Muted == muted {
		return nil
	}
	if !muted {
		robo.Emit.Mute(false)
	}
	robo.Settings.Muted = muted
	if err := robo.save(); err != nil {
		return err
	}
	if muted {
		robo.Reply(call, message.Format("", "Muted."))
		robo.Emit.Mute(true)
		return nil
	}
	robo.Reply(call, message.Format("", "Unmuted."))
	return nil
}

// ClearChat clears the room chat.
func ClearChat(ctx context.Context, robo *Robot, call *Invocation) error {
	roomCommand(robo, "/clear")
	return nil
}

// Poll opens a poll. The title and options are separated by periods, and a
// final option of "true" hides the results until the poll closes.
func Poll(ctx context.Context, robo *Robot, call *Invocation) error {
	var parts []string
	for _, p := range strings.Split(call.Args, ".") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	var obscured bool
	if len(parts) > 0 && strings.EqualFold(parts[len(parts)-1], "true") {
		obscured = true
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 {
		robo.usage(call)
		return nil
	}
	robo.Emit.Frame(cytube.NewPoll(parts[0], parts[1:], obscured, 0))
	return nil
}

// EndPoll closes the open poll.
func EndPoll(ctx context.Context, robo *Robot, call *Invocation) error {
	robo.Emit.Frame(cytube.ClosePoll())
	return nil
}
