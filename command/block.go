package command

import (
	"context"
	"log/slog"
	"strings"

	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/room"
	"github.com/zephyrtronium/cytubebot/store"
)

// target resolves the media a command acts on: the link in its arguments,
// or the playing media if there are none.
func target(robo *Robot, call *Invocation) (media.Media, bool) {
	arg := strings.TrimSpace(call.Args)
	if arg == "" {
		m := robo.Room.Current.Media
		if m.Ref().IsZero() {
			robo.Reply(call, message.Format("", "Nothing is playing."))
			return media.Media{}, false
		}
		return m, true
	}
	ref, ok := media.Parse(arg)
	if !ok {
		robo.Reply(call, message.Format("", "I don't recognize that link."))
		return media.Media{}, false
	}
	// Prefer the playlist's copy, which knows the title and duration.
	for _, uid := range robo.Room.Playlist.Having(ref) {
		if it, ok := robo.Room.Playlist.Find(uid); ok {
			return it.Media, true
		}
	}
	return media.Media{Type: ref.Type, ID: ref.ID}, true
}

// targetUser resolves the user a command acts on. Users cannot act on
// the bot or on users of their own rank or higher.
func targetUser(robo *Robot, call *Invocation) (string, string, bool) {
	name, rest, _ := strings.Cut(strings.TrimSpace(call.Args), " ")
	if name == "" {
		robo.usage(call)
		return "", "", false
	}
	if room.SameName(name, robo.Name) || robo.Room.Users.Rank(name) >= call.Rank {
		robo.Reply(call, message.Format("", "I can't do that to %s.", name))
		return "", "", false
	}
	return name, strings.TrimSpace(rest), true
}

// BlockVideo blocks media for non-moderators and removes it from the playlist.
func BlockVideo(ctx context.Context, robo *Robot, call *Invocation) error {
	m, ok := target(robo, call)
	if !ok {
		return nil
	}
	uids := robo.Room.Playlist.Having(m.Ref())
	reply := robo.replier(call)
	robo.Async(func(ctx context.Context) func() {
		err := robo.Engine.BlockVideo(ctx, m, uids)
		return func() {
			if err != nil {
				robo.Log.ErrorContext(ctx, "couldn't block video", slog.String("media", m.Ref().String()), slog.Any("err", err))
				reply(message.Format("", "Couldn't block that, sorry."))
				return
			}
			reply(message.Format("", "Blocked %s.", title(m)))
		}
	})
	return nil
}

// UnblockVideo clears the flags on media.
func UnblockVideo(ctx context.Context, robo *Robot, call *Invocation) error {
	m, ok := target(robo, call)
	if !ok {
		return nil
	}
	reply := robo.replier(call)
	robo.Async(func(ctx context.Context) func() {
		err := robo.Store.FlagVideo(ctx, m, store.Clean)
		return func() {
			if err != nil {
				robo.Log.ErrorContext(ctx, "couldn't unblock video", slog.String("media", m.Ref().String()), slog.Any("err", err))
				reply(message.Format("", "Couldn't unblock that, sorry."))
				return
			}
			reply(message.Format("", "Unblocked %s.", title(m)))
		}
	})
	return nil
}

// BlockUser blocks a user from queueing and removes what they have queued.
func BlockUser(ctx context.Context, robo *Robot, call *Invocation) error {
	name, _, ok := targetUser(robo, call)
	if !ok {
		return nil
	}
	uids := robo.Room.Playlist.QueuedBy(name)
	reply := robo.replier(call)
	robo.Async(func(ctx context.Context) func() {
		err := robo.Engine.BlockUser(ctx, name, uids)
		return func() {
			if err != nil {
				robo.Log.ErrorContext(ctx, "couldn't block user", slog.String("target", name), slog.Any("err", err))
				reply(message.Format("", "Couldn't block %s, sorry.", name))
				return
			}
			reply(message.Format("", "Blocked %s.", name))
		}
	})
	return nil
}

// UnblockUser allows a user to queue again.
func UnblockUser(ctx context.Context, robo *Robot, call *Invocation) error {
	return userFlag(robo, call, "unblock", func(ctx context.Context, name string) error {
		return robo.Store.SetUserBlocked(ctx, name, false)
	})
}

// BlacklistUser excludes a user from stats.
func BlacklistUser(ctx context.Context, robo *Robot, call *Invocation) error {
	return userFlag(robo, call, "blacklist", func(ctx context.Context, name string) error {
		return robo.Store.SetUserBlacklisted(ctx, name, true)
	})
}

// UnblacklistUser includes a user in stats again.
func UnblacklistUser(ctx context.Context, robo *Robot, call *Invocation) error {
	return userFlag(robo, call, "unblacklist", func(ctx context.Context, name string) error {
		return robo.Store.SetUserBlacklisted(ctx, name, false)
	})
}

func userFlag(robo *Robot, call *Invocation, verb string, set func(ctx context.Context, name string) error) error {
	name := strings.TrimSpace(call.Args)
	if name == "" || strings.ContainsAny(name, " \t") {
		robo.usage(call)
		return nil
	}
	reply := robo.replier(call)
	robo.Async(func(ctx context.Context) func() {
		err := set(ctx, name)
		return func() {
			if err != nil {
				robo.Log.ErrorContext(ctx, "couldn't "+verb+" user", slog.String("target", name), slog.Any("err", err))
				reply(message.Format("", "Couldn't %s %s, sorry.", verb, name))
				return
			}
			reply(message.Format("", "Done, %sed %s.", verb, name))
		}
	})
	return nil
}

func title(m media.Media) string {
	if m.Title != "" {
		return m.Title
	}
	return m.Ref().Link()
}
