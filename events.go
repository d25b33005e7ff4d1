package main

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"time"

	"github.com/zephyrtronium/cytubebot/command"
	"github.com/zephyrtronium/cytubebot/cytube"
	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/moderate"
	"github.com/zephyrtronium/cytubebot/room"
)

// handle applies an event to the room. Errors end the connection.
func (robo *Robot) handle(ctx context.Context, ev cytube.Event) error {
	switch ev := ev.(type) {
	case cytube.Userlist:
		robo.room.LoadUsers(ev.Users)
	case cytube.AddUser:
		robo.room.Join(ev.User)
		u := ev.User
		robo.cmd.Async(func(ctx context.Context) func() {
			if err := robo.store.InsertUser(ctx, u.Name, u.Rank); err != nil {
				robo.log.ErrorContext(ctx, "couldn't record user", slog.String("user", u.Name), slog.Any("err", err))
			}
			return nil
		})
	case cytube.UserLeave:
		if _, ok := robo.room.Users.Leave(ev.Name); !ok {
			robo.log.DebugContext(ctx, "unknown user left", slog.String("user", ev.Name))
		}
	case cytube.SetUserRank:
		robo.room.Users.SetRank(ev.Name, ev.Rank)
	case cytube.SetAFK:
		robo.room.Users.SetAFK(ev.Name, ev.AFK)
	case cytube.Playlist:
		robo.room.LoadPlaylist(ev.Items)
		robo.log.InfoContext(ctx, "playlist", slog.Int("items", len(ev.Items)))
		for _, it := range ev.Items {
			robo.check(it)
		}
		if robo.ready {
			robo.stock()
		}
	case cytube.Queue:
		robo.queued(ev)
	case cytube.Delete:
		if _, ok := robo.room.Remove(ev.UID); !ok {
			robo.log.DebugContext(ctx, "delete of unknown item", slog.Int64("uid", int64(ev.UID)))
			break
		}
		if robo.room.Playlist.Len() == 0 {
			robo.stock()
		}
	case cytube.MoveVideo:
		if !robo.room.Move(ev.From, ev.Pos) {
			robo.log.DebugContext(ctx, "couldn't resolve move", slog.Int64("from", int64(ev.From)), slog.Int64("after", int64(ev.Pos.After)))
		}
	case cytube.SetTemp:
		robo.room.SetTemp(ev.UID, ev.Temp)
	case cytube.SetCurrent:
		robo.room.Current.SetUID(ev.UID)
	case cytube.ChangeMedia:
		p := moderate.Policy{Managing: robo.settings.Managing, Ready: robo.ready}
		robo.engine.ChangeMedia(&robo.room, ev.Media, p)
		robo.room.Current.Update(ev.Time, ev.Paused)
	case cytube.MediaUpdate:
		robo.room.Current.Update(ev.Time, ev.Paused)
	case cytube.NeedPassword:
		switch {
		case robo.channelPassword == "":
			return fmt.Errorf("%w: room needs a password and none is configured", errFatal)
		case ev.Wrong:
			return fmt.Errorf("%w: wrong room password", errFatal)
		}
		robo.emit.Frame(cytube.ChannelPassword(robo.channelPassword))
	case cytube.ChatMsg:
		return robo.chat(ctx, ev)
	case cytube.PM:
		msg := &message.Received{
			To:        ev.To,
			Sender:    ev.Username,
			Text:      html.UnescapeString(ev.Msg),
			Timestamp: ev.Time.UnixMilli(),
		}
		return robo.cmd.Dispatch(ctx, msg)
	case cytube.Banlist:
		n := robo.pending.Fire(command.BanlistTag, ev.Bans)
		robo.log.DebugContext(ctx, "banlist", slog.Int("bans", len(ev.Bans)), slog.Int("waiting", n))
	case cytube.Login:
		return robo.login(ctx, ev)
	case cytube.Rank:
		robo.emit.setRank(ev.Rank)
		if ev.Rank < room.Moderator {
			robo.log.WarnContext(ctx, "bot is not a moderator", slog.String("rank", ev.Rank.String()))
		}
	case cytube.Kick:
		return fmt.Errorf("kicked from room: %s", ev.Reason)
	default:
		robo.log.DebugContext(ctx, "unhandled event", slog.String("event", ev.EventName()))
	}
	return nil
}

// queued handles an item added to the playlist.
func (robo *Robot) queued(ev cytube.Queue) {
	it := ev.Item
	log := robo.log.With(slog.Int64("uid", int64(it.UID)), slog.String("by", it.QueuedBy))
	switch robo.room.Add(ev.Pos, it) {
	case room.Skipped:
		log.Debug("couldn't resolve queue position", slog.Int64("after", int64(ev.Pos.After)))
	case room.OverLimit:
		log.Info("over user limit", slog.Int("limit", robo.room.Limit))
		robo.emit.Chat(fmt.Sprintf("%s can only have %d items queued.", it.QueuedBy, robo.room.Limit))
		robo.emit.Delete(it.UID)
		robo.cmd.Async(func(ctx context.Context) func() {
			robo.engine.Record(ctx, it)
			return nil
		})
	case room.Inserted:
		robo.check(it)
	}
}

// check runs moderation on a newly observed item and applies the verdict
// back on the loop.
func (robo *Robot) check(it room.Item) {
	rank := robo.room.Users.Rank(it.QueuedBy)
	robo.cmd.Async(func(ctx context.Context) func() {
		start := time.Now()
		v := robo.engine.Check(ctx, it, rank)
		robo.metrics.CheckLatency.Observe(time.Since(start).Seconds(), strconv.FormatBool(v.Delete))
		return func() { robo.engine.Apply(&robo.room, v) }
	})
}

// stock replenishes the playlist if it is empty and the bot is managing it.
func (robo *Robot) stock() {
	if !robo.settings.Managing || robo.room.Playlist.Len() > 0 || robo.replenish <= 0 {
		return
	}
	n := robo.replenish
	robo.cmd.Async(func(ctx context.Context) func() {
		k := robo.engine.Replenish(ctx, n)
		robo.metrics.ReplenishCount.Observe(float64(k))
		return nil
	})
}

// chat handles a room chat message.
func (robo *Robot) chat(ctx context.Context, ev cytube.ChatMsg) error {
	text := html.UnescapeString(ev.Msg)
	if !room.SameName(ev.Username, robo.name) {
		name, at := ev.Username, ev.Time
		robo.cmd.Async(func(ctx context.Context) func() {
			if err := robo.store.RecordChat(ctx, name, text, at); err != nil {
				robo.log.ErrorContext(ctx, "couldn't record chat", slog.String("user", name), slog.Any("err", err))
			}
			return nil
		})
		if robo.bridge != nil {
			robo.bridge.relay(ev.Username, text)
		}
	}
	msg := &message.Received{
		Sender:    ev.Username,
		Text:      text,
		Timestamp: ev.Time.UnixMilli(),
	}
	return robo.cmd.Dispatch(ctx, msg)
}

// login handles the login result. The bot begins managing the playlist once
// the grace period passes.
func (robo *Robot) login(ctx context.Context, ev cytube.Login) error {
	if !ev.Success {
		return fmt.Errorf("%w: login rejected: %s", errFatal, ev.Error)
	}
	robo.log.InfoContext(ctx, "logged in", slog.String("name", ev.Name))
	session := robo.session
	robo.cmd.After(robo.grace, func() {
		if robo.session != session {
			return
		}
		robo.ready = true
		robo.log.Info("grace period over", slog.Bool("managing", robo.settings.Managing))
		robo.stock()
	})
	return nil
}

// bridged handles a message from the chat bridge. Messages that aren't
// commands are relayed into the room.
func (robo *Robot) bridged(ctx context.Context, msg *message.Received) error {
	if _, _, ok := command.Parse(robo.cmd.Sigil, msg.Text); ok {
		return robo.cmd.Dispatch(ctx, msg)
	}
	robo.emit.Chat(fmt.Sprintf("(%s) %s", msg.Sender, msg.Text))
	return nil
}
