package command

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/message"
)

// Help lists the commands the invoker may use.
func Help(ctx context.Context, robo *Robot, call *Invocation) error {
	var grant string
	if !call.Message.Bridged {
		grant = robo.Settings.Grant(call.Message.Sender)
	}
	var names []string
	for name, cmd := range robo.Commands {
		if cmd.NoBridge && call.Message.Bridged {
			continue
		}
		if Permitted(call.Rank, cmd.Rank, grant, cmd.Letter) {
			names = append(names, robo.Sigil+name)
		}
	}
	slices.Sort(names)
	robo.Reply(call, message.Format("", "Commands: %s", strings.Join(names, ", ")))
	return nil
}

// Status describes the bot's settings and the room.
func Status(ctx context.Context, robo *Robot, call *Invocation) error {
	s := robo.Settings
	limit := "off"
	if n := s.UserLimit.Limit(); n > 0 {
		limit = fmt.Sprint(n)
	}
	robo.Reply(call, message.Format("",
		"Managing: %s. Muted: %s. User limit: %s. %d items (%s), %d users.",
		onOffString(s.Managing),
		onOffString(s.Muted),
		limit,
		robo.Room.Playlist.Len(),
		media.Clock(robo.Room.Playlist.Seconds()),
		robo.Room.Users.Len(),
	))
	return nil
}

// ProcessInfo describes the bot process.
func ProcessInfo(ctx context.Context, robo *Robot, call *Invocation) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	up := time.Since(robo.Start).Round(time.Second)
	robo.Reply(call, message.Format("",
		"Up %v on %s, %d goroutines, %.1f MiB heap.",
		up,
		runtime.Version(),
		runtime.NumGoroutine(),
		float64(ms.HeapAlloc)/(1<<20),
	))
	return nil
}

// topUsers is the length of the leaderboard in stats.
const topUsers = 5

// Stats reports room statistics, or those of one user.
func Stats(ctx context.Context, robo *Robot, call *Invocation) error {
	name := strings.TrimSpace(call.Args)
	if strings.ContainsAny(name, " \t") {
		robo.usage(call)
		return nil
	}
	reply := robo.replier(call)
	robo.Async(func(ctx context.Context) func() {
		if name != "" {
			u, err := robo.Store.UserStats(ctx, name)
			return func() {
				if err != nil {
					robo.Log.ErrorContext(ctx, "couldn't get user stats", slog.String("target", name), slog.Any("err", err))
					reply(message.Format("", "Couldn't get stats, sorry."))
					return
				}
				reply(message.Format("", "%s has queued %d videos, sent %d messages, and has %d cookies.", name, u.Plays, u.Chat, u.Cookies))
			}
		}
		s, err := robo.Store.Stats(ctx, topUsers)
		return func() {
			if err != nil {
				robo.Log.ErrorContext(ctx, "couldn't get stats", slog.Any("err", err))
				reply(message.Format("", "Couldn't get stats, sorry."))
				return
			}
			top := make([]string, 0, len(s.Top))
			for _, c := range s.Top {
				top = append(top, fmt.Sprintf("%s (%d)", c.User, c.N))
			}
			reply(message.Format("", "%d videos, %d plays, %d messages. Top queuers: %s", s.Videos, s.Plays, s.Chat, strings.Join(top, ", ")))
		}
	})
	return nil
}

// CurrentTime reports the position in the playing media.
func CurrentTime(ctx context.Context, robo *Robot, call *Invocation) error {
	cur := &robo.Room.Current
	if cur.Media.Ref().IsZero() {
		robo.Reply(call, message.Format("", "Nothing is playing."))
		return nil
	}
	robo.Reply(call, message.Format("", "%s is at %s / %s.", title(cur.Media), media.Clock(int(cur.Time)), media.Clock(cur.Media.Seconds)))
	return nil
}
