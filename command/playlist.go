package command

import (
	"context"
	"strconv"
	"strings"

	"github.com/zephyrtronium/cytubebot/cytube"
	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/moderate"
	"github.com/zephyrtronium/cytubebot/room"
)

// maxRandom is the most videos addrandom adds at once.
const maxRandom = 20

// count parses a count argument. The empty string gives def, and "all"
// gives zero, meaning no limit.
func count(s string, def int) (int, bool) {
	switch strings.ToLower(s) {
	case "":
		return def, true
	case "all":
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Add queues a link.
//   - link: the media to queue
//   - next: optional literal "next" to queue the media to play next
func Add(ctx context.Context, robo *Robot, call *Invocation) error {
	f := strings.Fields(call.Args)
	if len(f) == 0 || len(f) > 2 || len(f) == 2 && f[1] != "next" {
		robo.usage(call)
		return nil
	}
	ref, ok := media.Parse(f[0])
	if !ok {
		robo.Reply(call, message.Format("", "I don't recognize that link."))
		return nil
	}
	robo.Emit.Queue(ref, len(f) == 2, false)
	return nil
}

// AddRandom queues random videos from the store.
func AddRandom(ctx context.Context, robo *Robot, call *Invocation) error {
	n, ok := count(strings.TrimSpace(call.Args), 1)
	if !ok || n == 0 {
		robo.usage(call)
		return nil
	}
	n = min(n, maxRandom)
	reply := robo.replier(call)
	robo.Async(func(ctx context.Context) func() {
		got := robo.Engine.Replenish(ctx, n)
		return func() {
			if got == 0 {
				reply(message.Format("", "I couldn't find any videos to add."))
			}
		}
	})
	return nil
}

// userItems is the common argument handling for commands acting on a
// user's queued items.
func userItems(robo *Robot, call *Invocation, def int) (string, []room.UID, bool) {
	f := strings.Fields(call.Args)
	if len(f) == 0 || len(f) > 2 {
		robo.usage(call)
		return "", nil, false
	}
	var arg string
	if len(f) == 2 {
		arg = f[1]
	}
	n, ok := count(arg, def)
	if !ok {
		robo.usage(call)
		return "", nil, false
	}
	uids := robo.Room.Playlist.QueuedBy(f[0])
	if len(uids) == 0 {
		robo.Reply(call, message.Format("", "%s has nothing queued.", f[0]))
		return "", nil, false
	}
	return f[0], moderate.Last(uids, n), true
}

// Delete removes a user's most recently queued items.
func Delete(ctx context.Context, robo *Robot, call *Invocation) error {
	user, uids, ok := userItems(robo, call, 1)
	if !ok {
		return nil
	}
	n := robo.Engine.Bulk(robo.Room, moderate.Delete, uids)
	robo.Reply(call, message.Format("", "Deleting %d of %s's items.", n, user))
	return nil
}

// Purge removes everything a user has queued.
func Purge(ctx context.Context, robo *Robot, call *Invocation) error {
	user := strings.TrimSpace(call.Args)
	if user == "" || strings.ContainsAny(user, " \t") {
		robo.usage(call)
		return nil
	}
	uids := robo.Room.Playlist.QueuedBy(user)
	n := robo.Engine.Bulk(robo.Room, moderate.Delete, uids)
	robo.Reply(call, message.Format("", "Purged %d items from %s.", n, user))
	return nil
}

// Duplicates removes repeated media, keeping the earliest of each.
func Duplicates(ctx context.Context, robo *Robot, call *Invocation) error {
	n := robo.Engine.Bulk(robo.Room, moderate.Delete, robo.Room.Playlist.Duplicates())
	robo.Reply(call, message.Format("", "Removing %d duplicates.", n))
	return nil
}

// Bump moves a user's items to play next.
func Bump(ctx context.Context, robo *Robot, call *Invocation) error {
	user, uids, ok := userItems(robo, call, 0)
	if !ok {
		return nil
	}
	n := robo.Engine.Bulk(robo.Room, moderate.Bump, uids)
	robo.Reply(call, message.Format("", "Bumped %d of %s's items.", n, user))
	return nil
}

// Shuffle shuffles the playlist.
func Shuffle(ctx context.Context, robo *Robot, call *Invocation) error {
	robo.Emit.Frame(cytube.ShufflePlaylist())
	return nil
}

// Skip skips the current media.
func Skip(ctx context.Context, robo *Robot, call *Invocation) error {
	robo.Emit.Frame(cytube.PlayNext())
	return nil
}

// onOff parses an on/off argument.
func onOff(s string) (v, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes":
		return true, true
	case "off", "false", "no":
		return false, true
	}
	return false, false
}

func onOffString(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Management toggles autonomous playlist upkeep.
func Management(ctx context.Context, robo *Robot, call *Invocation) error {
	if strings.TrimSpace(call.Args) == "" {
		robo.Reply(call, message.Format("", "Playlist management is %s.", onOffString(robo.Settings.Managing)))
		return nil
	}
	v, ok := onOff(call.Args)
	if !ok {
		robo.usage(call)
		return nil
	}
	robo.Settings.Managing = v
	if err := robo.save(); err != nil {
		return err
	}
	robo.Reply(call, message.Format("", "Playlist management is now %s.", onOffString(v)))
	if v && robo.Room.Playlist.Len() == 0 && robo.Replenish > 0 {
		robo.Async(func(ctx context.Context) func() {
			robo.Engine.Replenish(ctx, robo.Replenish)
			return nil
		})
	}
	return nil
}

// UserLimit sets the number of items each user may have queued.
func UserLimit(ctx context.Context, robo *Robot, call *Invocation) error {
	arg := strings.TrimSpace(call.Args)
	lim := &robo.Settings.UserLimit
	if arg == "" {
		robo.Reply(call, message.Format("", "The user limit is %s at %d.", onOffString(lim.Enabled), lim.Num))
		return nil
	}
	if v, ok := onOff(arg); ok {
		lim.Enabled = v
	} else {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			robo.usage(call)
			return nil
		}
		lim.Enabled, lim.Num = true, n
	}
	if err := robo.save(); err != nil {
		return err
	}
	robo.Room.Limit = lim.Limit()
	robo.Reply(call, message.Format("", "The user limit is now %s at %d.", onOffString(lim.Enabled), lim.Num))
	return nil
}
