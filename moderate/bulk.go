package moderate

import (
	"fmt"

	"github.com/zephyrtronium/cytubebot/room"
)

// Action is an action applied to many playlist items at once.
type Action int

const (
	// Delete removes each item.
	Delete Action = iota
	// Bump moves each item to play next, keeping their relative order.
	Bump
)

func (a Action) String() string {
	switch a {
	case Delete:
		return "delete"
	case Bump:
		return "bump"
	default:
		return fmt.Sprintf("moderate.Action(%d)", int(a))
	}
}

// bulkFunc applies an action to one item. Cursor is the UID after which
// the next moved item goes.
type bulkFunc func(e *Engine, uid room.UID, cursor *room.UID)

var bulk = [...]bulkFunc{
	Delete: func(e *Engine, uid room.UID, _ *room.UID) {
		e.Emit.Delete(uid)
	},
	Bump: func(e *Engine, uid room.UID, cursor *room.UID) {
		if uid != *cursor {
			e.Emit.Move(uid, room.After(*cursor))
		}
		*cursor = uid
	},
}

// Bulk applies an action to the given items. Items that are not in the
// playlist are skipped. The result is the number of items acted upon.
func (e *Engine) Bulk(s *room.State, act Action, uids []room.UID) int {
	if act < 0 || int(act) >= len(bulk) {
		panic(fmt.Errorf("moderate: unknown bulk action %v", act))
	}
	f := bulk[act]
	cursor := s.Current.UID
	var n int
	for _, uid := range uids {
		if _, ok := s.Playlist.Find(uid); !ok {
			continue
		}
		f(e, uid, &cursor)
		n++
	}
	return n
}

// Last returns up to n of the given UIDs from the end. A nonpositive n
// selects all of them.
func Last(uids []room.UID, n int) []room.UID {
	if n <= 0 || n >= len(uids) {
		return uids
	}
	return uids[len(uids)-n:]
}
