// Package room mirrors the synchronized state of a Cytube room: its playlist,
// its userlist, and the media currently playing.
//
// None of the types in this package are safe for concurrent use. A room is
// owned by the single goroutine that applies server events to it.
package room

import (
	"fmt"

	"golang.org/x/text/cases"

	"github.com/zephyrtronium/cytubebot/media"
)

// UID is a server-assigned identifier for a playlist entry.
// It is stable for the lifetime of the entry.
type UID int64

// Rank is a user's rank in the room.
type Rank int

const (
	Guest Rank = iota
	Registered
	Moderator
	Admin
	Owner
	Founder
)

// RankOf converts a rank as the server reports it. The server uses
// fractional ranks for some special users; they truncate toward the rank
// below.
func RankOf(r float64) Rank {
	switch {
	case r < float64(Registered):
		return Guest
	case r >= float64(Founder):
		return Founder
	default:
		return Rank(r)
	}
}

func (r Rank) String() string {
	switch r {
	case Guest:
		return "guest"
	case Registered:
		return "registered"
	case Moderator:
		return "moderator"
	case Admin:
		return "admin"
	case Owner:
		return "owner"
	case Founder:
		return "founder"
	default:
		return fmt.Sprintf("room.Rank(%d)", int(r))
	}
}

// Item is an entry in the playlist.
type Item struct {
	UID      UID         `json:"uid"`
	Media    media.Media `json:"media"`
	QueuedBy string      `json:"queuedBy"`
	Temp     bool        `json:"temp"`
}

// Position is a location in the playlist at which to place an item.
type Position struct {
	// After is the UID of the item which the placed item follows.
	After UID
	// Head indicates the item goes at the front of the playlist. If Head is
	// true, After is ignored.
	Head bool
}

// After returns a position following uid.
func After(uid UID) Position {
	return Position{After: uid}
}

// Head is the position at the front of the playlist.
var Head = Position{Head: true}

// Fold case-folds a user name for identity comparison.
func Fold(name string) string {
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(name)
}

// SameName reports whether two user names identify the same user.
func SameName(a, b string) bool {
	return Fold(a) == Fold(b)
}
