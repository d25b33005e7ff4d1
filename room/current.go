package room

import "github.com/zephyrtronium/cytubebot/media"

// Current tracks the media that is playing.
type Current struct {
	// Media is the playing media.
	Media media.Media `json:"media"`
	// UID is the playlist entry that is playing.
	UID UID `json:"uid"`
	// Prev is the playlist entry that played before UID.
	// It is retained so that a finished item can still be resolved when the
	// server reports the media change after other changes to the playlist.
	Prev UID `json:"prev"`
	// Time is the playback position in seconds.
	Time float64 `json:"time"`
	// Paused indicates whether playback is paused.
	Paused bool `json:"paused"`

	seen    bool
	changed bool
}

// SetUID records that the entry with the given UID became current. The
// first time, both UID and Prev are set to it.
func (c *Current) SetUID(uid UID) {
	if !c.seen {
		c.UID, c.Prev, c.seen = uid, uid, true
		return
	}
	c.Prev, c.UID = c.UID, uid
}

// Change records new media. The result reports whether this is the first
// change since the tracker was reset.
func (c *Current) Change(m media.Media) (first bool) {
	first = !c.changed
	c.Media, c.Time, c.Paused, c.changed = m, 0, false, true
	return first
}

// Update records the playback position.
func (c *Current) Update(t float64, paused bool) {
	c.Time, c.Paused = t, paused
}

// Reset forgets all tracked state.
func (c *Current) Reset() {
	*c = Current{}
}
