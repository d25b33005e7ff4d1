package room

import "slices"

// State is the complete mirrored state of a room.
type State struct {
	Playlist Playlist
	Users    Userlist
	Current  Current
	// Self is the bot's own name. Items the bot queues are exempt from the
	// per-user limit.
	Self string
	// Limit is the maximum number of items a user below moderator may have
	// queued at once. Zero means no limit.
	Limit int
}

// Added describes the outcome of adding an item.
type Added int

const (
	// Inserted means the item was placed in the playlist.
	Inserted Added = iota
	// Skipped means the item's position could not be resolved and the
	// playlist is unchanged.
	Skipped
	// OverLimit means the item was placed but its queuer now has more items
	// than the per-user limit allows. The caller should delete it.
	OverLimit
)

// Reset forgets all state, as on reconnecting.
func (s *State) Reset() {
	s.Playlist.Reset(nil)
	s.Users.Reset(nil)
	s.Current.Reset()
}

// LoadPlaylist replaces the playlist and re-derives each user's added items.
func (s *State) LoadPlaylist(items []Item) {
	s.Playlist.Reset(items)
	s.derive()
}

// LoadUsers replaces the userlist and derives each user's added items from
// the playlist.
func (s *State) LoadUsers(users []User) {
	s.Users.Reset(users)
	s.derive()
}

func (s *State) derive() {
	for i := range s.Users.users {
		u := &s.Users.users[i]
		u.Added = s.Playlist.QueuedBy(u.Name)
	}
}

// Join adds a user and derives their added items from the playlist.
// A user who is already present is not duplicated.
func (s *State) Join(u User) bool {
	u.Added = s.Playlist.QueuedBy(u.Name)
	return s.Users.Join(u)
}

// Add places an item in the playlist at pos.
func (s *State) Add(pos Position, item Item) Added {
	if !s.Playlist.Insert(pos, item) {
		return Skipped
	}
	u := s.Users.find(item.QueuedBy)
	if u == nil {
		return Inserted
	}
	u.Added = append(u.Added, item.UID)
	if s.Limit <= 0 || u.Rank >= Moderator || SameName(u.Name, s.Self) {
		return Inserted
	}
	if len(s.Playlist.QueuedBy(u.Name)) > s.Limit {
		return OverLimit
	}
	return Inserted
}

// Remove removes an item from the playlist and from its queuer's added
// items. Removing an item that is not present does nothing.
func (s *State) Remove(uid UID) (Item, bool) {
	it, ok := s.Playlist.Remove(uid)
	if !ok {
		return Item{}, false
	}
	if u := s.Users.find(it.QueuedBy); u != nil {
		if k := slices.Index(u.Added, uid); k >= 0 {
			u.Added = slices.Delete(u.Added, k, k+1)
		}
	}
	return it, true
}

// Move moves an item to pos.
func (s *State) Move(from UID, pos Position) bool {
	return s.Playlist.Move(from, pos)
}

// SetTemp sets an item's temporary flag.
func (s *State) SetTemp(uid UID, temp bool) bool {
	return s.Playlist.SetTemp(uid, temp)
}

// Snapshot is a copy of room state suitable for serialization.
type Snapshot struct {
	Playlist []Item  `json:"playlist"`
	Users    []User  `json:"users"`
	Current  Current `json:"current"`
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Playlist: s.Playlist.Items(),
		Users:    s.Users.Users(),
		Current:  s.Current,
	}
}
