package room

import (
	"slices"

	"github.com/zephyrtronium/cytubebot/media"
)

// Playlist is the ordered list of queued items.
// Lookups are linear scans; the first matching UID wins.
type Playlist struct {
	items []Item
}

// Reset replaces the entire playlist.
func (p *Playlist) Reset(items []Item) {
	p.items = slices.Clone(items)
}

// Len returns the number of items in the playlist.
func (p *Playlist) Len() int {
	return len(p.items)
}

// Items returns a copy of the playlist in order.
func (p *Playlist) Items() []Item {
	return slices.Clone(p.items)
}

// Index returns the index of the item with the given UID, or -1 if there is
// no such item.
func (p *Playlist) Index(uid UID) int {
	return slices.IndexFunc(p.items, func(it Item) bool { return it.UID == uid })
}

// Find returns the item with the given UID.
func (p *Playlist) Find(uid UID) (Item, bool) {
	k := p.Index(uid)
	if k < 0 {
		return Item{}, false
	}
	return p.items[k], true
}

// Insert places an item at pos. An item positioned after a UID which is not
// in the playlist is appended if the playlist is empty and otherwise is not
// inserted. The result reports whether the item was inserted.
func (p *Playlist) Insert(pos Position, item Item) bool {
	if pos.Head {
		p.items = slices.Insert(p.items, 0, item)
		return true
	}
	k := p.Index(pos.After)
	if k < 0 {
		if len(p.items) != 0 {
			return false
		}
		p.items = append(p.items, item)
		return true
	}
	p.items = slices.Insert(p.items, k+1, item)
	return true
}

// Remove removes the item with the given UID and returns it.
// Removing an item that is not present does nothing.
func (p *Playlist) Remove(uid UID) (Item, bool) {
	k := p.Index(uid)
	if k < 0 {
		return Item{}, false
	}
	it := p.items[k]
	p.items = slices.Delete(p.items, k, k+1)
	return it, true
}

// Move moves the item with UID from to pos. The destination is resolved
// after the item is removed from its original location. If either the item
// or the destination cannot be found, the playlist is unchanged and the
// result is false.
func (p *Playlist) Move(from UID, pos Position) bool {
	k := p.Index(from)
	if k < 0 {
		return false
	}
	it := p.items[k]
	p.items = slices.Delete(p.items, k, k+1)
	if p.Insert(pos, it) {
		return true
	}
	// Destination vanished. Put it back where it was.
	p.items = slices.Insert(p.items, k, it)
	return false
}

// SetTemp sets the temporary flag of an item.
func (p *Playlist) SetTemp(uid UID, temp bool) bool {
	k := p.Index(uid)
	if k < 0 {
		return false
	}
	p.items[k].Temp = temp
	return true
}

// QueuedBy returns the UIDs of items queued by a user, in playlist order.
func (p *Playlist) QueuedBy(name string) []UID {
	f := Fold(name)
	var r []UID
	for _, it := range p.items {
		if Fold(it.QueuedBy) == f {
			r = append(r, it.UID)
		}
	}
	return r
}

// Having returns the UIDs of all items which play the given media.
func (p *Playlist) Having(ref media.Ref) []UID {
	var r []UID
	for _, it := range p.items {
		if it.Media.Ref() == ref {
			r = append(r, it.UID)
		}
	}
	return r
}

// Duplicates returns the UIDs of items whose media appears earlier in the
// playlist.
func (p *Playlist) Duplicates() []UID {
	seen := make(map[media.Ref]bool, len(p.items))
	var r []UID
	for _, it := range p.items {
		ref := it.Media.Ref()
		if seen[ref] {
			r = append(r, it.UID)
			continue
		}
		seen[ref] = true
	}
	return r
}

// Seconds returns the total duration of the playlist.
func (p *Playlist) Seconds() int {
	var n int
	for _, it := range p.items {
		n += it.Media.Seconds
	}
	return n
}
