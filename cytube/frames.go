package cytube

import (
	"fmt"

	"github.com/go-json-experiment/json"

	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/room"
)

// Frame is an event to send to the server.
type Frame struct {
	// Event is the event name.
	Event string
	// Args are the event arguments. Most events take zero or one.
	Args []any
}

// Encode encodes the frame as a socket.io event packet.
func (f Frame) Encode() ([]byte, error) {
	arr := make([]any, 0, 1+len(f.Args))
	arr = append(arr, f.Event)
	arr = append(arr, f.Args...)
	b, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("couldn't encode %s frame: %w", f.Event, err)
	}
	return append([]byte("42"), b...), nil
}

func frame(event string, args ...any) Frame {
	return Frame{Event: event, Args: args}
}

// QueueMedia requests adding media to the playlist, either at the end or
// after the current item.
func QueueMedia(ref media.Ref, next, temp bool) Frame {
	pos := "end"
	if next {
		pos = "next"
	}
	return frame("queue", map[string]any{
		"id":   ref.ID,
		"type": ref.Type,
		"pos":  pos,
		"temp": temp,
	})
}

// DeleteItem requests removing a playlist item.
func DeleteItem(uid room.UID) Frame {
	return frame("delete", uid)
}

// MoveMedia requests moving a playlist item.
func MoveMedia(from room.UID, pos room.Position) Frame {
	var after any = pos.After
	if pos.Head {
		after = "prepend"
	}
	return frame("moveMedia", map[string]any{"from": from, "after": after})
}

// ChatMeta is metadata attached to a chat message.
type ChatMeta struct {
	// ModFlair shows the sender's rank color when nonzero.
	ModFlair room.Rank `json:"modflair,omitzero"`
}

// Chat sends a chat message. Messages beginning with a slash are room
// commands such as /kick and /clear.
func Chat(msg string, meta ChatMeta) Frame {
	return frame("chatMsg", map[string]any{"msg": msg, "meta": meta})
}

// PrivateMessage sends a private message.
func PrivateMessage(to, msg string) Frame {
	return frame("pm", map[string]any{"to": to, "msg": msg, "meta": map[string]any{}})
}

// NewPoll opens a poll. A nonpositive timeout leaves the poll open until it
// is closed.
func NewPoll(title string, opts []string, obscured bool, timeout int) Frame {
	p := map[string]any{"title": title, "opts": opts, "obscured": obscured}
	if timeout > 0 {
		p["timeout"] = timeout
	}
	return frame("newPoll", p)
}

// ClosePoll closes the open poll.
func ClosePoll() Frame { return frame("closePoll") }

// ShufflePlaylist shuffles the playlist.
func ShufflePlaylist() Frame { return frame("shufflePlaylist") }

// PlayNext skips to the next item.
func PlayNext() Frame { return frame("playNext") }

// ChannelPassword answers a password challenge.
func ChannelPassword(pw string) Frame { return frame("channelPassword", pw) }

// RequestBanlist asks the server for the ban list.
func RequestBanlist() Frame { return frame("requestBanlist") }

// Unban removes a ban.
func Unban(id int64, name string) Frame {
	return frame("unban", map[string]any{"id": id, "name": name})
}

// LoginAs logs in. An empty password logs in as a guest.
func LoginAs(name, pw string) Frame {
	a := map[string]any{"name": name}
	if pw != "" {
		a["pw"] = pw
	}
	return frame("login", a)
}

// JoinChannel joins a room.
func JoinChannel(name string) Frame {
	return frame("joinChannel", map[string]any{"name": name})
}
