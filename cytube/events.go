// Package cytube speaks the Cytube room protocol: socket.io events carried
// over an Engine.IO WebSocket.
package cytube

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/room"
)

// Event is a decoded server event. The concrete types in this package are
// the only implementations.
type Event interface {
	// EventName returns the protocol name of the event.
	EventName() string
	event()
}

// AddUser reports a user joining the room.
type AddUser struct{ User room.User }

// UserLeave reports a user leaving the room.
type UserLeave struct{ Name string }

// SetUserRank reports a change to a user's rank.
type SetUserRank struct {
	Name string
	Rank room.Rank
}

// SetAFK reports a change to a user's away status.
type SetAFK struct {
	Name string
	AFK  bool
}

// Userlist is a snapshot of all users in the room.
type Userlist struct{ Users []room.User }

// Queue reports an item added to the playlist.
type Queue struct {
	Item room.Item
	Pos  room.Position
}

// Delete reports an item removed from the playlist.
type Delete struct{ UID room.UID }

// MoveVideo reports an item moved within the playlist.
type MoveVideo struct {
	From room.UID
	Pos  room.Position
}

// SetTemp reports a change to an item's temporary flag.
type SetTemp struct {
	UID  room.UID
	Temp bool
}

// SetCurrent reports the playlist entry that became current.
type SetCurrent struct{ UID room.UID }

// ChangeMedia reports the media that started playing.
type ChangeMedia struct {
	Media  media.Media
	Time   float64
	Paused bool
}

// MediaUpdate reports the playback position.
type MediaUpdate struct {
	Time   float64
	Paused bool
}

// NeedPassword reports that the room requires a password to join.
// Wrong is set when a password was sent and rejected.
type NeedPassword struct{ Wrong bool }

// Playlist is a snapshot of the entire playlist.
type Playlist struct{ Items []room.Item }

// ChatMsg is a message in room chat.
type ChatMsg struct {
	Username string
	Msg      string
	Time     time.Time
}

// PM is a private message.
type PM struct {
	Username string
	To       string
	Msg      string
	Time     time.Time
}

// Ban is an entry in the room's ban list.
type Ban struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
	BannedBy string `json:"bannedby"`
}

// Banlist is the room's ban list, sent in response to a request.
type Banlist struct{ Bans []Ban }

// Login reports the result of logging in.
type Login struct {
	Success bool
	Name    string
	Error   string
}

// Rank reports the bot's own rank.
type Rank struct{ Rank room.Rank }

// Kick reports that the server removed the bot from the room.
type Kick struct{ Reason string }

func (AddUser) EventName() string      { return "addUser" }
func (UserLeave) EventName() string    { return "userLeave" }
func (SetUserRank) EventName() string  { return "setUserRank" }
func (SetAFK) EventName() string       { return "setAFK" }
func (Userlist) EventName() string     { return "userlist" }
func (Queue) EventName() string        { return "queue" }
func (Delete) EventName() string       { return "delete" }
func (MoveVideo) EventName() string    { return "moveVideo" }
func (SetTemp) EventName() string      { return "setTemp" }
func (SetCurrent) EventName() string   { return "setCurrent" }
func (ChangeMedia) EventName() string  { return "changeMedia" }
func (MediaUpdate) EventName() string  { return "mediaUpdate" }
func (NeedPassword) EventName() string { return "needPassword" }
func (Playlist) EventName() string     { return "playlist" }
func (ChatMsg) EventName() string      { return "chatMsg" }
func (PM) EventName() string           { return "pm" }
func (Banlist) EventName() string      { return "banlist" }
func (Login) EventName() string        { return "login" }
func (Rank) EventName() string         { return "rank" }
func (Kick) EventName() string         { return "kick" }

func (AddUser) event()      {}
func (UserLeave) event()    {}
func (SetUserRank) event()  {}
func (SetAFK) event()       {}
func (Userlist) event()     {}
func (Queue) event()        {}
func (Delete) event()       {}
func (MoveVideo) event()    {}
func (SetTemp) event()      {}
func (SetCurrent) event()   {}
func (ChangeMedia) event()  {}
func (MediaUpdate) event()  {}
func (NeedPassword) event() {}
func (Playlist) event()     {}
func (ChatMsg) event()      {}
func (PM) event()           {}
func (Banlist) event()      {}
func (Login) event()        {}
func (Rank) event()         {}
func (Kick) event()         {}

// ErrUnknownEvent is wrapped by errors from decoding events which the bot
// does not handle. Servers send many such events; they are not faults.
var ErrUnknownEvent = errors.New("unknown event")

// Wire representations.

type wireMedia struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Seconds float64 `json:"seconds"`
	Type    string  `json:"type"`
}

func (m wireMedia) media() media.Media {
	return media.Media{Type: m.Type, ID: m.ID, Title: m.Title, Seconds: int(m.Seconds)}
}

type wireItem struct {
	UID     room.UID  `json:"uid"`
	Media   wireMedia `json:"media"`
	QueueBy string    `json:"queueby"`
	Temp    bool      `json:"temp"`
}

func (it wireItem) item() room.Item {
	return room.Item{UID: it.UID, Media: it.Media.media(), QueuedBy: it.QueueBy, Temp: it.Temp}
}

type wireUser struct {
	Name string  `json:"name"`
	Rank float64 `json:"rank"`
	Meta struct {
		AFK    bool `json:"afk"`
		Muted  bool `json:"muted"`
		SMuted bool `json:"smuted"`
	} `json:"meta"`
}

func (u wireUser) user() room.User {
	return room.User{Name: u.Name, Rank: room.RankOf(u.Rank), AFK: u.Meta.AFK, Muted: u.Meta.Muted || u.Meta.SMuted}
}

// position decodes a playlist position, which is either a UID or the string
// "prepend".
func position(v jsontext.Value) (room.Position, error) {
	if v.Kind() == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return room.Position{}, err
		}
		if s == "prepend" {
			return room.Head, nil
		}
		return room.Position{}, fmt.Errorf("unknown position %q", s)
	}
	var uid room.UID
	if err := json.Unmarshal(v, &uid); err != nil {
		return room.Position{}, err
	}
	return room.After(uid), nil
}

// Decode decodes a socket.io event packet body, the JSON array following
// the "42" packet prefix.
func Decode(b []byte) (Event, error) {
	var arr []jsontext.Value
	if err := json.Unmarshal(b, &arr); err != nil {
		return nil, fmt.Errorf("couldn't decode event: %w", err)
	}
	if len(arr) == 0 {
		return nil, errors.New("couldn't decode event: empty packet")
	}
	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return nil, fmt.Errorf("couldn't decode event name: %w", err)
	}
	arg := jsontext.Value("null")
	if len(arr) > 1 {
		arg = arr[1]
	}
	ev, err := decodeArg(name, arg)
	if err != nil {
		return nil, fmt.Errorf("couldn't decode %s: %w", name, err)
	}
	return ev, nil
}

func decodeArg(name string, arg jsontext.Value) (Event, error) {
	switch name {
	case "addUser":
		var u wireUser
		if err := json.Unmarshal(arg, &u); err != nil {
			return nil, err
		}
		return AddUser{User: u.user()}, nil
	case "userLeave":
		var u struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(arg, &u); err != nil {
			return nil, err
		}
		return UserLeave{Name: u.Name}, nil
	case "setUserRank":
		var u wireUser
		if err := json.Unmarshal(arg, &u); err != nil {
			return nil, err
		}
		return SetUserRank{Name: u.Name, Rank: room.RankOf(u.Rank)}, nil
	case "setAFK":
		var u struct {
			Name string `json:"name"`
			AFK  bool   `json:"afk"`
		}
		if err := json.Unmarshal(arg, &u); err != nil {
			return nil, err
		}
		return SetAFK{Name: u.Name, AFK: u.AFK}, nil
	case "userlist":
		var us []wireUser
		if err := json.Unmarshal(arg, &us); err != nil {
			return nil, err
		}
		r := Userlist{Users: make([]room.User, 0, len(us))}
		for _, u := range us {
			r.Users = append(r.Users, u.user())
		}
		return r, nil
	case "queue":
		var q struct {
			Item  wireItem       `json:"item"`
			After jsontext.Value `json:"after"`
		}
		if err := json.Unmarshal(arg, &q); err != nil {
			return nil, err
		}
		pos, err := position(q.After)
		if err != nil {
			return nil, err
		}
		return Queue{Item: q.Item.item(), Pos: pos}, nil
	case "delete":
		var d struct {
			UID room.UID `json:"uid"`
		}
		if err := json.Unmarshal(arg, &d); err != nil {
			return nil, err
		}
		return Delete{UID: d.UID}, nil
	case "moveVideo":
		var m struct {
			From  room.UID       `json:"from"`
			After jsontext.Value `json:"after"`
		}
		if err := json.Unmarshal(arg, &m); err != nil {
			return nil, err
		}
		pos, err := position(m.After)
		if err != nil {
			return nil, err
		}
		return MoveVideo{From: m.From, Pos: pos}, nil
	case "setTemp":
		var s struct {
			UID  room.UID `json:"uid"`
			Temp bool     `json:"temp"`
		}
		if err := json.Unmarshal(arg, &s); err != nil {
			return nil, err
		}
		return SetTemp{UID: s.UID, Temp: s.Temp}, nil
	case "setCurrent":
		var uid room.UID
		if err := json.Unmarshal(arg, &uid); err != nil {
			return nil, err
		}
		return SetCurrent{UID: uid}, nil
	case "changeMedia":
		var m struct {
			ID          string  `json:"id"`
			Title       string  `json:"title"`
			Seconds     float64 `json:"seconds"`
			Type        string  `json:"type"`
			CurrentTime float64 `json:"currentTime"`
			Paused      bool    `json:"paused"`
		}
		if err := json.Unmarshal(arg, &m); err != nil {
			return nil, err
		}
		w := wireMedia{ID: m.ID, Title: m.Title, Seconds: m.Seconds, Type: m.Type}
		return ChangeMedia{Media: w.media(), Time: m.CurrentTime, Paused: m.Paused}, nil
	case "mediaUpdate":
		var m struct {
			CurrentTime float64 `json:"currentTime"`
			Paused      bool    `json:"paused"`
		}
		if err := json.Unmarshal(arg, &m); err != nil {
			return nil, err
		}
		return MediaUpdate{Time: m.CurrentTime, Paused: m.Paused}, nil
	case "needPassword":
		var wrong bool
		if err := json.Unmarshal(arg, &wrong); err != nil {
			return nil, err
		}
		return NeedPassword{Wrong: wrong}, nil
	case "playlist":
		var items []wireItem
		if err := json.Unmarshal(arg, &items); err != nil {
			return nil, err
		}
		r := Playlist{Items: make([]room.Item, 0, len(items))}
		for _, it := range items {
			r.Items = append(r.Items, it.item())
		}
		return r, nil
	case "chatMsg", "pm":
		var m struct {
			Username string `json:"username"`
			Msg      string `json:"msg"`
			Time     int64  `json:"time"`
			To       string `json:"to"`
		}
		if err := json.Unmarshal(arg, &m); err != nil {
			return nil, err
		}
		if name == "pm" {
			return PM{Username: m.Username, To: m.To, Msg: m.Msg, Time: time.UnixMilli(m.Time)}, nil
		}
		return ChatMsg{Username: m.Username, Msg: m.Msg, Time: time.UnixMilli(m.Time)}, nil
	case "banlist":
		var bans []Ban
		if err := json.Unmarshal(arg, &bans); err != nil {
			return nil, err
		}
		return Banlist{Bans: bans}, nil
	case "login":
		var l struct {
			Success bool   `json:"success"`
			Name    string `json:"name"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(arg, &l); err != nil {
			return nil, err
		}
		return Login{Success: l.Success, Name: l.Name, Error: l.Error}, nil
	case "rank":
		var r float64
		if err := json.Unmarshal(arg, &r); err != nil {
			return nil, err
		}
		return Rank{Rank: room.RankOf(r)}, nil
	case "kick":
		var k struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(arg, &k); err != nil {
			return nil, err
		}
		return Kick{Reason: k.Reason}, nil
	default:
		return nil, ErrUnknownEvent
	}
}
