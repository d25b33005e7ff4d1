package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/go-cmp/cmp"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/cytubebot/command"
	"github.com/zephyrtronium/cytubebot/cytube"
	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/room"
	"github.com/zephyrtronium/cytubebot/settings"
	"github.com/zephyrtronium/cytubebot/store"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var dbcount atomic.Uint64

type testBot struct {
	*Robot
	timers []func()
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	ctx := context.Background()
	k := dbcount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:main%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(ctx, pool)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	kv, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })
	cfg := &Config{
		Cytube: CytubeCfg{Channel: "room", User: "bot"},
		Bot:    BotCfg{Sigil: "$", Replenish: 2, Types: []string{"yt"}, MaxSeconds: 600},
	}
	robo, err := New(discard(), cfg, Secrets{}, kv, st, newMetrics())
	if err != nil {
		t.Fatal(err)
	}
	b := &testBot{Robot: robo}
	robo.cmd.Async = func(work func(context.Context) func()) {
		if f := work(ctx); f != nil {
			f()
		}
	}
	robo.cmd.After = func(d time.Duration, f func()) {
		b.timers = append(b.timers, f)
	}
	robo.cmd.Start = time.Now().Add(-time.Hour)
	return b
}

// events handles each event in order, failing the test on any error.
func (b *testBot) events(t *testing.T, evs ...cytube.Event) {
	t.Helper()
	for _, ev := range evs {
		if err := b.handle(context.Background(), ev); err != nil {
			t.Fatalf("couldn't handle %s: %v", ev.EventName(), err)
		}
	}
}

// frames takes the frames emitted so far, room actions before chat as the
// writer sends them.
func (b *testBot) frames() []string {
	var r []string
	for _, f := range queued(b.emit) {
		r = append(r, describe(f))
	}
	return r
}

func describe(f cytube.Frame) string {
	s := f.Event
	for _, a := range f.Args {
		switch a := a.(type) {
		case map[string]any:
			for _, k := range []string{"to", "msg", "id", "name"} {
				if v, ok := a[k]; ok {
					s += fmt.Sprintf(" %v", v)
				}
			}
		default:
			s += fmt.Sprintf(" %v", a)
		}
	}
	return s
}

func yt(uid room.UID, id, by string) room.Item {
	return room.Item{UID: uid, Media: media.Media{Type: "yt", ID: id, Title: id, Seconds: 100}, QueuedBy: by}
}

// ready logs in and ends the grace period.
func (b *testBot) ready(t *testing.T) {
	t.Helper()
	b.events(t, cytube.Login{Success: true, Name: "bot"})
	for _, f := range b.timers {
		f()
	}
	b.timers = nil
	if !b.Robot.ready {
		t.Fatal("not ready after grace period")
	}
}

func TestChangeMediaRace(t *testing.T) {
	b := newTestBot(t)
	b.settings.Managing = true
	b.events(t,
		cytube.Userlist{Users: []room.User{{Name: "bot", Rank: room.Moderator}, {Name: "alice"}}},
		cytube.Playlist{Items: []room.Item{yt(1, "a", "alice"), yt(2, "b", "alice"), yt(3, "c", "alice"), yt(4, "d", "alice")}},
	)
	b.ready(t)
	b.events(t,
		// The first change after connecting never deletes.
		cytube.SetCurrent{UID: 1},
		cytube.ChangeMedia{Media: yt(1, "a", "").Media},
		cytube.SetCurrent{UID: 2},
		cytube.ChangeMedia{Media: yt(2, "b", "").Media},
	)
	if diff := cmp.Diff([]string{"delete 1"}, b.frames()); diff != "" {
		t.Errorf("wrong frames after normal change (-want +got):\n%s", diff)
	}
	// The finished item's delete races ahead of the change.
	b.events(t,
		cytube.Delete{UID: 1},
		cytube.SetCurrent{UID: 3},
		cytube.Delete{UID: 2},
		cytube.ChangeMedia{Media: yt(3, "c", "").Media, Time: 1.5},
	)
	if diff := cmp.Diff([]string(nil), b.frames()); diff != "" {
		t.Errorf("wrong frames after raced change (-want +got):\n%s", diff)
	}
	if got := b.room.Current.Time; got != 1.5 {
		t.Errorf("wrong current time: want 1.5, got %v", got)
	}
	// Temporary items are left alone.
	b.events(t,
		cytube.SetTemp{UID: 3, Temp: true},
		cytube.SetCurrent{UID: 4},
		cytube.ChangeMedia{Media: yt(4, "d", "").Media},
	)
	if diff := cmp.Diff([]string(nil), b.frames()); diff != "" {
		t.Errorf("wrong frames after temp change (-want +got):\n%s", diff)
	}
}

func TestChangeMediaNotReady(t *testing.T) {
	b := newTestBot(t)
	b.settings.Managing = true
	b.events(t,
		cytube.Playlist{Items: []room.Item{yt(1, "a", "alice"), yt(2, "b", "alice")}},
		cytube.Login{Success: true, Name: "bot"},
		cytube.SetCurrent{UID: 1},
		cytube.ChangeMedia{Media: yt(1, "a", "").Media},
		cytube.SetCurrent{UID: 2},
		cytube.ChangeMedia{Media: yt(2, "b", "").Media},
	)
	if diff := cmp.Diff([]string(nil), b.frames()); diff != "" {
		t.Errorf("wrong frames during grace (-want +got):\n%s", diff)
	}
}

func TestStaleGrace(t *testing.T) {
	b := newTestBot(t)
	b.events(t, cytube.Login{Success: true, Name: "bot"})
	// A reconnect happens before the timer fires.
	b.session++
	for _, f := range b.timers {
		f()
	}
	if b.Robot.ready {
		t.Error("timer from old session made the bot ready")
	}
}

func TestQueue(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	if err := b.store.FlagVideo(ctx, yt(0, "bad", "").Media, store.Blocked); err != nil {
		t.Fatal(err)
	}
	b.room.Limit = 2
	b.events(t,
		cytube.Userlist{Users: []room.User{{Name: "bot", Rank: room.Moderator}, {Name: "alice"}, {Name: "mod", Rank: room.Moderator}}},
		cytube.Playlist{Items: []room.Item{yt(1, "a", "alice")}},
	)
	cases := []struct {
		name string
		ev   cytube.Queue
		want []string
	}{
		{
			name: "ok",
			ev:   cytube.Queue{Item: yt(2, "b", "alice"), Pos: room.After(1)},
			want: nil,
		},
		{
			name: "over limit",
			ev:   cytube.Queue{Item: yt(3, "c", "alice"), Pos: room.After(2)},
			want: []string{"delete 3", "chatMsg alice can only have 2 items queued."},
		},
		{
			name: "blocked",
			ev:   cytube.Queue{Item: yt(4, "bad", "mod"), Pos: room.After(2)},
			want: nil,
		},
		{
			name: "unresolved",
			ev:   cytube.Queue{Item: yt(5, "e", "mod"), Pos: room.After(99)},
			want: nil,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b.events(t, c.ev)
			if diff := cmp.Diff(c.want, b.frames()); diff != "" {
				t.Errorf("wrong frames (-want +got):\n%s", diff)
			}
		})
	}
	// The over-limit item is deleted by the server later; the mirror keeps it
	// until then.
	b.events(t, cytube.Delete{UID: 3}, cytube.Delete{UID: 2})
	b.events(t, cytube.Queue{Item: yt(6, "bad", "alice"), Pos: room.After(1)})
	want := []string{"delete 6", "chatMsg bad is blocked."}
	if diff := cmp.Diff(want, b.frames()); diff != "" {
		t.Errorf("wrong frames for blocked video from guest (-want +got):\n%s", diff)
	}
	st, err := b.store.UserStats(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	// Every item alice queued counts, even those that were removed.
	if st.Plays != 4 {
		t.Errorf("wrong plays recorded: want 4, got %d", st.Plays)
	}
}

func TestSnapshotModeration(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	if err := b.store.FlagVideo(ctx, yt(0, "bad", "").Media, store.Blocked); err != nil {
		t.Fatal(err)
	}
	if err := b.store.SetUserBlocked(ctx, "troll", true); err != nil {
		t.Fatal(err)
	}
	b.events(t,
		cytube.Userlist{Users: []room.User{
			{Name: "bot", Rank: room.Moderator},
			{Name: "alice", Rank: room.Registered},
			{Name: "mod", Rank: room.Moderator},
			{Name: "troll"},
		}},
		cytube.Playlist{Items: []room.Item{
			yt(1, "ok", "alice"),
			yt(2, "bad", "alice"),
			yt(3, "bad", "mod"),
			yt(4, "fine", "troll"),
		}},
	)
	want := []string{"delete 2", "delete 4", "chatMsg bad is blocked."}
	if diff := cmp.Diff(want, b.frames()); diff != "" {
		t.Errorf("wrong frames after snapshot (-want +got):\n%s", diff)
	}
	st, err := b.store.UserStats(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.Plays != 2 {
		t.Errorf("wrong plays recorded for snapshot: want 2, got %d", st.Plays)
	}
	flags, err := b.store.VideoFlags(ctx, yt(0, "fine", "").Media.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if flags != store.Invalid {
		t.Errorf("wrong flags for blocked user's video: want %v, got %v", store.Invalid, flags)
	}
}

func TestEmptiedPlaylist(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		managing bool
		want     int
	}{
		{"managing", true, 2},
		{"not managing", false, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := newTestBot(t)
			for _, id := range []string{"a", "b", "c"} {
				if err := b.store.InsertVideo(ctx, yt(0, id, "").Media, "alice", time.Now()); err != nil {
					t.Fatal(err)
				}
			}
			b.settings.Managing = c.managing
			b.events(t, cytube.Playlist{Items: []room.Item{yt(5, "a", "alice")}})
			b.ready(t)
			b.events(t, cytube.Delete{UID: 5}, cytube.Delete{UID: 5})
			got := 0
			for _, f := range b.frames() {
				if strings.HasPrefix(f, "queue ") {
					got++
				}
			}
			if got != c.want {
				t.Errorf("wrong number of queued videos: want %d, got %d", c.want, got)
			}
		})
	}
}

func TestReadyReplenishes(t *testing.T) {
	b := newTestBot(t)
	if err := b.store.InsertVideo(context.Background(), yt(0, "a", "").Media, "alice", time.Now()); err != nil {
		t.Fatal(err)
	}
	b.settings.Managing = true
	b.events(t, cytube.Playlist{})
	b.ready(t)
	if diff := cmp.Diff([]string{"queue a"}, b.frames()); diff != "" {
		t.Errorf("wrong frames (-want +got):\n%s", diff)
	}
}

func TestUserlistEvents(t *testing.T) {
	b := newTestBot(t)
	b.events(t,
		cytube.Playlist{Items: []room.Item{yt(1, "a", "Alice"), yt(2, "b", "bob")}},
		cytube.Userlist{Users: []room.User{{Name: "bot", Rank: room.Moderator}}},
		cytube.AddUser{User: room.User{Name: "alice", Rank: room.Registered}},
		cytube.AddUser{User: room.User{Name: "bob"}},
		cytube.SetUserRank{Name: "BOB", Rank: room.Moderator},
		cytube.SetAFK{Name: "alice", AFK: true},
		cytube.UserLeave{Name: "bot"},
		cytube.UserLeave{Name: "nobody"},
	)
	want := []room.User{
		{Name: "alice", Rank: room.Registered, AFK: true, Added: []room.UID{1}},
		{Name: "bob", Rank: room.Moderator, Added: []room.UID{2}},
	}
	if diff := cmp.Diff(want, b.room.Users.Users()); diff != "" {
		t.Errorf("wrong users (-want +got):\n%s", diff)
	}
	r, err := b.store.UserRank(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if r != room.Registered {
		t.Errorf("wrong recorded rank: want %v, got %v", room.Registered, r)
	}
}

func TestPlaylistEvents(t *testing.T) {
	b := newTestBot(t)
	b.events(t,
		cytube.Playlist{Items: []room.Item{yt(1, "a", "x"), yt(2, "b", "x"), yt(3, "c", "x")}},
		cytube.MoveVideo{From: 3, Pos: room.Head},
		cytube.MoveVideo{From: 9, Pos: room.After(1)},
		cytube.SetTemp{UID: 2, Temp: true},
		cytube.Queue{Item: yt(4, "d", "x"), Pos: room.After(3)},
		cytube.Delete{UID: 1},
	)
	var got []string
	for _, it := range b.room.Playlist.Items() {
		got = append(got, fmt.Sprintf("%d %t", it.UID, it.Temp))
	}
	want := []string{"3 false", "4 false", "2 true"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong playlist (-want +got):\n%s", diff)
	}
}

func TestNeedPassword(t *testing.T) {
	cases := []struct {
		name  string
		pw    string
		wrong bool
		fatal bool
		want  []string
	}{
		{"none configured", "", false, true, nil},
		{"send", "hunter2", false, false, []string{"channelPassword hunter2"}},
		{"wrong", "hunter2", true, true, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := newTestBot(t)
			b.channelPassword = c.pw
			err := b.handle(context.Background(), cytube.NeedPassword{Wrong: c.wrong})
			if got := isFatal(err); got != c.fatal {
				t.Errorf("wrong fatality: want %t, got %t (%v)", c.fatal, got, err)
			}
			if diff := cmp.Diff(c.want, b.frames()); diff != "" {
				t.Errorf("wrong frames (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoginKick(t *testing.T) {
	b := newTestBot(t)
	err := b.handle(context.Background(), cytube.Login{Error: "bad password"})
	if !isFatal(err) {
		t.Errorf("rejected login wasn't fatal: %v", err)
	}
	err = b.handle(context.Background(), cytube.Kick{Reason: "bye"})
	if err == nil || isFatal(err) {
		t.Errorf("kick should end the connection without being fatal: %v", err)
	}
}

func TestChatCommands(t *testing.T) {
	b := newTestBot(t)
	now := time.Now()
	b.events(t,
		cytube.Userlist{Users: []room.User{{Name: "bot", Rank: room.Moderator}, {Name: "alice"}}},
		cytube.ChatMsg{Username: "alice", Msg: "$ask is this &amp; that ok", Time: now},
		cytube.ChatMsg{Username: "alice", Msg: "just talking", Time: now},
		cytube.ChatMsg{Username: "bot", Msg: "$ask me", Time: now},
		cytube.PM{Username: "alice", To: "bot", Msg: "$ask pm?", Time: now},
	)
	f := b.frames()
	if len(f) != 2 {
		t.Fatalf("wrong number of frames: want 2, got %q", f)
	}
	if !strings.HasPrefix(f[0], "chatMsg ") {
		t.Errorf("wrong reply to chat: %q", f[0])
	}
	if !strings.HasPrefix(f[1], "pm alice ") {
		t.Errorf("wrong reply to pm: %q", f[1])
	}
	st, err := b.store.UserStats(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.Chat != 2 {
		t.Errorf("wrong recorded chat: want 2, got %d", st.Chat)
	}
}

func TestSettingsFailureIsFatal(t *testing.T) {
	b := newTestBot(t)
	b.events(t, cytube.Userlist{Users: []room.User{{Name: "mod", Rank: room.Moderator}}})
	b.cmd.SaveSettings = func(*settings.Settings) error { return errors.New("disk on fire") }
	err := b.handle(context.Background(), cytube.ChatMsg{Username: "mod", Msg: "$management on", Time: time.Now()})
	if !isFatal(err) {
		t.Errorf("settings failure wasn't fatal: %v", err)
	}
}

func TestBanlistWaits(t *testing.T) {
	b := newTestBot(t)
	var got []cytube.Ban
	b.pending.Add(command.BanlistTag, func(p any) { got = p.([]cytube.Ban) })
	bans := []cytube.Ban{{ID: 1, Name: "troll"}}
	b.events(t, cytube.Banlist{Bans: bans}, cytube.Banlist{})
	if diff := cmp.Diff(bans, got); diff != "" {
		t.Errorf("wrong bans (-want +got):\n%s", diff)
	}
}

func TestBridge(t *testing.T) {
	b := newTestBot(t)
	b.bridge = newBridge(discard(), TwitchCfg{Channel: "#Room", Nick: "bot"}, "oauth:tok", newMetrics().BridgeMsgCount)
	ctx := context.Background()
	b.events(t, cytube.ChatMsg{Username: "alice", Msg: "hi &lt;3", Time: time.Now()})
	select {
	case m := <-b.bridge.out:
		if got := m.To(); got != "#room" {
			t.Errorf("wrong relay target: want #room, got %q", got)
		}
		if m.Trailing != "<alice> hi <3" {
			t.Errorf("wrong relay text: want %q, got %q", "<alice> hi <3", m.Trailing)
		}
	default:
		t.Error("room chat wasn't relayed")
	}
	// The bot's own messages aren't relayed back.
	b.events(t, cytube.ChatMsg{Username: "bot", Msg: "(tw) hello", Time: time.Now()})
	if len(b.bridge.out) != 0 {
		t.Error("relayed own message")
	}

	msg := &message.Received{Sender: "tw", Text: "hello", Timestamp: time.Now().UnixMilli(), Bridged: true}
	if err := b.bridged(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"chatMsg (tw) hello"}, b.frames()); diff != "" {
		t.Errorf("wrong frames for bridged chat (-want +got):\n%s", diff)
	}
	// Bridged users don't get room permissions even with a matching name.
	b.events(t, cytube.Userlist{Users: []room.User{{Name: "tw", Rank: room.Owner}}})
	msg = &message.Received{Sender: "tw", Text: "$skip", Timestamp: time.Now().UnixMilli(), Bridged: true}
	if err := b.bridged(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string(nil), b.frames()); diff != "" {
		t.Errorf("wrong frames for bridged command (-want +got):\n%s", diff)
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("x"), false},
		{fmt.Errorf("%w: x", errFatal), true},
		{fmt.Errorf("%w: x", command.ErrFatal), true},
		{fmt.Errorf("%w: x", errDiscover), false},
	}
	for _, c := range cases {
		if got := isFatal(c.err); got != c.want {
			t.Errorf("wrong result for %v: want %t, got %t", c.err, c.want, got)
		}
	}
}
