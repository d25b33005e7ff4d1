package command_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zephyrtronium/cytubebot/command"
	"github.com/zephyrtronium/cytubebot/cytube"
	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/room"
	"github.com/zephyrtronium/cytubebot/settings"
	"github.com/zephyrtronium/cytubebot/store"
)

func TestRoomCommands(t *testing.T) {
	cases := []struct {
		name string
		user string
		text string
		want []string
	}{
		{
			name: "kick",
			user: "mod",
			text: "$kick member being rude",
			want: []string{"frame chatMsg /kick member being rude"},
		},
		{
			name: "ban",
			user: "admin",
			text: "$ban mod",
			want: []string{"frame chatMsg /ban mod"},
		},
		{
			name: "kick equal rank",
			user: "mod",
			text: "$kick mod",
			want: []string{"chat I can't do that to mod."},
		},
		{
			name: "kick bot",
			user: "owner",
			text: "$kick Bot",
			want: []string{"chat I can't do that to Bot."},
		},
		{
			name: "clear",
			user: "mod",
			text: "$clearchat",
			want: []string{"frame chatMsg /clear"},
		},
		{
			name: "poll",
			user: "mod",
			text: "$poll best cookie?. chocolate chip. sugar",
			want: []string{"frame newPoll"},
		},
		{
			name: "poll usage",
			user: "mod",
			text: "$poll no options",
			want: []string{"chat Usage: $poll <title>.<option>.<option>[.true]"},
		},
		{
			name: "endpoll",
			user: "mod",
			text: "$endpoll",
			want: []string{"frame closePoll"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t)
			if diff := cmp.Diff(c.want, h.say(t, c.user, c.text)); diff != "" {
				t.Errorf("wrong emissions (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnban(t *testing.T) {
	h := newHarness(t)
	if diff := cmp.Diff([]string{"frame requestBanlist"}, h.say(t, "mod", "$unban Troll")); diff != "" {
		t.Errorf("wrong emissions requesting (-want +got):\n%s", diff)
	}
	h.say(t, "mod", "$unban saint")
	h.rec.out = nil
	bans := []cytube.Ban{{ID: 7, Name: "troll"}, {ID: 9, Name: "other"}}
	if n := h.robo.Pending.Fire(command.BanlistTag, bans); n != 2 {
		t.Errorf("wrong number of waits fired: want 2, got %d", n)
	}
	want := []string{"frame unban 7 troll", "chat Unbanned Troll.", "chat saint isn't banned."}
	if diff := cmp.Diff(want, h.rec.out); diff != "" {
		t.Errorf("wrong emissions (-want +got):\n%s", diff)
	}
	if n := h.robo.Pending.Fire(command.BanlistTag, bans); n != 0 {
		t.Errorf("waits fired twice: %d", n)
	}
}

func TestUnbanPrivate(t *testing.T) {
	h := newHarness(t)
	msg := &message.Received{Sender: "mod", To: "bot", Text: "$unban troll", Timestamp: time.Now().UnixMilli()}
	if diff := cmp.Diff([]string{"frame requestBanlist"}, h.send(t, msg)); diff != "" {
		t.Errorf("wrong emissions requesting (-want +got):\n%s", diff)
	}
	// The dispatcher owns the message once the command returns.
	*msg = message.Received{Sender: "someone else", Text: "unrelated"}
	h.rec.out = nil
	h.robo.Pending.Fire(command.BanlistTag, []cytube.Ban{{ID: 7, Name: "troll"}})
	want := []string{"frame unban 7 troll", "pm mod: Unbanned troll."}
	if diff := cmp.Diff(want, h.rec.out); diff != "" {
		t.Errorf("wrong emissions after ban list (-want +got):\n%s", diff)
	}
}

func TestPermissions(t *testing.T) {
	h := newHarness(t)
	steps := []struct {
		user string
		text string
		want []string
	}{
		{"owner", "$permissions member", []string{"chat member has permissions: none"}},
		{"owner", "$permissions member +sa", []string{"chat member now has permissions: AS"}},
		{"member", "$skip", []string{"frame playNext"}},
		{"owner", "$permissions member -S", []string{"chat member now has permissions: A"}},
		{"member", "$skip", nil},
		{"member", "$permissions guest +A", nil},
		{"owner", "$permissions member ALL", []string{"chat member now has permissions: ALL"}},
		// ALL covers commands with no letter, too.
		{"member", "$permissions guest all", []string{"chat guest now has permissions: ALL"}},
		{"owner", "$permissions guest none", []string{"chat guest now has permissions: none"}},
		{"owner", "$permissions member NONE", []string{"chat member now has permissions: none"}},
		{"owner", "$permissions member sideways", []string{"chat Usage: $permissions <user> [ALL|NONE|+letters|-letters]"}},
	}
	for i, s := range steps {
		if diff := cmp.Diff(s.want, h.say(t, s.user, s.text)); diff != "" {
			t.Errorf("wrong emissions at step %d %q (-want +got):\n%s", i, s.text, diff)
		}
	}
	if h.saves != 6 {
		t.Errorf("wrong number of saves: want 6, got %d", h.saves)
	}
	for _, name := range []string{"member", "guest"} {
		if g := h.robo.Settings.Grant(name); g != "" {
			t.Errorf("grant left over for %s: %q", name, g)
		}
	}
}

func TestSaveFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.robo.SaveSettings = func(*settings.Settings) error { return errors.New("disk on fire") }
	msg := &message.Received{Sender: "mod", Text: "$mute", Timestamp: time.Now().UnixMilli()}
	err := h.robo.Dispatch(context.Background(), msg)
	if !errors.Is(err, command.ErrFatal) {
		t.Errorf("wrong error: want fatal, got %v", err)
	}
}

func TestMute(t *testing.T) {
	h := newHarness(t)
	if diff := cmp.Diff([]string{"chat Muted."}, h.say(t, "mod", "$mute")); diff != "" {
		t.Errorf("wrong emissions muting (-want +got):\n%s", diff)
	}
	if !h.robo.Settings.Muted {
		t.Error("settings not muted")
	}
	if got := h.say(t, "mod", "$status"); len(got) != 0 {
		t.Errorf("spoke while muted: %q", got)
	}
	// Room commands still go out.
	if diff := cmp.Diff([]string{"frame playNext"}, h.say(t, "mod", "$skip")); diff != "" {
		t.Errorf("wrong emissions while muted (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"chat Unmuted."}, h.say(t, "mod", "$unmute")); diff != "" {
		t.Errorf("wrong emissions unmuting (-want +got):\n%s", diff)
	}
	if h.saves != 2 {
		t.Errorf("wrong number of saves: want 2, got %d", h.saves)
	}
}

func TestBlockCommands(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.robo.Room.LoadPlaylist([]room.Item{
		item(1, "a", "alice"),
		item(2, "b", "bob"),
		item(3, "a", "bob"),
	})
	h.robo.Room.Current.Change(media.Media{Type: "yt", ID: "b", Title: "B"})

	want := []string{"delete 1", "delete 3", "chat Blocked A."}
	if diff := cmp.Diff(want, h.say(t, "mod", "$blockvideo yt:a")); diff != "" {
		t.Errorf("wrong emissions blocking video (-want +got):\n%s", diff)
	}
	f, err := h.store.VideoFlags(ctx, media.Ref{Type: "yt", ID: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if f != store.Blocked {
		t.Errorf("wrong flags: want %v, got %v", store.Blocked, f)
	}
	want = []string{"delete 2", "chat Blocked B."}
	if diff := cmp.Diff(want, h.say(t, "mod", "$blockvideo")); diff != "" {
		t.Errorf("wrong emissions blocking current (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"chat Unblocked B."}, h.say(t, "mod", "$unblockvideo")); diff != "" {
		t.Errorf("wrong emissions unblocking (-want +got):\n%s", diff)
	}
	if f, _ := h.store.VideoFlags(ctx, media.Ref{Type: "yt", ID: "b"}); f != store.Clean {
		t.Errorf("still flagged: %v", f)
	}

	want = []string{"delete 2", "delete 3", "chat Blocked bob."}
	if diff := cmp.Diff(want, h.say(t, "mod", "$blockuser bob")); diff != "" {
		t.Errorf("wrong emissions blocking user (-want +got):\n%s", diff)
	}
	if b, _ := h.store.UserBlocked(ctx, "BOB"); !b {
		t.Error("bob not blocked")
	}
	if diff := cmp.Diff([]string{"chat Done, unblocked bob."}, h.say(t, "mod", "$unblockuser bob")); diff != "" {
		t.Errorf("wrong emissions unblocking user (-want +got):\n%s", diff)
	}
	if b, _ := h.store.UserBlocked(ctx, "bob"); b {
		t.Error("bob still blocked")
	}
	if diff := cmp.Diff([]string{"chat I can't do that to admin."}, h.say(t, "mod", "$blockuser admin")); diff != "" {
		t.Errorf("wrong emissions blocking superior (-want +got):\n%s", diff)
	}

	if got := h.say(t, "mod", "$blacklistuser bob"); len(got) != 0 {
		t.Errorf("moderator blacklisted: %q", got)
	}
	if diff := cmp.Diff([]string{"chat Done, blacklisted bob."}, h.say(t, "admin", "$blacklistuser bob")); diff != "" {
		t.Errorf("wrong emissions blacklisting (-want +got):\n%s", diff)
	}
	if b, _ := h.store.UserBlacklisted(ctx, "bob"); !b {
		t.Error("bob not blacklisted")
	}
	if got := h.say(t, "mod", "$blockvideo nonsense"); len(got) != 1 || !strings.Contains(got[0], "recognize") {
		t.Errorf("wrong emissions for bad link: %q", got)
	}
}
