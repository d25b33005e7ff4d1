package moderate_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/moderate"
	"github.com/zephyrtronium/cytubebot/room"
	"github.com/zephyrtronium/cytubebot/store"
)

type fakeStore struct {
	flags   map[media.Ref]store.Flags
	blocked map[string]bool
	random  []media.Media
	err     error

	mu      sync.Mutex
	plays   []string
	flagged map[media.Ref]store.Flags
	asked   []int
}

func (s *fakeStore) VideoFlags(ctx context.Context, ref media.Ref) (store.Flags, error) {
	return s.flags[ref], s.err
}

func (s *fakeStore) FlagVideo(ctx context.Context, m media.Media, flags store.Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flagged == nil {
		s.flagged = make(map[media.Ref]store.Flags)
	}
	s.flagged[m.Ref()] = flags
	return s.err
}

func (s *fakeStore) InsertVideo(ctx context.Context, m media.Media, by string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays = append(s.plays, by+":"+m.ID)
	return s.err
}

func (s *fakeStore) RandomVideos(ctx context.Context, maxSeconds int, types []string, n int) ([]media.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, n)
	if s.err != nil {
		return nil, s.err
	}
	return s.random[:min(n, len(s.random))], nil
}

func (s *fakeStore) UserBlocked(ctx context.Context, name string) (bool, error) {
	return s.blocked[name], s.err
}

func (s *fakeStore) SetUserBlocked(ctx context.Context, name string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.blocked == nil {
		s.blocked = make(map[string]bool)
	}
	s.blocked[name] = blocked
	return nil
}

type fakeValidator struct {
	st  media.Status
	err error
	n   int
}

func (v *fakeValidator) Validate(ctx context.Context, ref media.Ref) (media.Status, error) {
	v.n++
	return v.st, v.err
}

// recorder is an Emitter that records what it emits.
type recorder struct {
	mu  sync.Mutex
	out []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, s)
}

func (r *recorder) Delete(uid room.UID) { r.add(fmt.Sprintf("delete %d", uid)) }
func (r *recorder) Move(uid room.UID, pos room.Position) {
	r.add(fmt.Sprintf("move %d after %d head=%t", uid, pos.After, pos.Head))
}
func (r *recorder) Queue(ref media.Ref, next, temp bool) { r.add("queue " + ref.String()) }
func (r *recorder) Chat(msg string)                      { r.add("chat " + msg) }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func video(uid room.UID, id, by string) room.Item {
	return room.Item{UID: uid, Media: media.Media{Type: "yt", ID: id, Title: "Video " + id, Seconds: 60}, QueuedBy: by}
}

func TestCheck(t *testing.T) {
	cases := []struct {
		name    string
		item    room.Item
		rank    room.Rank
		flags   store.Flags
		blocked bool
		val     *fakeValidator
		want    moderate.Verdict
		flagged store.Flags
		plays   []string
		checked int
	}{
		{
			name:    "clean",
			item:    video(1, "a", "bocchi"),
			rank:    room.Registered,
			val:     &fakeValidator{st: media.Playable},
			want:    moderate.Verdict{UID: 1},
			flagged: -1,
			plays:   []string{"bocchi:a"},
			checked: 1,
		},
		{
			name:    "blocked video registered",
			item:    video(1, "a", "bocchi"),
			rank:    room.Registered,
			flags:   store.Blocked,
			val:     &fakeValidator{},
			want:    moderate.Verdict{UID: 1, Delete: true, Notice: "Video a is blocked."},
			flagged: -1,
			plays:   []string{"bocchi:a"},
		},
		{
			name:    "blocked video moderator",
			item:    video(1, "a", "nijika"),
			rank:    room.Moderator,
			flags:   store.Blocked,
			val:     &fakeValidator{},
			want:    moderate.Verdict{UID: 1},
			flagged: -1,
			plays:   []string{"nijika:a"},
			checked: 1,
		},
		{
			name:    "blocked user",
			item:    video(1, "a", "kita"),
			rank:    room.Registered,
			blocked: true,
			val:     &fakeValidator{},
			want:    moderate.Verdict{UID: 1, Delete: true},
			flagged: store.Invalid,
			plays:   []string{"kita:a"},
		},
		{
			name:    "not embeddable",
			item:    video(1, "a", "bocchi"),
			rank:    room.Admin,
			val:     &fakeValidator{st: media.Disabled},
			want:    moderate.Verdict{UID: 1, Delete: true, Notice: "Removed Video a: embedding disabled."},
			flagged: store.Invalid,
			plays:   []string{"bocchi:a"},
			checked: 1,
		},
		{
			name:    "validator error",
			item:    video(1, "a", "bocchi"),
			rank:    room.Registered,
			val:     &fakeValidator{st: media.Invalid, err: errors.New("quota")},
			want:    moderate.Verdict{UID: 1},
			flagged: -1,
			plays:   []string{"bocchi:a"},
			checked: 1,
		},
		{
			name:    "no validator",
			item:    video(1, "a", "bocchi"),
			rank:    room.Registered,
			want:    moderate.Verdict{UID: 1},
			flagged: -1,
			plays:   []string{"bocchi:a"},
		},
		{
			name:    "other type",
			item:    room.Item{UID: 1, Media: media.Media{Type: "vi", ID: "9"}, QueuedBy: "bocchi"},
			rank:    room.Registered,
			val:     &fakeValidator{st: media.Invalid},
			want:    moderate.Verdict{UID: 1},
			flagged: -1,
			plays:   []string{"bocchi:9"},
		},
		{
			name:    "self",
			item:    video(1, "a", "Robot"),
			rank:    room.Admin,
			val:     &fakeValidator{st: media.Playable},
			want:    moderate.Verdict{UID: 1},
			flagged: -1,
			checked: 1,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st := &fakeStore{
				flags:   map[media.Ref]store.Flags{c.item.Media.Ref(): c.flags},
				blocked: map[string]bool{c.item.QueuedBy: c.blocked},
			}
			e := moderate.Engine{
				Store: st,
				Emit:  new(recorder),
				Log:   discard(),
				Self:  "robot",
			}
			if c.val != nil {
				e.Validator = c.val
			}
			got := e.Check(context.Background(), c.item, c.rank)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("wrong verdict (-want +got):\n%s", diff)
			}
			f, ok := st.flagged[c.item.Media.Ref()]
			if !ok {
				f = -1
			}
			if f != c.flagged {
				t.Errorf("wrong flag: want %v, got %v", c.flagged, f)
			}
			if diff := cmp.Diff(c.plays, st.plays); diff != "" {
				t.Errorf("wrong plays (-want +got):\n%s", diff)
			}
			if c.val != nil && c.val.n != c.checked {
				t.Errorf("wrong validation count: want %d, got %d", c.checked, c.val.n)
			}
		})
	}
}

func TestCheckStoreErrors(t *testing.T) {
	st := &fakeStore{err: errors.New("disk on fire")}
	e := moderate.Engine{Store: st, Emit: new(recorder), Log: discard(), Self: "robot"}
	got := e.Check(context.Background(), video(3, "a", "bocchi"), room.Guest)
	if got.Delete {
		t.Errorf("store failure deleted item")
	}
}

func TestApply(t *testing.T) {
	var s room.State
	s.LoadPlaylist([]room.Item{video(1, "a", "x"), video(2, "b", "y")})
	rec := new(recorder)
	e := moderate.Engine{Emit: rec, Log: discard()}
	v := moderate.Verdict{UID: 2, Delete: true, Notice: "gone"}
	if !e.Apply(&s, v) {
		t.Errorf("verdict not applied")
	}
	// The item vanished while the check was in flight.
	s.Remove(1)
	if e.Apply(&s, moderate.Verdict{UID: 1, Delete: true, Notice: "nope"}) {
		t.Errorf("verdict applied to vanished item")
	}
	if e.Apply(&s, moderate.Verdict{UID: 2}) {
		t.Errorf("non-delete verdict applied")
	}
	want := []string{"chat gone", "delete 2"}
	if diff := cmp.Diff(want, rec.out); diff != "" {
		t.Errorf("wrong emissions (-want +got):\n%s", diff)
	}
}

func TestChangeMedia(t *testing.T) {
	cases := []struct {
		name   string
		items  []room.Item
		temp   bool
		policy moderate.Policy
		first  bool
		want   []string
	}{
		{
			name:   "deletes previous",
			items:  []room.Item{video(10, "a", "x"), video(11, "b", "x")},
			policy: moderate.Policy{Managing: true, Ready: true},
			want:   []string{"delete 10"},
		},
		{
			name:   "not managing",
			items:  []room.Item{video(10, "a", "x"), video(11, "b", "x")},
			policy: moderate.Policy{Managing: false, Ready: true},
		},
		{
			name:   "in grace",
			items:  []room.Item{video(10, "a", "x"), video(11, "b", "x")},
			policy: moderate.Policy{Managing: true, Ready: false},
		},
		{
			name:   "first change",
			items:  []room.Item{video(10, "a", "x"), video(11, "b", "x")},
			policy: moderate.Policy{Managing: true, Ready: true},
			first:  true,
		},
		{
			name:   "temporary",
			items:  []room.Item{video(10, "a", "x"), video(11, "b", "x")},
			temp:   true,
			policy: moderate.Policy{Managing: true, Ready: true},
		},
		{
			name:   "already deleted",
			items:  []room.Item{video(11, "b", "x")},
			policy: moderate.Policy{Managing: true, Ready: true},
		},
		{
			name:   "empty",
			items:  nil,
			policy: moderate.Policy{Managing: true, Ready: true},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var s room.State
			s.LoadPlaylist(c.items)
			s.SetTemp(10, c.temp)
			rec := new(recorder)
			e := moderate.Engine{Emit: rec, Log: discard()}
			s.Current.SetUID(10)
			if !c.first {
				e.ChangeMedia(&s, media.Media{Type: "yt", ID: "a"}, c.policy)
			}
			s.Current.SetUID(11)
			e.ChangeMedia(&s, media.Media{Type: "yt", ID: "b"}, c.policy)
			if diff := cmp.Diff(c.want, rec.out); diff != "" {
				t.Errorf("wrong emissions (-want +got):\n%s", diff)
			}
			if s.Current.Media.ID != "b" {
				t.Errorf("media not replaced: %+v", s.Current.Media)
			}
		})
	}
}

func TestReplenish(t *testing.T) {
	cases := []struct {
		name   string
		random []media.Media
		err    error
		n      int
		want   []string
	}{
		{
			name:   "enough",
			random: []media.Media{{Type: "yt", ID: "a"}, {Type: "yt", ID: "b"}, {Type: "vi", ID: "c"}},
			n:      2,
			want:   []string{"queue yt:a", "queue yt:b"},
		},
		{
			name:   "fewer",
			random: []media.Media{{Type: "yt", ID: "a"}},
			n:      5,
			want:   []string{"queue yt:a"},
		},
		{
			name: "none",
			n:    5,
		},
		{
			name: "error",
			err:  errors.New("locked"),
			n:    5,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st := &fakeStore{random: c.random, err: c.err}
			rec := new(recorder)
			e := moderate.Engine{Store: st, Emit: rec, Log: discard(), MaxSeconds: 600, Types: []string{"yt"}}
			got := e.Replenish(context.Background(), c.n)
			if got != len(c.want) {
				t.Errorf("wrong count: want %d, got %d", len(c.want), got)
			}
			if diff := cmp.Diff(c.want, rec.out); diff != "" {
				t.Errorf("wrong emissions (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]int{c.n}, st.asked); diff != "" {
				t.Errorf("wrong store requests (-want +got):\n%s", diff)
			}
		})
	}
}

// TestEmptiedPlaylistReplenishes covers the whole path of the last item
// leaving the playlist while managing.
func TestEmptiedPlaylistReplenishes(t *testing.T) {
	var s room.State
	s.LoadPlaylist([]room.Item{video(5, "a", "alice")})
	st := &fakeStore{random: []media.Media{{Type: "yt", ID: "r"}}}
	rec := new(recorder)
	e := moderate.Engine{Store: st, Emit: rec, Log: discard(), Types: []string{"yt"}}
	managing := true
	if _, ok := s.Remove(5); ok && managing && s.Playlist.Len() == 0 {
		e.Replenish(context.Background(), 3)
	}
	if len(st.asked) != 1 {
		t.Errorf("store not asked for random videos")
	}
	if diff := cmp.Diff([]string{"queue yt:r"}, rec.out); diff != "" {
		t.Errorf("wrong emissions (-want +got):\n%s", diff)
	}
}

func TestBlock(t *testing.T) {
	ctx := context.Background()
	m := media.Media{Type: "yt", ID: "a", Title: "A"}
	t.Run("video", func(t *testing.T) {
		st := new(fakeStore)
		rec := new(recorder)
		e := moderate.Engine{Store: st, Emit: rec, Log: discard()}
		if err := e.BlockVideo(ctx, m, []room.UID{3, 7}); err != nil {
			t.Fatal(err)
		}
		if got := st.flagged[m.Ref()]; got != store.Blocked {
			t.Errorf("wrong flags: want %v, got %v", store.Blocked, got)
		}
		if diff := cmp.Diff([]string{"delete 3", "delete 7"}, rec.out); diff != "" {
			t.Errorf("wrong emissions (-want +got):\n%s", diff)
		}
	})
	t.Run("user", func(t *testing.T) {
		st := new(fakeStore)
		rec := new(recorder)
		e := moderate.Engine{Store: st, Emit: rec, Log: discard()}
		if err := e.BlockUser(ctx, "bocchi", []room.UID{2}); err != nil {
			t.Fatal(err)
		}
		if !st.blocked["bocchi"] {
			t.Errorf("user not blocked")
		}
		if diff := cmp.Diff([]string{"delete 2"}, rec.out); diff != "" {
			t.Errorf("wrong emissions (-want +got):\n%s", diff)
		}
	})
	t.Run("error", func(t *testing.T) {
		st := &fakeStore{err: errors.New("no")}
		rec := new(recorder)
		e := moderate.Engine{Store: st, Emit: rec, Log: discard()}
		if err := e.BlockUser(ctx, "bocchi", []room.UID{2}); err == nil {
			t.Errorf("no error")
		}
		if len(rec.out) != 0 {
			t.Errorf("emitted despite failure: %q", rec.out)
		}
	})
}
