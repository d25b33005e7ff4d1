// Package moderate decides which playlist items must be removed and keeps
// the playlist stocked.
package moderate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/room"
	"github.com/zephyrtronium/cytubebot/store"
)

// Store is the moderation store the engine consults.
type Store interface {
	VideoFlags(ctx context.Context, ref media.Ref) (store.Flags, error)
	FlagVideo(ctx context.Context, m media.Media, flags store.Flags) error
	InsertVideo(ctx context.Context, m media.Media, by string, at time.Time) error
	RandomVideos(ctx context.Context, maxSeconds int, types []string, n int) ([]media.Media, error)
	UserBlocked(ctx context.Context, name string) (bool, error)
	SetUserBlocked(ctx context.Context, name string, blocked bool) error
}

// Validator checks media with its provider.
type Validator interface {
	Validate(ctx context.Context, ref media.Ref) (media.Status, error)
}

// Emitter sends actions to the room. Emission is fire-and-forget.
// Implementations must be safe for concurrent use.
type Emitter interface {
	Delete(uid room.UID)
	Move(uid room.UID, pos room.Position)
	Queue(ref media.Ref, next, temp bool)
	Chat(msg string)
}

// Engine applies moderation policy.
type Engine struct {
	Store Store
	// Validator checks YouTube media. If nil, validation is skipped.
	Validator Validator
	Emit      Emitter
	Log       *slog.Logger
	// Self is the bot's name. Items the bot queues are not recorded.
	Self string
	// MaxSeconds is the longest media replenishment may choose.
	MaxSeconds int
	// Types lists media types replenishment may choose.
	Types []string
}

// Verdict is the outcome of checking an item.
type Verdict struct {
	UID room.UID
	// Delete indicates the item must be removed.
	Delete bool
	// Notice is a chat message to send if the item is removed.
	Notice string
}

// Check evaluates a newly observed item queued by a user of the given rank.
// It performs store and validator lookups and so should run outside the
// goroutine that owns the room. The result must be applied with
// [Engine.Apply].
//
// Errors from the store or validator are logged and leave the item in place.
func (e *Engine) Check(ctx context.Context, it room.Item, rank room.Rank) Verdict {
	log := e.Log.With(slog.Int64("uid", int64(it.UID)), slog.String("media", it.Media.Ref().String()), slog.String("by", it.QueuedBy))
	v := Verdict{UID: it.UID}
	e.Record(ctx, it)

	flags, err := e.Store.VideoFlags(ctx, it.Media.Ref())
	if err != nil {
		log.ErrorContext(ctx, "couldn't get video flags", slog.Any("err", err))
	}
	if flags == store.Blocked && rank < room.Moderator {
		log.InfoContext(ctx, "blocked video")
		v.Delete = true
		v.Notice = fmt.Sprintf("%s is blocked.", title(it.Media))
		return v
	}

	blocked, err := e.Store.UserBlocked(ctx, it.QueuedBy)
	if err != nil {
		log.ErrorContext(ctx, "couldn't check user block", slog.Any("err", err))
	}
	if blocked {
		log.InfoContext(ctx, "blocked user")
		if err := e.Store.FlagVideo(ctx, it.Media, store.Invalid); err != nil {
			log.ErrorContext(ctx, "couldn't flag video", slog.Any("err", err))
		}
		v.Delete = true
		return v
	}

	if it.Media.Type != "yt" || e.Validator == nil {
		return v
	}
	st, err := e.Validator.Validate(ctx, it.Media.Ref())
	if err != nil {
		log.WarnContext(ctx, "couldn't validate video", slog.Any("err", err))
		return v
	}
	if st == media.Playable {
		return v
	}
	log.InfoContext(ctx, "invalid video", slog.String("status", st.String()))
	if err := e.Store.FlagVideo(ctx, it.Media, store.Invalid); err != nil {
		log.ErrorContext(ctx, "couldn't flag video", slog.Any("err", err))
	}
	v.Delete = true
	v.Notice = fmt.Sprintf("Removed %s: %s.", title(it.Media), st)
	return v
}

// Record records a play of an item for stats. Items the bot queued are not
// recorded. Like [Engine.Check], it should run outside the goroutine that
// owns the room.
func (e *Engine) Record(ctx context.Context, it room.Item) {
	if it.QueuedBy == "" || room.SameName(it.QueuedBy, e.Self) {
		return
	}
	if err := e.Store.InsertVideo(ctx, it.Media, it.QueuedBy, time.Now()); err != nil {
		e.Log.ErrorContext(ctx, "couldn't record play", slog.Int64("uid", int64(it.UID)), slog.String("by", it.QueuedBy), slog.Any("err", err))
	}
}

// Apply carries out a verdict against the current room state. The item may
// have been removed since it was checked, in which case nothing happens.
// The result reports whether a delete was emitted.
func (e *Engine) Apply(s *room.State, v Verdict) bool {
	if !v.Delete {
		return false
	}
	if _, ok := s.Playlist.Find(v.UID); !ok {
		e.Log.Debug("verdict for vanished item", slog.Int64("uid", int64(v.UID)))
		return false
	}
	if v.Notice != "" {
		e.Emit.Chat(v.Notice)
	}
	e.Emit.Delete(v.UID)
	return true
}

// Policy is the state of playlist management at a media change.
type Policy struct {
	// Managing enables removing finished items.
	Managing bool
	// Ready is false during the grace period after joining.
	Ready bool
}

// ChangeMedia records new media. When managing, it removes the item that
// just finished unless it was temporary. The finished item may already be
// gone if its delete raced ahead of the change; that is not an error.
// The result reports whether a delete was emitted.
func (e *Engine) ChangeMedia(s *room.State, m media.Media, p Policy) bool {
	first := s.Current.Change(m)
	if !p.Managing || !p.Ready || first || s.Playlist.Len() == 0 {
		return false
	}
	prev := s.Current.Prev
	if prev == s.Current.UID {
		return false
	}
	it, ok := s.Playlist.Find(prev)
	if !ok {
		e.Log.Debug("finished item already gone", slog.Int64("uid", int64(prev)))
		return false
	}
	if it.Temp {
		return false
	}
	e.Emit.Delete(prev)
	return true
}

// Replenish queues up to n random videos from the store. The result is the
// number queued, which may be fewer than n or zero.
func (e *Engine) Replenish(ctx context.Context, n int) int {
	vids, err := e.Store.RandomVideos(ctx, e.MaxSeconds, e.Types, n)
	if err != nil {
		e.Log.ErrorContext(ctx, "couldn't get random videos", slog.Any("err", err))
		return 0
	}
	for _, v := range vids {
		e.Emit.Queue(v.Ref(), false, false)
	}
	e.Log.InfoContext(ctx, "replenished", slog.Int("want", n), slog.Int("got", len(vids)))
	return len(vids)
}

// BlockVideo flags a video as blocked and deletes the given instances of it.
// The UIDs must be collected from the room before calling, since BlockVideo
// may run outside the goroutine that owns it. Deletes of items that have
// since vanished are harmless.
func (e *Engine) BlockVideo(ctx context.Context, m media.Media, uids []room.UID) error {
	if err := e.Store.FlagVideo(ctx, m, store.Blocked); err != nil {
		return err
	}
	for _, uid := range uids {
		e.Emit.Delete(uid)
	}
	return nil
}

// BlockUser blocks a user and deletes the given items they queued.
func (e *Engine) BlockUser(ctx context.Context, name string, uids []room.UID) error {
	if err := e.Store.SetUserBlocked(ctx, name, true); err != nil {
		return err
	}
	for _, uid := range uids {
		e.Emit.Delete(uid)
	}
	return nil
}

func title(m media.Media) string {
	if m.Title != "" {
		return m.Title
	}
	return m.Ref().Link()
}
