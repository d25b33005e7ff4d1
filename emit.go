package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zephyrtronium/cytubebot/cytube"
	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/metrics"
	"github.com/zephyrtronium/cytubebot/room"
)

// maxChat is the longest chat message the bot sends in one frame.
// Cytube truncates at 320 characters.
const maxChat = 300

// emitter queues outbound frames for the socket writer. It never blocks.
// Chat is dropped if its queue is full, but room actions (deletes, moves,
// queues, and frames sent with [emitter.Frame]) are always kept and are
// written ahead of any chat waiting on the rate limit.
type emitter struct {
	chat    chan cytube.Frame
	mu      sync.Mutex
	actions []cytube.Frame
	wake    chan struct{}
	muted   atomic.Bool
	flair   atomic.Int64
	rate    *rate.Limiter
	deletes metrics.Observer
	log     *slog.Logger
}

func newEmitter(log *slog.Logger, lim *rate.Limiter, deletes metrics.Observer) *emitter {
	return &emitter{
		chat:    make(chan cytube.Frame, 256),
		wake:    make(chan struct{}, 1),
		rate:    lim,
		deletes: deletes,
		log:     log,
	}
}

// act queues a room action.
func (e *emitter) act(f cytube.Frame) {
	e.mu.Lock()
	e.actions = append(e.actions, f)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// say queues a chat frame, dropping it if the chat queue is full.
func (e *emitter) say(f cytube.Frame) {
	select {
	case e.chat <- f:
	default:
		e.log.Warn("dropped chat", slog.String("event", f.Event))
	}
}

// next takes the oldest queued room action.
func (e *emitter) next() (cytube.Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.actions) == 0 {
		return cytube.Frame{}, false
	}
	f := e.actions[0]
	e.actions[0] = cytube.Frame{}
	e.actions = e.actions[1:]
	return f, true
}

func (e *emitter) Delete(uid room.UID) {
	if e.deletes != nil {
		e.deletes.Observe(1)
	}
	e.act(cytube.DeleteItem(uid))
}

func (e *emitter) Move(uid room.UID, pos room.Position) {
	e.act(cytube.MoveMedia(uid, pos))
}

func (e *emitter) Queue(ref media.Ref, next, temp bool) {
	e.act(cytube.QueueMedia(ref, next, temp))
}

func (e *emitter) Chat(msg string) {
	e.Message(message.Sent{Text: msg})
}

// Message sends a chat message, or a private message if m.To is set.
// Long messages are split.
func (e *emitter) Message(m message.Sent) {
	if e.muted.Load() {
		e.log.Debug("muted", slog.String("text", m.Text))
		return
	}
	meta := cytube.ChatMeta{}
	if r := room.Rank(e.flair.Load()); r >= room.Moderator {
		meta.ModFlair = r
	}
	for _, s := range message.Split(m.Text, maxChat) {
		if m.To != "" {
			e.say(cytube.PrivateMessage(m.To, s))
			continue
		}
		e.say(cytube.Chat(s, meta))
	}
}

// Frame queues a room action. Room commands sent as chat, like kicks, go
// through here so they are never dropped or muted.
func (e *emitter) Frame(f cytube.Frame) {
	e.act(f)
}

func (e *emitter) Mute(muted bool) {
	e.muted.Store(muted)
}

// setRank records the bot's own rank for the moderator flair on chat.
func (e *emitter) setRank(r room.Rank) {
	e.flair.Store(int64(r))
}

// drain discards queued frames, as on reconnecting.
func (e *emitter) drain() {
	e.mu.Lock()
	e.actions = nil
	e.mu.Unlock()
	for {
		select {
		case <-e.chat:
		case <-e.wake:
		default:
			return
		}
	}
}

// sender is the socket side of the emitter.
type sender interface {
	Send(ctx context.Context, f cytube.Frame) error
}

// write sends queued frames to conn until ctx is done or sending fails.
// Chat frames wait for the chat rate limit. Room actions queued while chat
// waits are sent without waiting.
func (e *emitter) write(ctx context.Context, conn sender) error {
	for {
		if err := e.flush(ctx, conn); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.wake:
		case f := <-e.chat:
			if err := e.wait(ctx, conn); err != nil {
				return err
			}
			if err := conn.Send(ctx, f); err != nil {
				return err
			}
		}
	}
}

// flush sends all queued room actions.
func (e *emitter) flush(ctx context.Context, conn sender) error {
	for {
		f, ok := e.next()
		if !ok {
			return nil
		}
		if isChat(f) {
			// Room commands count against the chat limit.
			if err := e.rate.Wait(ctx); err != nil {
				return err
			}
		}
		if err := conn.Send(ctx, f); err != nil {
			return err
		}
	}
}

// wait waits for the chat rate limit, sending room actions in the meantime.
func (e *emitter) wait(ctx context.Context, conn sender) error {
	r := e.rate.Reserve()
	if !r.OK() {
		return errors.New("chat rate limit has no burst")
	}
	d := r.Delay()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		case <-t.C:
			return nil
		case <-e.wake:
			if err := e.flush(ctx, conn); err != nil {
				return err
			}
		}
	}
}

func isChat(f cytube.Frame) bool {
	return f.Event == "chatMsg" || f.Event == "pm"
}
