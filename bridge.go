package main

import (
	"context"
	"crypto/tls"
	"log"
	"log/slog"
	"strings"
	"time"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/time/rate"

	"github.com/zephyrtronium/cytubebot/message"
	"github.com/zephyrtronium/cytubebot/metrics"
)

// bridge relays chat between the room and a Twitch channel.
type bridge struct {
	log     *slog.Logger
	channel string
	nick    string
	token   string
	rate    *rate.Limiter
	// out holds room messages waiting to be relayed to Twitch.
	out   chan *tmi.Message
	count metrics.Observer
}

func newBridge(log *slog.Logger, cfg TwitchCfg, token string, count metrics.Observer) *bridge {
	r := cfg.Rate
	if r.Num <= 0 {
		r = Rate{Every: 30, Num: 20}
	}
	return &bridge{
		log:     log,
		channel: strings.ToLower(cfg.Channel),
		nick:    strings.ToLower(cfg.Nick),
		token:   strings.TrimPrefix(token, "oauth:"),
		rate:    rate.NewLimiter(rate.Every(fseconds(r.Every)), r.Num),
		out:     make(chan *tmi.Message, 64),
		count:   count,
	}
}

// relay queues a room message for Twitch. Messages are dropped when the
// queue is full.
func (b *bridge) relay(sender, text string) {
	select {
	case b.out <- message.ToTMI(b.channel, sender, text):
	default:
		b.log.Warn("dropped relay", slog.String("sender", sender))
	}
}

func (b *bridge) run(ctx context.Context, robo *Robot) error {
	cfg := tmi.ConnectConfig{
		Dial:         new(tls.Dialer).DialContext,
		RetryWait:    tmi.RetryList(true, 0, time.Second, time.Minute, 5*time.Minute),
		Nick:         b.nick,
		Pass:         "oauth:" + b.token,
		Capabilities: []string{"twitch.tv/commands", "twitch.tv/tags"},
		Timeout:      300 * time.Second,
	}
	send := make(chan *tmi.Message, 1)
	recv := make(chan *tmi.Message, 8) // 8 is enough for on-connect msgs
	go b.loop(ctx, robo, send, recv)
	go b.sender(ctx, send)
	tmi.Connect(ctx, cfg, tmi.Log(log.Default(), false), send, recv)
	return ctx.Err()
}

func (b *bridge) loop(ctx context.Context, robo *Robot, send chan<- *tmi.Message, recv <-chan *tmi.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-recv:
			if !ok {
				return
			}
			switch msg.Command {
			case "PRIVMSG":
				if msg.To() != b.channel {
					continue
				}
				m := message.FromTMI(msg)
				if strings.EqualFold(m.Sender, b.nick) {
					continue
				}
				b.count.Observe(1, "in")
				robo.post(ctx, func(ctx context.Context) error { return robo.bridged(ctx, m) })
			case "GLOBALUSERSTATE":
				b.log.InfoContext(ctx, "connected to TMI", slog.String("GLOBALUSERSTATE", msg.Tags))
			case "366": // End NAMES
				if len(msg.Params) > 1 {
					b.log.InfoContext(ctx, "joined channel", slog.String("channel", msg.Params[1]))
				}
			case "376": // End MOTD
				join := tmi.Message{Command: "JOIN", Params: []string{b.channel}}
				select {
				case <-ctx.Done():
					return
				case send <- &join:
				}
			}
		}
	}
}

// sender relays queued room messages after waiting for the rate limit.
func (b *bridge) sender(ctx context.Context, send chan<- *tmi.Message) {
	for {
		var msg *tmi.Message
		select {
		case <-ctx.Done():
			return
		case msg = <-b.out:
		}
		if err := b.rate.Wait(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case send <- msg:
			b.count.Observe(1, "out")
		}
	}
}
