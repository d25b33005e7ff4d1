package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zephyrtronium/cytubebot/command"
	"github.com/zephyrtronium/cytubebot/cytube"
	"github.com/zephyrtronium/cytubebot/metrics"
	"github.com/zephyrtronium/cytubebot/moderate"
	"github.com/zephyrtronium/cytubebot/pending"
	"github.com/zephyrtronium/cytubebot/room"
	"github.com/zephyrtronium/cytubebot/settings"
	"github.com/zephyrtronium/cytubebot/store"
	"github.com/zephyrtronium/cytubebot/youtube"
)

// errFatal marks errors that end the bot instead of causing a reconnect.
var errFatal = errors.New("fatal")

// errDiscover marks failures to find the socket server.
var errDiscover = errors.New("couldn't discover socket server")

// Robot is the bot. The loop goroutine owns room, settings, ready, and
// pending; everything else reaches them by posting to tasks.
type Robot struct {
	log *slog.Logger

	// server is the Cytube base URL.
	server string
	// channel is the room name.
	channel string
	// name and password are the login credentials.
	name     string
	password string
	// channelPassword answers the room password challenge.
	channelPassword string
	// retry is the reconnect schedule.
	retry []time.Duration
	// grace is the time after login before the bot manages the playlist.
	grace time.Duration
	// replenish is the number of videos to add when the playlist runs dry.
	replenish int
	// client is used for socket discovery.
	client *http.Client

	room     room.State
	settings *settings.Settings
	ready    bool
	// session counts connections so that timers from an old one are ignored.
	session int
	pending pending.Queue

	kv      *badger.DB
	store   *store.Store
	engine  *moderate.Engine
	cmd     *command.Robot
	emit    *emitter
	bridge  *bridge
	metrics *metrics.Metrics

	// tasks is work to run on the loop goroutine.
	tasks chan func(context.Context) error
	// works is the pool of idle workers for async work.
	works chan chan func(context.Context)
}

// Secrets are the credentials loaded from files named in the config.
type Secrets struct {
	Password        string
	ChannelPassword string
	YouTubeKey      string
	TwitchToken     string
}

// New creates a bot from its configuration. The databases must remain open
// for the lifetime of the bot.
func New(log *slog.Logger, cfg *Config, secrets Secrets, kv *badger.DB, st *store.Store, m *metrics.Metrics) (*Robot, error) {
	set, err := settings.Load(kv)
	if err != nil {
		return nil, fmt.Errorf("couldn't load settings: %w", err)
	}
	retry := make([]time.Duration, 0, len(cfg.Cytube.Retry))
	for _, s := range cfg.Cytube.Retry {
		retry = append(retry, fseconds(s))
	}
	if len(retry) == 0 {
		retry = []time.Duration{0, time.Second, 10 * time.Second, time.Minute}
	}
	chat := cfg.Cytube.Rate
	if chat.Num <= 0 {
		chat = Rate{Every: 1, Num: 3}
	}
	robo := &Robot{
		log:             log,
		server:          cfg.Cytube.Server,
		channel:         cfg.Cytube.Channel,
		name:            cfg.Cytube.User,
		password:        secrets.Password,
		channelPassword: secrets.ChannelPassword,
		retry:           retry,
		grace:           fseconds(cfg.Bot.Grace),
		replenish:       cfg.Bot.Replenish,
		client:          &http.Client{Timeout: 30 * time.Second},
		settings:        set,
		kv:              kv,
		store:           st,
		metrics:         m,
		tasks:           make(chan func(context.Context) error, 64),
		works:           make(chan chan func(context.Context), runtime.GOMAXPROCS(0)),
	}
	robo.room.Self = robo.name
	robo.room.Limit = set.UserLimit.Limit()
	robo.emit = newEmitter(log.With(slog.String("component", "emit")), rate.NewLimiter(rate.Every(fseconds(chat.Every)), chat.Num), m.DeleteCount)
	robo.emit.Mute(set.Muted)
	robo.engine = &moderate.Engine{
		Store:      st,
		Emit:       robo.emit,
		Log:        log.With(slog.String("component", "moderate")),
		Self:       robo.name,
		MaxSeconds: cfg.Bot.MaxSeconds,
		Types:      cfg.Bot.Types,
	}
	if secrets.YouTubeKey != "" {
		robo.engine.Validator = &youtube.Client{
			HTTP:    &http.Client{Timeout: 10 * time.Second},
			Key:     secrets.YouTubeKey,
			Country: cfg.YouTube.Country,
		}
	}
	limits := command.NewLimits()
	for family, r := range cfg.Limits {
		limits.Set(family, fseconds(r.Every), r.Num)
	}
	robo.cmd = &command.Robot{
		Log:          log.With(slog.String("component", "command")),
		Name:         robo.name,
		Sigil:        cfg.Bot.Sigil,
		Commands:     command.Table(),
		Start:        time.Now(),
		Room:         &robo.room,
		Settings:     robo.settings,
		SaveSettings: robo.saveSettings,
		Store:        st,
		Engine:       robo.engine,
		Emit:         robo.emit,
		Pending:      &robo.pending,
		Limits:       limits,
		Invoked:      m.CommandCount,
		Replenish:    robo.replenish,
	}
	if cfg.Twitch.Channel != "" {
		robo.bridge = newBridge(log.With(slog.String("component", "bridge")), cfg.Twitch, secrets.TwitchToken, m.BridgeMsgCount)
	}
	return robo, nil
}

func (robo *Robot) saveSettings(s *settings.Settings) error {
	robo.room.Limit = s.UserLimit.Limit()
	return settings.Save(robo.kv, s)
}

// Run runs the bot until ctx is canceled or a fatal error occurs.
func (robo *Robot) Run(ctx context.Context, listen string) error {
	group, ctx := errgroup.WithContext(ctx)
	robo.cmd.Async = func(work func(context.Context) func()) { robo.async(ctx, work) }
	robo.cmd.After = func(d time.Duration, f func()) { robo.after(ctx, d, f) }
	if listen != "" {
		group.Go(func() error { return robo.api(ctx, listen) })
	}
	group.Go(func() error { return robo.cytube(ctx) })
	if robo.bridge != nil {
		group.Go(func() error { return robo.bridge.run(ctx, robo) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		// If the first error is context canceled, then we are shutting down
		// normally in response to a sigint.
		err = nil
	}
	return err
}

// cytube connects to the room and reconnects on failure until ctx is done or
// a fatal error occurs.
func (robo *Robot) cytube(ctx context.Context) error {
	attempt := 0
	for {
		start := time.Now()
		err := robo.connect(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case isFatal(err):
			robo.log.ErrorContext(ctx, "fatal room error", slog.Any("err", err))
			return err
		case errors.Is(err, errDiscover) && attempt >= len(robo.retry)-1:
			return fmt.Errorf("%w: %w", errFatal, err)
		}
		if time.Since(start) > 5*time.Minute {
			// The connection was healthy for a while, so start the schedule over.
			attempt = 0
		}
		wait := robo.retry[min(attempt, len(robo.retry)-1)]
		attempt++
		robo.log.WarnContext(ctx, "disconnected from room", slog.Any("err", err), slog.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func isFatal(err error) bool {
	return errors.Is(err, errFatal) || errors.Is(err, command.ErrFatal)
}

// connect runs one connection to the room.
func (robo *Robot) connect(ctx context.Context) error {
	robo.metrics.ConnectCount.Observe(1)
	srv, err := cytube.Discover(ctx, robo.client, robo.server, robo.channel)
	if err != nil {
		return fmt.Errorf("%w: %w", errDiscover, err)
	}
	conn, err := cytube.Dial(ctx, srv, robo.log.With(slog.String("component", "socket")))
	if err != nil {
		return err
	}
	defer conn.CloseNow()
	robo.log.InfoContext(ctx, "connected", slog.String("server", srv), slog.String("channel", robo.channel))

	// No loop is running, so the room state is ours to reset.
	robo.room.Reset()
	robo.ready = false
	robo.session++
	robo.pending = pending.Queue{}
	robo.emit.drain()
	robo.emit.Frame(cytube.JoinChannel(robo.channel))
	robo.emit.Frame(cytube.LoginAs(robo.name, robo.password))

	group, ctx := errgroup.WithContext(ctx)
	events := make(chan cytube.Event, 64)
	group.Go(func() error { return read(ctx, conn, events) })
	group.Go(func() error { return robo.emit.write(ctx, conn) })
	group.Go(func() error { return robo.loop(ctx, events) })
	return group.Wait()
}

func read(ctx context.Context, conn *cytube.Conn, events chan<- cytube.Event) error {
	for {
		ev, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- ev:
		}
	}
}

// loop handles events and tasks one at a time.
func (robo *Robot) loop(ctx context.Context, events <-chan cytube.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			robo.metrics.EventCount.Observe(1, ev.EventName())
			if err := robo.handle(ctx, ev); err != nil {
				return err
			}
		case task := <-robo.tasks:
			if err := task(ctx); err != nil {
				return err
			}
		}
	}
}

// post sends a task to the loop. It must not be called from the loop.
func (robo *Robot) post(ctx context.Context, task func(context.Context) error) {
	select {
	case <-ctx.Done():
	case robo.tasks <- task:
	}
}

// async runs work in a worker. If work returns a function, it is posted to
// the loop.
func (robo *Robot) async(ctx context.Context, work func(context.Context) func()) {
	robo.enqueue(ctx, func(ctx context.Context) {
		apply := work(ctx)
		if apply == nil {
			return
		}
		robo.post(ctx, func(context.Context) error {
			apply()
			return nil
		})
	})
}

// after runs f on the loop once d elapses.
func (robo *Robot) after(ctx context.Context, d time.Duration, f func()) {
	time.AfterFunc(d, func() {
		robo.post(ctx, func(context.Context) error {
			f()
			return nil
		})
	})
}

func (robo *Robot) enqueue(ctx context.Context, work func(context.Context)) {
	var w chan func(context.Context)
	// Get a worker if one exists. Otherwise, spawn a new one.
	select {
	case w = <-robo.works:
	default:
		w = make(chan func(context.Context), 1)
		go worker(ctx, robo.works, w)
	}
	// Send it work.
	select {
	case <-ctx.Done():
		return
	case w <- work:
	}
}

// worker runs works for a while. The provided context is passed to each work.
func worker(ctx context.Context, works chan chan func(context.Context), ch chan func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-ch:
			work(ctx)
			// Replace ourselves in the pool if it needs additional capacity.
			// Otherwise, we're done.
			select {
			case works <- ch:
			default:
				return
			}
		}
	}
}
