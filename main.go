package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/zephyrtronium/cytubebot/metrics"
	"github.com/zephyrtronium/cytubebot/settings"
	"github.com/zephyrtronium/cytubebot/store"
)

var app = cli.Command{
	Name:  "cytubebot",
	Usage: "Cytube moderation and playlist bot",

	Flags: []cli.Flag{
		&flagConfig,
		&flagLog,
		&flagLogFormat,
	},
	Commands: []*cli.Command{
		{
			Name:   "init",
			Usage:  "Create database schemas without connecting",
			Action: cliInit,
		},
		{
			Name:  "settings",
			Usage: "Print the stored settings",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "managing",
					Usage: "Set whether the bot manages the playlist before printing",
				},
			},
			Action: cliSettings,
		},
	},
	Action: cliRun,

	Authors: []any{
		"Branden J Brown  @zephyrtronium",
	},
	Copyright: "Copyright 2024 Branden J Brown",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(ctx context.Context, cmd *cli.Command) (*Config, error) {
	r, err := os.Open(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	defer r.Close()
	cfg, _, err := Load(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("couldn't load config: %w", err)
	}
	return cfg, nil
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	log := loggerFromFlags(cmd)
	slog.SetDefault(log)
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	if cfg.Cytube.Channel == "" || cfg.Cytube.User == "" {
		return errors.New("config needs cytube.channel and cytube.user")
	}
	var secrets Secrets
	files := []struct {
		dst  *string
		file string
	}{
		{&secrets.Password, cfg.Cytube.PasswordFile},
		{&secrets.ChannelPassword, cfg.Cytube.ChannelPasswordFile},
		{&secrets.YouTubeKey, cfg.YouTube.KeyFile},
		{&secrets.TwitchToken, cfg.Twitch.TokenFile},
	}
	for _, f := range files {
		*f.dst, err = readSecret(f.file)
		if err != nil {
			return err
		}
	}
	sql, kv, err := loadDBs(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer kv.Close()
	st, err := store.Open(ctx, sql)
	if err != nil {
		sql.Close()
		return fmt.Errorf("couldn't open store: %w", err)
	}
	defer st.Close()
	robo, err := New(log, cfg, secrets, kv, st, newMetrics())
	if err != nil {
		return err
	}
	return robo.Run(ctx, cfg.HTTP.Listen)
}

func cliInit(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	sql, kv, err := loadDBs(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer sql.Close()
	defer kv.Close()
	if err := store.Init(ctx, sql); err != nil {
		return err
	}
	s, err := settings.Load(kv)
	if err != nil {
		return fmt.Errorf("couldn't load settings: %w", err)
	}
	if err := settings.Save(kv, s); err != nil {
		return fmt.Errorf("couldn't save settings: %w", err)
	}
	slog.InfoContext(ctx, "initialized", slog.String("store", cfg.DB.Store), slog.String("settings", cfg.DB.Settings))
	return nil
}

func cliSettings(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	sql, kv, err := loadDBs(ctx, cfg.DB)
	if err != nil {
		return err
	}
	sql.Close()
	defer kv.Close()
	s, err := settings.Load(kv)
	if err != nil {
		return fmt.Errorf("couldn't load settings: %w", err)
	}
	if cmd.IsSet("managing") {
		s.Managing = cmd.Bool("managing")
		if err := settings.Save(kv, s); err != nil {
			return fmt.Errorf("couldn't save settings: %w", err)
		}
	}
	fmt.Printf("managing: %t\nmuted: %t\nuser limit: %t, %d\n", s.Managing, s.Muted, s.UserLimit.Enabled, s.UserLimit.Num)
	for name, grant := range s.Perms {
		fmt.Printf("permissions: %s %s\n", name, grant)
	}
	return nil
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Required:   true,
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}

// metrics configuration
func newMetrics() *metrics.Metrics {
	return &metrics.Metrics{
		EventCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "cytubebot",
					Subsystem: "room",
					Name:      "events",
					Help:      "Number of events received from the room.",
				},
				[]string{"event"},
			),
		),
		CommandCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "cytubebot",
					Subsystem: "commands",
					Name:      "invocations",
					Help:      "Number of permitted command invocations.",
				},
				[]string{"command"},
			),
		),
		DeleteCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "cytubebot",
					Subsystem: "playlist",
					Name:      "deletes",
					Help:      "Number of playlist deletes sent.",
				},
			),
		),
		CheckLatency: metrics.NewPromObserverVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 5, 10},
					Namespace: "cytubebot",
					Subsystem: "playlist",
					Name:      "check_latency",
					Help:      "How long it takes to check a newly queued item in seconds",
				},
				[]string{"deleted"},
			),
		),
		ReplenishCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "cytubebot",
					Subsystem: "playlist",
					Name:      "replenished",
					Help:      "Number of random videos queued to refill the playlist.",
				},
			),
		),
		BridgeMsgCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "cytubebot",
					Subsystem: "bridge",
					Name:      "messages",
					Help:      "Number of messages relayed through the Twitch bridge.",
				},
				[]string{"direction"},
			),
		),
		ConnectCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "cytubebot",
					Subsystem: "room",
					Name:      "connects",
					Help:      "Number of attempts to connect to the room.",
				},
			),
		),
	}
}
