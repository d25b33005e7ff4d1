package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Load loads the bot configuration from TOML.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	if cfg.Cytube.Server == "" {
		cfg.Cytube.Server = "https://cytu.be"
	}
	if cfg.Bot.Sigil == "" {
		cfg.Bot.Sigil = "$"
	}
	if len(cfg.Bot.Types) == 0 {
		cfg.Bot.Types = []string{"yt"}
	}
	return &cfg, &md, nil
}

// loadDBs opens the store and settings databases.
func loadDBs(ctx context.Context, cfg DBCfg) (sql *sqlitex.Pool, kv *badger.DB, err error) {
	if cfg.Store == "" {
		return nil, nil, fmt.Errorf("no store database configured")
	}
	if cfg.Settings == "" {
		return nil, nil, fmt.Errorf("no settings database configured")
	}
	slog.DebugContext(ctx, "store db", slog.String("path", cfg.Store))
	sql, err = sqlitex.NewPool(cfg.Store, sqlitex.PoolOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open store db: %w", err)
	}
	slog.DebugContext(ctx, "settings db", slog.String("path", cfg.Settings), slog.String("flags", cfg.SettingsFlag))
	opts := badger.DefaultOptions(cfg.Settings)
	opts = opts.WithLogger(nil)
	opts = opts.WithCompression(options.None)
	opts = opts.WithBloomFalsePositive(0)
	kv, err = badger.Open(opts.FromSuperFlag(cfg.SettingsFlag))
	if err != nil {
		sql.Close()
		return nil, nil, fmt.Errorf("couldn't open settings db: %w", err)
	}
	return sql, kv, nil
}

// readSecret reads a secret from a file, trimming surrounding whitespace.
// An empty path gives an empty secret.
func readSecret(file string) (string, error) {
	if file == "" {
		return "", nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("couldn't read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Config is the marshaled structure of the bot's configuration.
type Config struct {
	// Cytube is the room connection configuration.
	Cytube CytubeCfg `toml:"cytube"`
	// Bot is the behavior configuration.
	Bot BotCfg `toml:"bot"`
	// DB is the table of database connection strings.
	DB DBCfg `toml:"db"`
	// Limits is the set of command rate limits. Each key names a family of
	// commands sharing a limit.
	Limits map[string]Rate `toml:"limits"`
	// YouTube is the configuration for validating YouTube videos.
	YouTube YouTubeCfg `toml:"youtube"`
	// HTTP is the configuration for the operator API.
	HTTP HTTPCfg `toml:"http"`
	// Twitch is the configuration for the Twitch chat bridge.
	// The bridge is disabled when the table is absent.
	Twitch TwitchCfg `toml:"twitch"`
}

// CytubeCfg is the configuration for connecting to a room.
type CytubeCfg struct {
	// Server is the base URL of the Cytube server.
	Server string `toml:"server"`
	// Channel is the room to join.
	Channel string `toml:"channel"`
	// ChannelPasswordFile is the path to a file containing the room password,
	// if the room has one.
	ChannelPasswordFile string `toml:"channel_password"`
	// User is the account name to log in as.
	User string `toml:"user"`
	// PasswordFile is the path to a file containing the account password.
	PasswordFile string `toml:"password"`
	// Rate is the rate limit for chat messages.
	Rate Rate `toml:"rate"`
	// Retry is the list of waits in seconds between reconnect attempts.
	// The last wait repeats.
	Retry []float64 `toml:"retry"`
}

// BotCfg is the configuration of bot behavior.
type BotCfg struct {
	// Sigil is the prefix for commands.
	Sigil string `toml:"sigil"`
	// Grace is the time in seconds after joining before the bot manages the
	// playlist.
	Grace float64 `toml:"grace"`
	// MaxSeconds is the longest video replenishment may choose.
	MaxSeconds int `toml:"max_seconds"`
	// Types is the list of media types replenishment may choose.
	Types []string `toml:"types"`
	// Replenish is the number of videos to add when the playlist runs dry.
	Replenish int `toml:"replenish"`
}

// DBCfg is the configuration of databases.
type DBCfg struct {
	// Store is the SQLite DSN of the moderation and statistics store.
	Store string `toml:"store"`
	// Settings is the path of the Badger database holding settings.
	Settings string `toml:"settings"`
	// SettingsFlag is a Badger superflag applied to the settings database.
	SettingsFlag string `toml:"settings_flag"`
}

// YouTubeCfg is the configuration of the YouTube validator.
type YouTubeCfg struct {
	// KeyFile is the path to a file containing a YouTube Data API key.
	// Validation is disabled if it is empty.
	KeyFile string `toml:"key"`
	// Country is the ISO 3166 code whose region restrictions apply.
	Country string `toml:"country"`
}

// HTTPCfg is the configuration of the operator API.
type HTTPCfg struct {
	Listen string `toml:"listen"`
}

// TwitchCfg is the configuration of the Twitch chat bridge.
type TwitchCfg struct {
	// Channel is the Twitch channel to bridge, including the leading #.
	Channel string `toml:"channel"`
	// Nick is the bot's Twitch login.
	Nick string `toml:"nick"`
	// TokenFile is the path to a file containing a chat OAuth token.
	TokenFile string `toml:"token"`
	// Rate is the rate limit for relayed messages.
	Rate Rate `toml:"rate"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.Cytube.Server,
		&cfg.Cytube.Channel,
		&cfg.Cytube.ChannelPasswordFile,
		&cfg.Cytube.User,
		&cfg.Cytube.PasswordFile,
		&cfg.DB.Store,
		&cfg.DB.Settings,
		&cfg.DB.SettingsFlag,
		&cfg.YouTube.KeyFile,
		&cfg.HTTP.Listen,
		&cfg.Twitch.Channel,
		&cfg.Twitch.Nick,
		&cfg.Twitch.TokenFile,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
}
