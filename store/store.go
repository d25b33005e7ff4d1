// Package store persists moderation records and room statistics in SQLite.
package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/cytubebot/media"
	"github.com/zephyrtronium/cytubebot/room"
)

// Flags are moderation flags on a video.
type Flags int64

const (
	// Clean videos may be played by anyone.
	Clean Flags = 0
	// Invalid videos are unplayable or blacklisted. They are never chosen
	// for random replenishment.
	Invalid Flags = 1
	// Blocked videos may be queued only by moderators.
	Blocked Flags = 2
)

// Store is a moderation and statistics store backed by an SQLite database.
type Store struct {
	db *sqlitex.Pool
}

//go:embed schema.sql
var schemaSQL string

// Init creates the store's tables if they do not exist.
// For convenience, it accepts either a single connection or a pool.
func Init[DB *sqlite.Conn | *sqlitex.Pool](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get connection from pool: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't create store schema: %w", err)
	}
	return nil
}

// Open returns a store within the given database, creating its tables if
// needed. The db must remain open for the lifetime of the store.
func Open(ctx context.Context, db *sqlitex.Pool) (*Store, error) {
	if err := Init(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// VideoFlags returns the flags on a video. Unknown videos are clean.
func (s *Store) VideoFlags(ctx context.Context, ref media.Ref) (Flags, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get connection to read video flags: %w", err)
	}
	var f Flags
	opts := sqlitex.ExecOptions{
		Args: []any{ref.Type, ref.ID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			f = Flags(stmt.ColumnInt64(0))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, `SELECT flags FROM videos WHERE type=? AND id=?`, &opts); err != nil {
		return 0, fmt.Errorf("couldn't read video flags: %w", err)
	}
	return f, nil
}

// FlagVideo sets the flags on a video, recording it if it is new.
func (s *Store) FlagVideo(ctx context.Context, m media.Media, flags Flags) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to flag video: %w", err)
	}
	const q = `INSERT INTO videos (type, id, title, duration, flags) VALUES (:type, :id, :title, :duration, :flags)
		ON CONFLICT (type, id) DO UPDATE SET flags=excluded.flags`
	opts := sqlitex.ExecOptions{
		Named: map[string]any{
			":type":     m.Type,
			":id":       m.ID,
			":title":    m.Title,
			":duration": m.Seconds,
			":flags":    int64(flags),
		},
	}
	if err := sqlitex.Execute(conn, q, &opts); err != nil {
		return fmt.Errorf("couldn't flag video: %w", err)
	}
	return nil
}

// InsertVideo records that a user queued a video.
// Existing flags on the video are unchanged.
func (s *Store) InsertVideo(ctx context.Context, m media.Media, by string, at time.Time) (err error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to record video: %w", err)
	}
	defer sqlitex.Transaction(conn)(&err)
	const video = `INSERT INTO videos (type, id, title, duration) VALUES (:type, :id, :title, :duration)
		ON CONFLICT (type, id) DO UPDATE SET title=excluded.title, duration=excluded.duration`
	opts := sqlitex.ExecOptions{
		Named: map[string]any{
			":type":     m.Type,
			":id":       m.ID,
			":title":    m.Title,
			":duration": m.Seconds,
		},
	}
	if err := sqlitex.Execute(conn, video, &opts); err != nil {
		return fmt.Errorf("couldn't record video: %w", err)
	}
	const play = `INSERT INTO plays (type, id, user, time) VALUES (:type, :id, :user, :time)`
	opts = sqlitex.ExecOptions{
		Named: map[string]any{
			":type": m.Type,
			":id":   m.ID,
			":user": by,
			":time": at.UnixMilli(),
		},
	}
	if err := sqlitex.Execute(conn, play, &opts); err != nil {
		return fmt.Errorf("couldn't record play: %w", err)
	}
	return nil
}

// RandomVideos returns up to n clean videos chosen at random with durations
// no longer than maxSeconds and types among those given. A nonpositive
// maxSeconds allows any duration. Live media with unknown duration are
// never chosen. Fewer than n results is not an error.
func (s *Store) RandomVideos(ctx context.Context, maxSeconds int, types []string, n int) ([]media.Media, error) {
	if n <= 0 || len(types) == 0 {
		return nil, nil
	}
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to pick random videos: %w", err)
	}
	tj, err := json.Marshal(types)
	if err != nil {
		// Should be impossible.
		panic(fmt.Errorf("store: couldn't marshal types %#v: %w", types, err))
	}
	const q = `SELECT type, id, title, duration FROM videos
		WHERE flags = 0
			AND duration > 0
			AND (:max <= 0 OR duration <= :max)
			AND type IN (SELECT value FROM json_each(:types))
		ORDER BY RANDOM()
		LIMIT :n`
	var r []media.Media
	opts := sqlitex.ExecOptions{
		Named: map[string]any{
			":max":   maxSeconds,
			":types": string(tj),
			":n":     n,
		},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r = append(r, media.Media{
				Type:    stmt.ColumnText(0),
				ID:      stmt.ColumnText(1),
				Title:   stmt.ColumnText(2),
				Seconds: stmt.ColumnInt(3),
			})
			return nil
		},
	}
	if err := sqlitex.Execute(conn, q, &opts); err != nil {
		return nil, fmt.Errorf("couldn't pick random videos: %w", err)
	}
	return r, nil
}

// userFlag reads a boolean column of the users table.
func (s *Store) userFlag(ctx context.Context, col, name string) (bool, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return false, fmt.Errorf("couldn't get connection to read user %s: %w", col, err)
	}
	var ok bool
	opts := sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ok = stmt.ColumnBool(0)
			return nil
		},
	}
	if err := sqlitex.Execute(conn, `SELECT `+col+` FROM users WHERE name=?`, &opts); err != nil {
		return false, fmt.Errorf("couldn't read user %s: %w", col, err)
	}
	return ok, nil
}

func (s *Store) setUserFlag(ctx context.Context, col, name string, v bool) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to set user %s: %w", col, err)
	}
	q := `INSERT INTO users (name, ` + col + `) VALUES (:name, :v) ON CONFLICT (name) DO UPDATE SET ` + col + `=excluded.` + col
	opts := sqlitex.ExecOptions{Named: map[string]any{":name": name, ":v": v}}
	if err := sqlitex.Execute(conn, q, &opts); err != nil {
		return fmt.Errorf("couldn't set user %s: %w", col, err)
	}
	return nil
}

// UserBlocked returns whether a user is blocked from queueing videos.
func (s *Store) UserBlocked(ctx context.Context, name string) (bool, error) {
	return s.userFlag(ctx, "blocked", name)
}

// SetUserBlocked blocks or unblocks a user.
func (s *Store) SetUserBlocked(ctx context.Context, name string, blocked bool) error {
	return s.setUserFlag(ctx, "blocked", name, blocked)
}

// UserBlacklisted returns whether a user is excluded from statistics.
func (s *Store) UserBlacklisted(ctx context.Context, name string) (bool, error) {
	return s.userFlag(ctx, "blacklisted", name)
}

// SetUserBlacklisted adds or removes a user from the statistics blacklist.
func (s *Store) SetUserBlacklisted(ctx context.Context, name string, blacklisted bool) error {
	return s.setUserFlag(ctx, "blacklisted", name, blacklisted)
}

// UserRank returns the last recorded rank of a user. Unknown users are
// guests.
func (s *Store) UserRank(ctx context.Context, name string) (room.Rank, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return room.Guest, fmt.Errorf("couldn't get connection to read user rank: %w", err)
	}
	r := room.Guest
	opts := sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r = room.Rank(stmt.ColumnInt(0))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, `SELECT rank FROM users WHERE name=?`, &opts); err != nil {
		return room.Guest, fmt.Errorf("couldn't read user rank: %w", err)
	}
	return r, nil
}

// InsertUser records a user's rank.
func (s *Store) InsertUser(ctx context.Context, name string, rank room.Rank) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to record user: %w", err)
	}
	const q = `INSERT INTO users (name, rank) VALUES (:name, :rank) ON CONFLICT (name) DO UPDATE SET rank=excluded.rank`
	opts := sqlitex.ExecOptions{Named: map[string]any{":name": name, ":rank": int(rank)}}
	if err := sqlitex.Execute(conn, q, &opts); err != nil {
		return fmt.Errorf("couldn't record user: %w", err)
	}
	return nil
}

// RecordChat records a chat message.
func (s *Store) RecordChat(ctx context.Context, name, msg string, at time.Time) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to record chat: %w", err)
	}
	opts := sqlitex.ExecOptions{Args: []any{at.UnixMilli(), name, msg}}
	if err := sqlitex.Execute(conn, `INSERT INTO chat (time, user, msg) VALUES (?, ?, ?)`, &opts); err != nil {
		return fmt.Errorf("couldn't record chat: %w", err)
	}
	return nil
}

// AddCookie gives a user n cookies and returns their new total.
func (s *Store) AddCookie(ctx context.Context, name string, n int) (int64, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get connection to add cookies: %w", err)
	}
	const q = `INSERT INTO cookies (user, count) VALUES (:user, :n)
		ON CONFLICT (user) DO UPDATE SET count=count+excluded.count
		RETURNING count`
	var total int64
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":user": name, ":n": n},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			total = stmt.ColumnInt64(0)
			return nil
		},
	}
	if err := sqlitex.Execute(conn, q, &opts); err != nil {
		return 0, fmt.Errorf("couldn't add cookies: %w", err)
	}
	return total, nil
}
