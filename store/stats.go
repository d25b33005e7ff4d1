package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Stats are statistics about the whole room.
type Stats struct {
	Videos int64
	Plays  int64
	Chat   int64
	// Top lists the users who queued the most videos, most first.
	Top []Count
}

// Count is a count associated with a user.
type Count struct {
	User string
	N    int64
}

// UserStats are statistics about one user.
type UserStats struct {
	Plays   int64
	Chat    int64
	Cookies int64
}

// Stats summarizes the room. Blacklisted users are omitted from the
// leaderboard.
func (s *Store) Stats(ctx context.Context, top int) (*Stats, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection for stats: %w", err)
	}
	var r Stats
	opts := sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r.Videos = stmt.ColumnInt64(0)
			r.Plays = stmt.ColumnInt64(1)
			r.Chat = stmt.ColumnInt64(2)
			return nil
		},
	}
	const totals = `SELECT (SELECT COUNT(*) FROM videos), (SELECT COUNT(*) FROM plays), (SELECT COUNT(*) FROM chat)`
	if err := sqlitex.Execute(conn, totals, &opts); err != nil {
		return nil, fmt.Errorf("couldn't count totals: %w", err)
	}
	const leaders = `SELECT plays.user, COUNT(*) AS n FROM plays
		LEFT JOIN users ON users.name = plays.user
		WHERE COALESCE(users.blacklisted, 0) = 0
		GROUP BY plays.user
		ORDER BY n DESC, plays.user
		LIMIT ?`
	opts = sqlitex.ExecOptions{
		Args: []any{top},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r.Top = append(r.Top, Count{User: stmt.ColumnText(0), N: stmt.ColumnInt64(1)})
			return nil
		},
	}
	if err := sqlitex.Execute(conn, leaders, &opts); err != nil {
		return nil, fmt.Errorf("couldn't rank users: %w", err)
	}
	return &r, nil
}

// UserStats summarizes one user's activity.
func (s *Store) UserStats(ctx context.Context, name string) (*UserStats, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection for user stats: %w", err)
	}
	var r UserStats
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":user": name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r.Plays = stmt.ColumnInt64(0)
			r.Chat = stmt.ColumnInt64(1)
			r.Cookies = stmt.ColumnInt64(2)
			return nil
		},
	}
	const q = `SELECT
		(SELECT COUNT(*) FROM plays WHERE user = :user),
		(SELECT COUNT(*) FROM chat WHERE user = :user),
		COALESCE((SELECT count FROM cookies WHERE user = :user), 0)`
	if err := sqlitex.Execute(conn, q, &opts); err != nil {
		return nil, fmt.Errorf("couldn't get user stats: %w", err)
	}
	return &r, nil
}
