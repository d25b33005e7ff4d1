// Package settings holds the bot's runtime settings and persists them as a
// single value in a key-value store.
package settings

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json"

	"github.com/zephyrtronium/cytubebot/room"
)

// All is the grant that includes every permission letter.
const All = "ALL"

// Settings are the bot's mutable runtime settings.
type Settings struct {
	// Managing enables autonomous playlist upkeep.
	Managing bool `json:"managing"`
	// Muted stops the bot from speaking in chat.
	Muted bool `json:"muted"`
	// Perms maps folded user names to hybrid moderator permission letters.
	Perms map[string]string `json:"perms,omitempty"`
	// UserLimit limits the number of items each user may have queued.
	UserLimit UserLimit `json:"userLimit"`
}

// UserLimit is the per-user playlist limit.
type UserLimit struct {
	Enabled bool `json:"enabled"`
	Num     int  `json:"num"`
}

// Limit returns the effective per-user limit, or zero if disabled.
func (u UserLimit) Limit() int {
	if !u.Enabled || u.Num <= 0 {
		return 0
	}
	return u.Num
}

// Grant returns a user's hybrid moderator permissions.
func (s *Settings) Grant(name string) string {
	return s.Perms[room.Fold(name)]
}

// Allows reports whether a user has been granted a permission letter.
func (s *Settings) Allows(name string, letter byte) bool {
	g := s.Grant(name)
	return g == All || strings.IndexByte(g, letter) >= 0
}

// ErrBadGrant is returned by Modify for malformed grant changes.
var ErrBadGrant = errors.New("grant must be ALL or start with + or - followed by letters")

// Modify changes a user's grant. The change is "ALL" to grant everything,
// "-ALL" or "NONE" to revoke everything (in any case), or + or - followed by permission
// letters to add or remove them. A grant that becomes empty is removed.
// The result is the user's new grant.
func (s *Settings) Modify(name, change string) (string, error) {
	k := room.Fold(name)
	cur := s.Perms[k]
	switch {
	case strings.EqualFold(change, All) || strings.EqualFold(change, "+"+All):
		cur = All
	case strings.EqualFold(change, "-"+All) || strings.EqualFold(change, "NONE"):
		cur = ""
	case len(change) > 1 && (change[0] == '+' || change[0] == '-'):
		letters := strings.ToUpper(change[1:])
		for _, c := range letters {
			if c < 'A' || c > 'Z' {
				return cur, ErrBadGrant
			}
		}
		if cur == All {
			if change[0] == '+' {
				return cur, nil
			}
			cur = allLetters
		}
		b := []byte(cur)
		for _, c := range []byte(letters) {
			i := slices.Index(b, c)
			switch {
			case change[0] == '+' && i < 0:
				b = append(b, c)
			case change[0] == '-' && i >= 0:
				b = slices.Delete(b, i, i+1)
			}
		}
		slices.Sort(b)
		cur = string(b)
	default:
		return cur, ErrBadGrant
	}
	if cur == "" {
		delete(s.Perms, k)
		return "", nil
	}
	if s.Perms == nil {
		s.Perms = make(map[string]string)
	}
	s.Perms[k] = cur
	return cur, nil
}

const allLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// key is the key under which settings are stored.
var key = []byte("cytubebot.settings")

// Load reads settings from a database. If none have been saved, the result
// is the zero Settings.
func Load(db *badger.DB) (*Settings, error) {
	var s Settings
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	switch {
	case err == nil, errors.Is(err, badger.ErrKeyNotFound):
		return &s, nil
	default:
		return nil, fmt.Errorf("couldn't load settings: %w", err)
	}
}

// Save writes settings to a database, replacing whatever was there.
func Save(db *badger.DB, s *Settings) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("couldn't encode settings: %w", err)
	}
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, b)
	})
	if err != nil {
		return fmt.Errorf("couldn't save settings: %w", err)
	}
	return nil
}
