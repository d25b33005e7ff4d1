package room

import "slices"

// User is a user present in the room.
type User struct {
	Name string `json:"name"`
	Rank Rank   `json:"rank"`
	AFK  bool   `json:"afk"`
	// Muted indicates the user is shadow- or fully muted.
	Muted bool `json:"muted"`
	// Added lists the UIDs of playlist items the user queued.
	Added []UID `json:"added"`
}

// Userlist is the set of users present in the room.
// Names are compared case-insensitively.
type Userlist struct {
	users []User
}

// Reset replaces the entire userlist. Duplicate names after the first are
// dropped.
func (l *Userlist) Reset(users []User) {
	l.users = l.users[:0]
	for _, u := range users {
		if l.index(u.Name) >= 0 {
			continue
		}
		l.users = append(l.users, u)
	}
}

// Len returns the number of users present.
func (l *Userlist) Len() int {
	return len(l.users)
}

// Users returns a copy of the userlist.
func (l *Userlist) Users() []User {
	r := slices.Clone(l.users)
	for i := range r {
		r[i].Added = slices.Clone(r[i].Added)
	}
	return r
}

func (l *Userlist) index(name string) int {
	f := Fold(name)
	return slices.IndexFunc(l.users, func(u User) bool { return Fold(u.Name) == f })
}

func (l *Userlist) find(name string) *User {
	k := l.index(name)
	if k < 0 {
		return nil
	}
	return &l.users[k]
}

// Join adds a user. If a user with the same name is already present, the
// userlist is unchanged and the result is false.
func (l *Userlist) Join(u User) bool {
	if l.index(u.Name) >= 0 {
		return false
	}
	l.users = append(l.users, u)
	return true
}

// Leave removes a user.
func (l *Userlist) Leave(name string) (User, bool) {
	k := l.index(name)
	if k < 0 {
		return User{}, false
	}
	u := l.users[k]
	l.users = slices.Delete(l.users, k, k+1)
	return u, true
}

// Lookup finds a user by name.
func (l *Userlist) Lookup(name string) (User, bool) {
	u := l.find(name)
	if u == nil {
		return User{}, false
	}
	return *u, true
}

// Rank returns the rank of a user. Users who are not present are guests.
func (l *Userlist) Rank(name string) Rank {
	u := l.find(name)
	if u == nil {
		return Guest
	}
	return u.Rank
}

// SetRank changes a user's rank.
func (l *Userlist) SetRank(name string, rank Rank) bool {
	u := l.find(name)
	if u == nil {
		return false
	}
	u.Rank = rank
	return true
}

// SetAFK changes a user's away status.
func (l *Userlist) SetAFK(name string, afk bool) bool {
	u := l.find(name)
	if u == nil {
		return false
	}
	u.AFK = afk
	return true
}

// Active returns the names of users who are not AFK, in join order.
func (l *Userlist) Active() []string {
	var r []string
	for _, u := range l.users {
		if !u.AFK {
			r = append(r, u.Name)
		}
	}
	return r
}
