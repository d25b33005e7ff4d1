// Package message models chat messages received from and sent to the room.
package message

import (
	"fmt"
	"strings"
	"time"
)

// Received is a chat message received from the room or from a bridge.
type Received struct {
	// ID is the unique ID of the message, if the source provides one.
	ID string
	// To is the recipient of a private message. It is empty for messages
	// sent to the room.
	To string
	// Sender is the name of the message sender.
	Sender string
	// Text is the text of the message.
	Text string
	// Timestamp is the timestamp of the message as milliseconds since the
	// Unix epoch.
	Timestamp int64
	// Bridged indicates that the message arrived through the chat bridge
	// rather than from the room itself.
	Bridged bool
	// IsModerator indicates whether the bridge reports the sender as able to
	// moderate the bridged channel. It is always false for room messages,
	// whose senders' ranks come from the userlist.
	IsModerator bool
}

// Time returns the time at which the message was sent.
func (m *Received) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Private reports whether the message is a private message.
func (m *Received) Private() bool {
	return m.To != ""
}

// Sent is a message to be sent to the room.
type Sent struct {
	// To is the recipient of a private message. If empty, the message is
	// sent to the room chat.
	To string
	// Text is the message text.
	Text string
}

// formatString is a type to prevent misuse of format strings passed to [Format].
type formatString string

// Format constructs a message to send from a format string literal and
// formatting arguments.
func Format(to string, f formatString, args ...any) Sent {
	return Sent{
		To:   to,
		Text: strings.TrimSpace(fmt.Sprintf(string(f), args...)),
	}
}

// Split breaks text into pieces of at most n bytes, preferring to break at
// spaces. The room truncates long messages, so long replies are split.
func Split(text string, n int) []string {
	if n <= 0 || len(text) <= n {
		return []string{text}
	}
	var r []string
	for len(text) > n {
		k := strings.LastIndexByte(text[:n+1], ' ')
		if k <= 0 {
			k = n
		}
		r = append(r, strings.TrimSpace(text[:k]))
		text = strings.TrimSpace(text[k:])
	}
	if text != "" {
		r = append(r, text)
	}
	return r
}
