package message

import (
	"strconv"

	"gitlab.com/zephyrtronium/tmi"
)

// FromTMI adapts a Twitch chat message arriving through the bridge.
func FromTMI(m *tmi.Message) *Received {
	id, _ := m.Tag("id")
	ts, _ := m.Tag("tmi-sent-ts")
	u, _ := strconv.ParseInt(ts, 10, 64)
	r := Received{
		ID:          id,
		Sender:      m.DisplayName(),
		Text:        m.Trailing,
		Timestamp:   u,
		Bridged:     true,
		IsModerator: moderator(m),
	}
	return &r
}

func moderator(m *tmi.Message) bool {
	t, _ := m.Tag("mod")
	if t == "1" {
		return true
	}
	// The broadcaster gets mod=0, but their nick is the channel name.
	to := m.To()
	return len(to) > 1 && to[0] == '#' && to[1:] == m.Nick
}

// ToTMI creates a message to relay to a Twitch channel.
// The room sender's name is attached so Twitch chat can tell speakers apart.
func ToTMI(channel, sender, text string) *tmi.Message {
	if sender == "" {
		return tmi.Privmsg(channel, text)
	}
	return tmi.Privmsg(channel, "<"+sender+"> "+text)
}
