// Package media identifies playable media by provider type and ID.
package media

import (
	"fmt"
	"strings"
	"time"
)

// Media is a playable media item.
type Media struct {
	// Type is the two-letter provider code, e.g. "yt" for YouTube.
	Type string `json:"type"`
	// ID is the provider-specific identifier. For raw files and streams it is
	// the full URL.
	ID string `json:"id"`
	// Title is the display title.
	Title string `json:"title,omitzero"`
	// Seconds is the duration. Live streams have zero duration.
	Seconds int `json:"seconds,omitzero"`
}

// Ref returns the identity of the media.
func (m Media) Ref() Ref {
	return Ref{Type: m.Type, ID: m.ID}
}

// Duration returns the media duration.
func (m Media) Duration() time.Duration {
	return time.Duration(m.Seconds) * time.Second
}

// Ref is the identity of a media item, without any descriptive information.
// The zero Ref identifies nothing.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// IsZero returns whether the reference identifies nothing.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// String formats the reference in the short "type:id" form accepted by Parse.
func (r Ref) String() string {
	return r.Type + ":" + r.ID
}

// Link returns a URL at which a person can view the media.
// If the type has no known URL form, the result is the short form.
func (r Ref) Link() string {
	switch r.Type {
	case "yt":
		return "https://youtu.be/" + r.ID
	case "yp":
		return "https://www.youtube.com/playlist?list=" + r.ID
	case "tw":
		return "https://twitch.tv/" + r.ID
	case "tv":
		return "https://twitch.tv/videos/" + strings.TrimPrefix(r.ID, "v")
	case "tc":
		return "https://clips.twitch.tv/" + r.ID
	case "vi":
		return "https://vimeo.com/" + r.ID
	case "dm":
		return "https://www.dailymotion.com/video/" + r.ID
	case "im":
		return "https://imgur.com/a/" + r.ID
	case "gd":
		return "https://drive.google.com/file/d/" + r.ID
	case "li":
		return "https://livestream.com/" + r.ID
	case "sb":
		return "https://streamable.com/" + r.ID
	case "sc", "fi", "hl", "rt", "cm":
		return r.ID
	default:
		return r.String()
	}
}

// Status is the result of checking media with its provider.
type Status int

const (
	// Playable media can be embedded in the room.
	Playable Status = iota
	// Invalid media does not exist or is private.
	Invalid
	// Disabled media exists but cannot be embedded.
	Disabled
	// Blocked media is unavailable in the room's country.
	Blocked
)

func (s Status) String() string {
	switch s {
	case Playable:
		return "playable"
	case Invalid:
		return "invalid"
	case Disabled:
		return "embedding disabled"
	case Blocked:
		return "region blocked"
	default:
		return fmt.Sprintf("media.Status(%d)", int(s))
	}
}

// Clock formats a number of seconds as h:mm:ss, or m:ss when less than an
// hour.
func Clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds/60%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
