package media

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// short matches the "type:id" form, e.g. "yt:dQw4w9WgXcQ".
var short = regexp.MustCompile(`^([a-z]{2}):([^\s]+)$`)

// providers lists the types accepted in short form.
var providers = map[string]bool{
	"yt": true, "yp": true, "tw": true, "tv": true, "tc": true,
	"vi": true, "dm": true, "im": true, "sc": true, "gd": true,
	"li": true, "sb": true, "hl": true, "rt": true, "cm": true,
	"fi": true,
}

// fileExts are extensions of raw media files the room can play directly.
var fileExts = map[string]bool{
	".mp4": true, ".webm": true, ".ogg": true, ".ogv": true, ".oga": true,
	".mp3": true, ".m4a": true, ".flac": true, ".wav": true, ".mkv": true,
	".mov": true,
}

// Parse identifies the media referenced by a pasted link or short-form
// string. If s does not identify any supported media, the result is the
// zero Ref and false.
func Parse(s string) (Ref, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, false
	}
	if m := short.FindStringSubmatch(s); m != nil && providers[m[1]] {
		return Ref{Type: m[1], ID: m[2]}, true
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return Ref{}, false
	}
	switch strings.ToLower(u.Scheme) {
	case "rtmp":
		return Ref{Type: "rt", ID: s}, true
	case "http", "https":
		// fall through to host matching
	default:
		return Ref{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segs := segments(u.Path)
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		return youtube(u, segs)
	case "youtu.be":
		if len(segs) > 0 {
			return Ref{Type: "yt", ID: segs[0]}, true
		}
	case "twitch.tv", "m.twitch.tv", "go.twitch.tv":
		return twitch(segs)
	case "clips.twitch.tv":
		if len(segs) > 0 {
			return Ref{Type: "tc", ID: segs[0]}, true
		}
	case "vimeo.com", "player.vimeo.com":
		for _, p := range segs {
			if digits(p) {
				return Ref{Type: "vi", ID: p}, true
			}
		}
	case "dailymotion.com":
		if len(segs) > 1 && segs[0] == "video" {
			id, _, _ := strings.Cut(segs[1], "_")
			return Ref{Type: "dm", ID: id}, true
		}
	case "dai.ly":
		if len(segs) > 0 {
			return Ref{Type: "dm", ID: segs[0]}, true
		}
	case "imgur.com":
		if len(segs) > 1 && (segs[0] == "a" || segs[0] == "gallery") {
			return Ref{Type: "im", ID: segs[1]}, true
		}
	case "soundcloud.com":
		if len(segs) > 0 {
			return Ref{Type: "sc", ID: s}, true
		}
	case "docs.google.com", "drive.google.com":
		if id := u.Query().Get("id"); id != "" {
			return Ref{Type: "gd", ID: id}, true
		}
		for i, p := range segs {
			if p == "d" && i+1 < len(segs) {
				return Ref{Type: "gd", ID: segs[i+1]}, true
			}
		}
	case "livestream.com":
		if len(segs) > 0 {
			return Ref{Type: "li", ID: segs[0]}, true
		}
	case "streamable.com":
		if len(segs) > 0 {
			return Ref{Type: "sb", ID: segs[len(segs)-1]}, true
		}
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch {
	case ext == ".m3u8":
		return Ref{Type: "hl", ID: s}, true
	case ext == ".json":
		return Ref{Type: "cm", ID: s}, true
	case fileExts[ext]:
		return Ref{Type: "fi", ID: s}, true
	}
	return Ref{}, false
}

func youtube(u *url.URL, segs []string) (Ref, bool) {
	q := u.Query()
	switch {
	case len(segs) == 0:
		return Ref{}, false
	case segs[0] == "watch":
		if v := q.Get("v"); v != "" {
			return Ref{Type: "yt", ID: v}, true
		}
	case segs[0] == "playlist":
		if l := q.Get("list"); l != "" {
			return Ref{Type: "yp", ID: l}, true
		}
	case len(segs) > 1 && (segs[0] == "embed" || segs[0] == "shorts" || segs[0] == "live" || segs[0] == "v"):
		return Ref{Type: "yt", ID: segs[1]}, true
	}
	return Ref{}, false
}

func twitch(segs []string) (Ref, bool) {
	switch {
	case len(segs) == 0:
		return Ref{}, false
	case segs[0] == "videos" && len(segs) > 1:
		return Ref{Type: "tv", ID: "v" + segs[1]}, true
	case len(segs) > 2 && segs[1] == "clip":
		return Ref{Type: "tc", ID: segs[2]}, true
	case len(segs) > 2 && (segs[1] == "v" || segs[1] == "b"):
		return Ref{Type: "tv", ID: "v" + segs[2]}, true
	case len(segs) == 1:
		return Ref{Type: "tw", ID: segs[0]}, true
	}
	return Ref{}, false
}

func segments(p string) []string {
	var r []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			r = append(r, s)
		}
	}
	return r
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
