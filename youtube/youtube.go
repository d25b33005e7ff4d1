// Package youtube checks whether YouTube videos can play in a room.
package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zephyrtronium/cytubebot/media"
)

// DefaultEndpoint is the YouTube Data API videos endpoint.
const DefaultEndpoint = "https://www.googleapis.com/youtube/v3/videos"

// Client validates videos using the YouTube Data API.
type Client struct {
	// HTTP is the client used for API requests.
	HTTP *http.Client
	// Key is the API key.
	Key string
	// Country is the ISO 3166 code of the country whose region restrictions
	// apply. If empty, region restrictions are ignored.
	Country string
	// Endpoint overrides DefaultEndpoint.
	Endpoint string
}

// Validate checks whether a video exists and can be embedded in the
// configured country.
func (c *Client) Validate(ctx context.Context, ref media.Ref) (media.Status, error) {
	if ref.Type != "yt" {
		return media.Playable, nil
	}
	ep := c.Endpoint
	if ep == "" {
		ep = DefaultEndpoint
	}
	v := url.Values{}
	v.Set("part", "status,contentDetails")
	v.Set("id", ref.ID)
	v.Set("key", c.Key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep+"?"+v.Encode(), nil)
	if err != nil {
		return media.Playable, fmt.Errorf("couldn't make validation request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return media.Playable, fmt.Errorf("couldn't validate %s: %w", ref, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return media.Playable, fmt.Errorf("couldn't read validation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(b, "error.message").String()
		return media.Playable, fmt.Errorf("couldn't validate %s: %s: %s", ref, resp.Status, msg)
	}
	return verdict(b, c.Country), nil
}

func verdict(b []byte, country string) media.Status {
	items := gjson.GetBytes(b, "items")
	if !items.IsArray() || len(items.Array()) == 0 {
		return media.Invalid
	}
	it := items.Array()[0]
	switch it.Get("status.uploadStatus").String() {
	case "deleted", "failed", "rejected":
		return media.Invalid
	}
	if it.Get("status.privacyStatus").String() == "private" {
		return media.Invalid
	}
	if e := it.Get("status.embeddable"); e.Exists() && !e.Bool() {
		return media.Disabled
	}
	if country == "" {
		return media.Playable
	}
	rr := it.Get("contentDetails.regionRestriction")
	if allowed := rr.Get("allowed"); allowed.Exists() && !contains(allowed, country) {
		return media.Blocked
	}
	if contains(rr.Get("blocked"), country) {
		return media.Blocked
	}
	return media.Playable
}

func contains(arr gjson.Result, s string) bool {
	for _, v := range arr.Array() {
		if strings.EqualFold(v.String(), s) {
			return true
		}
	}
	return false
}
