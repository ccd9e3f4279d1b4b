// Package platform knows which video platforms the service accepts and how to
// turn their many URL shapes into one canonical dedup key. Adding a platform
// means adding one entry to the lookup table below.
package platform

import (
	"net/url"
	"regexp"
	"strings"
)

// Platform is a closed tag for supported video sources.
type Platform string

const (
	YouTube   Platform = "youtube"
	Instagram Platform = "instagram"
)

// spec bundles the per-platform extension points: the URL validation pattern,
// the canonical-key rule, and extra hints passed to the extraction tool.
type spec struct {
	urlPattern    *regexp.Regexp
	normalize     func(u *url.URL) string
	extractorArgs []string
}

var registry = map[Platform]spec{
	YouTube: {
		urlPattern: regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+`),
		normalize:  youtubeVideoID,
		// Player-client override for fetch reliability. Must never carry
		// format selection: both extraction phases share one -f policy.
		extractorArgs: []string{"--extractor-args", "youtube:player-client=web;player_skip=web_embedded_player,mweb,tv"},
	},
	Instagram: {
		urlPattern: regexp.MustCompile(`^(https?://)?(www\.)?instagram\.com/.+`),
		normalize:  instagramShortcode,
	},
}

// Parse validates a platform tag coming from a request body.
func Parse(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	_, ok := registry[p]
	return p, ok
}

// ValidURL reports whether rawURL plausibly belongs to the platform.
func (p Platform) ValidURL(rawURL string) bool {
	s, ok := registry[p]
	return ok && s.urlPattern.MatchString(rawURL)
}

// ExtractorArgs returns extra command-line hints for the extraction tool.
func (p Platform) ExtractorArgs() []string {
	return registry[p].extractorArgs
}

func (p Platform) String() string { return string(p) }

// Normalize derives the canonical dedup key for rawURL. Two URLs naming the
// same video yield the same key. The second return value is false when the
// content id could not be extracted and the degraded fallback key (raw URL
// minus query string and trailing slash) was used instead; callers should log
// that, since fallback keys may fail to dedup equivalent URLs.
func (p Platform) Normalize(rawURL string) (string, bool) {
	s, ok := registry[p]
	if ok {
		if u, err := url.Parse(rawURL); err == nil {
			if id := s.normalize(u); id != "" {
				return string(p) + ":" + id, true
			}
		}
	}
	return fallbackKey(rawURL), false
}

// youtubeVideoID extracts the video id from watch?v=, youtu.be/ and /shorts/ shapes.
func youtubeVideoID(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.HasSuffix(host, "youtu.be"):
		return firstSegment(u.Path)
	case strings.HasSuffix(host, "youtube.com"):
		if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			return firstSegment(rest)
		}
		return u.Query().Get("v")
	}
	return ""
}

// instagramShortcode extracts the shortcode following /p/, /reel/ or /reels/.
func instagramShortcode(u *url.URL) string {
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) >= 2 {
		switch parts[0] {
		case "p", "reel", "reels":
			return parts[1]
		}
	}
	return ""
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}

// fallbackKey strips the query string and trailing slash from the raw URL.
// Deterministic and idempotent, but distinct URLs for the same content will
// not collapse to one key in this mode.
func fallbackKey(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		rawURL = rawURL[:i]
	}
	return strings.TrimSuffix(rawURL, "/")
}
