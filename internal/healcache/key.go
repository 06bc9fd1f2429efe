package healcache

import (
	"net/url"
	"strings"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
)

// Key is the normalized fingerprint of a (page, locator, action)
// combination. Two URLs that differ only by query string or by a numeric
// path segment share one key, so a heal learned on /users/123/profile also
// serves /users/456/profile.
type Key struct {
	URLPattern string
	Locator    string
	Action     schemas.ActionType
}

// NewKey builds a key from the raw page URL, the original locator and the
// attempted action.
func NewKey(rawURL string, locator schemas.LocatorInfo, action schemas.ActionType) Key {
	return Key{
		URLPattern: NormalizeURL(rawURL),
		Locator:    locator.String(),
		Action:     action,
	}
}

// Fingerprint renders the key as a single stable string.
func (k Key) Fingerprint() string {
	return k.URLPattern + "|" + k.Locator + "|" + string(k.Action)
}

// NormalizeURL strips the query string and fragment, lowercases scheme and
// host, and replaces purely-numeric path segments with an {id} placeholder.
// Unparseable input is returned trimmed and unchanged; a degraded key is
// still a usable key.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if isNumeric(seg) {
			segments[i] = "{id}"
		}
	}
	path := strings.Join(segments, "/")
	path = strings.TrimSuffix(path, "/")

	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
