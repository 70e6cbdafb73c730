package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"econbot/internal/model"
)

// IdentityOf returns the content address of a URL. Same string, same id.
func IdentityOf(rawURL string) model.ItemID {
	sum := sha256.Sum256([]byte(rawURL))
	return model.ItemID(hex.EncodeToString(sum[:]))
}

// CanonicalURL normalises the parts of a URL that never distinguish two articles:
// surrounding whitespace, scheme and host case, and the fragment.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String()
}
