package dedup

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"si":      {},
}

const canonicalFlags = purell.FlagsUnsafeGreedy | purell.FlagRemoveEmptyPortSeparator | purell.FlagRemoveUnnecessaryHostDots

// CanonicalURL reduces raw to a comparable form: scheme forced to http, www
// and fragments dropped, tracking parameters removed and the query sorted.
// Unparseable or host-less input yields "".
func CanonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return ""
	}
	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}
	parsed.RawQuery = q.Encode()
	return purell.NormalizeURL(parsed, canonicalFlags)
}
