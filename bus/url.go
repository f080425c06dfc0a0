package bus

import (
	"net/url"
	"strings"
)

// ParamName is the query parameter carrying the channel id to the frame.
const ParamName = "post-message-event-id"

const trimChars = "?&#"

// AppendParam adds name=value to the query of link, before any fragment.
// Dangling "?", "&" and "#" are trimmed so they never end up in the result.
// An empty value leaves link unchanged.
func AppendParam(link, name, value string) string {
	if value == "" {
		return link
	}
	base, fragment := link, ""
	if i := strings.IndexByte(link, '#'); i >= 0 {
		base, fragment = link[:i], link[i+1:]
	}
	base = strings.TrimRight(base, trimChars)
	if strings.Contains(base, "?") {
		base += "&"
	} else {
		base += "?"
	}
	base += escapeComponent(name) + "=" + escapeComponent(value)
	if fragment != "" {
		base += "#" + fragment
	}
	return strings.TrimRight(base, trimChars)
}

// escapeComponent percent-encodes s like encodeURIComponent does for the
// characters that matter in a query: spaces become %20, not "+".
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// ChannelIDFrom returns the channel id in the query of location, or "".
func ChannelIDFrom(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return u.Query().Get(ParamName)
}
