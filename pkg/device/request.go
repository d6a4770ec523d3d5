package device

import (
	"net/http"
	"strings"
)

// Request headers a client may use instead of the login body
const (
	HeaderFingerprint      = "X-Device-Fingerprint"
	HeaderScreenResolution = "Screen-Resolution"
	HeaderTimezone         = "Timezone"
)

// InfoFromRequest fills attributes missing from reported using the request
// headers and the parsed User-Agent.
func InfoFromRequest(r *http.Request, reported Info) Info {
	fromHeaders := Info{
		ScreenResolution: r.Header.Get(HeaderScreenResolution),
		Timezone:         r.Header.Get(HeaderTimezone),
		Language:         primaryLanguage(r.Header.Get("Accept-Language")),
	}
	return reported.Merge(fromHeaders).Merge(ParseUserAgent(r.UserAgent()))
}

// FingerprintToken returns body when set, else the X-Device-Fingerprint header
func FingerprintToken(r *http.Request, body string) string {
	if strings.TrimSpace(body) != "" {
		return body
	}
	return r.Header.Get(HeaderFingerprint)
}

// primaryLanguage returns "en" for "en-US,en;q=0.9"
func primaryLanguage(accept string) string {
	if accept == "" {
		return ""
	}
	first := strings.TrimSpace(strings.Split(accept, ",")[0])
	first = strings.Split(first, ";")[0]
	first = strings.Split(first, "-")[0]
	if first == "*" {
		return ""
	}
	return strings.ToLower(first)
}
