// Package fingerprint derives a coarse device description from the request
// user agent and source address.
package fingerprint

import (
	"net"
	"net/http"
	"strings"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
)

const unknown = "Unknown"

type rule struct {
	name    string
	markers []string
}

var browserRules = []rule{
	{"Edge", []string{"edg/", "edge/", "edga/", "edgios/"}},
	{"Opera", []string{"opr/", "opera"}},
	{"Samsung Internet", []string{"samsungbrowser"}},
	{"Firefox", []string{"firefox", "fxios"}},
	{"Chrome", []string{"chrome", "crios", "chromium"}},
	{"Safari", []string{"safari"}},
	{"Internet Explorer", []string{"msie", "trident"}},
}

var osRules = []rule{
	{"Windows Phone", []string{"windows phone"}},
	{"Windows", []string{"windows"}},
	{"iOS", []string{"iphone", "ipad", "ipod"}},
	{"Android", []string{"android"}},
	{"macOS", []string{"mac os x", "macintosh", "mac os"}},
	{"Chrome OS", []string{"cros"}},
	{"Linux", []string{"linux", "x11"}},
}

var (
	tabletMarkers  = []string{"ipad", "tablet", "kindle", "silk", "playbook"}
	mobileMarkers  = []string{"mobile", "iphone", "ipod", "android", "blackberry", "windows phone", "opera mini", "iemobile"}
	desktopMarkers = []string{"windows nt", "macintosh", "mac os x", "x11", "linux", "cros"}
)

// Extract classifies a user agent. Matching is case-insensitive and the first
// rule that matches wins, so the rule order encodes precedence.
func Extract(userAgent, ip string) domain.DeviceInfo {
	ua := strings.ToLower(userAgent)
	return domain.DeviceInfo{
		UserAgentRaw: userAgent,
		SourceIP:     ip,
		DeviceType:   deviceType(ua),
		Browser:      firstMatch(ua, browserRules),
		OS:           firstMatch(ua, osRules),
	}
}

func deviceType(ua string) domain.DeviceType {
	switch {
	case ua == "":
		return domain.DeviceUnknown
	case containsAny(ua, tabletMarkers) || (strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")):
		return domain.DeviceTablet
	case containsAny(ua, mobileMarkers):
		return domain.DeviceMobile
	case containsAny(ua, desktopMarkers):
		return domain.DeviceDesktop
	default:
		return domain.DeviceUnknown
	}
}

func firstMatch(ua string, rules []rule) string {
	if ua == "" {
		return unknown
	}
	for _, r := range rules {
		if containsAny(ua, r.markers) {
			return r.name
		}
	}
	return unknown
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ClientIP returns the request source address without its port. It expects
// the RealIP middleware to have already applied forwarding headers.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func FromRequest(r *http.Request) domain.DeviceInfo {
	return Extract(r.UserAgent(), ClientIP(r))
}

// LocationFromHeaders reads edge-provided geo headers, falling back to the
// default location field by field.
func LocationFromHeaders(h http.Header) domain.Location {
	loc := domain.DefaultLocation()
	if v := strings.TrimSpace(h.Get("CF-IPCountry")); v != "" && v != "XX" {
		loc.Country = strings.ToUpper(v)
	}
	if v := strings.TrimSpace(h.Get("X-Client-City")); v != "" {
		loc.City = v
	}
	if v := strings.TrimSpace(h.Get("X-Timezone")); v != "" {
		loc.Timezone = v
	}
	return loc
}
