package parser

import "strings"

type rule struct {
	needle string
	name   string
}

// Order matters: mobile platforms carry desktop tokens ("Mac OS X" on
// iPhone, "Linux" on Android) and Edge/Opera carry "Chrome".
var osRules = []rule{
	{"iphone", "iOS"},
	{"ipad", "iOS"},
	{"android", "Android"},
	{"windows", "Windows"},
	{"mac os", "macOS"},
	{"cros", "ChromeOS"},
	{"linux", "Linux"},
}

var browserRules = []rule{
	{"edg/", "Edge"},
	{"edge/", "Edge"},
	{"opr/", "Opera"},
	{"firefox/", "Firefox"},
	{"fxios/", "Firefox"},
	{"crios/", "Chrome"},
	{"chrome/", "Chrome"},
	{"safari/", "Safari"},
	{"curl/", "curl"},
}

// ParseUserAgent returns a coarse operating system and browser name for
// audit records, "Unknown" when nothing matches.
func ParseUserAgent(ua string) (os, browser string) {
	uaLower := strings.ToLower(ua)
	return match(uaLower, osRules), match(uaLower, browserRules)
}

func match(ua string, rules []rule) string {
	for _, r := range rules {
		if strings.Contains(ua, r.needle) {
			return r.name
		}
	}
	return "Unknown"
}
