package parser

import "testing"

func TestParseUserAgent(t *testing.T) {
	cases := []struct {
		ua      string
		os      string
		browser string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "Windows", "Chrome"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0", "Windows", "Edge"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15", "macOS", "Safari"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1", "iOS", "Safari"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36", "Android", "Chrome"},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", "Linux", "Firefox"},
		{"curl/8.4.0", "Unknown", "curl"},
		{"", "Unknown", "Unknown"},
	}

	for _, tc := range cases {
		os, browser := ParseUserAgent(tc.ua)
		if os != tc.os || browser != tc.browser {
			t.Errorf("ParseUserAgent(%q) = %s/%s, want %s/%s", tc.ua, os, browser, tc.os, tc.browser)
		}
	}
}
