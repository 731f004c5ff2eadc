// File: internal/browser/blocker.go
package browser

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// defaultBlockedPatterns covers the common ad and tracking networks. Patterns
// use the CDP wildcard syntax where '*' matches any run of characters.
var defaultBlockedPatterns = []string{
	"*doubleclick.net*",
	"*googlesyndication.com*",
	"*googleadservices.com*",
	"*google-analytics.com*",
	"*googletagmanager.com*",
	"*googletagservices.com*",
	"*adservice.google.*",
	"*facebook.net/*/fbevents.js*",
	"*connect.facebook.net*",
	"*amazon-adsystem.com*",
	"*adnxs.com*",
	"*adsrvr.org*",
	"*criteo.com*",
	"*criteo.net*",
	"*taboola.com*",
	"*outbrain.com*",
	"*scorecardresearch.com*",
	"*quantserve.com*",
	"*hotjar.com*",
	"*segment.io*",
	"*mixpanel.com*",
	"*moatads.com*",
	"*pubmatic.com*",
	"*rubiconproject.com*",
	"*openx.net*",
}

// BlockedPatterns returns the URL patterns the page should refuse to load:
// the built-in ad/tracker list when BlockAds is set, plus any configured
// patterns. The result is de-duplicated and sorted.
func BlockedPatterns(cfg config.BrowserConfig) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	if cfg.BlockAds {
		for _, p := range defaultBlockedPatterns {
			add(p)
		}
	}
	for _, p := range cfg.BlockedURLs {
		add(p)
	}
	sort.Strings(out)
	return out
}

// matchPattern reports whether url matches a CDP style wildcard pattern.
func matchPattern(pattern, url string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == url
	}
	if !strings.HasPrefix(url, parts[0]) {
		return false
	}
	url = url[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(url, part)
		if idx < 0 {
			return false
		}
		url = url[idx+len(part):]
	}
	return strings.HasSuffix(url, last)
}

// IsBlocked reports whether url would be refused under cfg.
func IsBlocked(cfg config.BrowserConfig, url string) bool {
	for _, p := range BlockedPatterns(cfg) {
		if matchPattern(p, url) {
			return true
		}
	}
	return false
}
