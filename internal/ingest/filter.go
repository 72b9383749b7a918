package ingest

import (
	"net/url"
	"regexp"
	"strings"
)

// Non-HTML resources the crawler never fetches
var excludedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.(pdf|zip|gz|tar|rar|7z|exe|dmg)$`),
	regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|svg|ico|bmp|avif)$`),
	regexp.MustCompile(`(?i)\.(mp3|mp4|mov|avi|webm|wav)$`),
	regexp.MustCompile(`(?i)\.(css|js|json|xml|txt|woff2?|ttf|eot)$`),
	regexp.MustCompile(`(?i)^/(wp-admin|wp-json|cdn-cgi)(/|$)`),
}

// siteHosts returns host and its www/bare counterpart
// Example: www.example.com -> [www.example.com example.com]
func siteHosts(host string) []string {
	host = strings.ToLower(host)
	if bare, ok := strings.CutPrefix(host, "www."); ok {
		return []string{host, bare}
	}
	return []string{host, "www." + host}
}

// IsExcluded reports whether a URL points at a resource that is not a page
func IsExcluded(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	for _, pattern := range excludedPatterns {
		if pattern.MatchString(parsed.Path) {
			return true
		}
	}
	return false
}

// shouldFollow reports whether target is an http(s) page on one of hosts
func shouldFollow(target string, hosts []string) bool {
	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range hosts {
		if h == host {
			return !IsExcluded(target)
		}
	}
	return false
}
