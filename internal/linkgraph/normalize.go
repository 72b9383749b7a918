package linkgraph

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// ErrUnsupportedScheme marks targets such as mailto: or javascript: that can never be crawled pages
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Generic anchors carry no topical signal for search engines
var genericAnchorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^click here$`),
	regexp.MustCompile(`^read more$`),
	regexp.MustCompile(`^learn more$`),
	regexp.MustCompile(`^more$`),
	regexp.MustCompile(`^here$`),
	regexp.MustCompile(`^(see|view) (more|details)$`),
	regexp.MustCompile(`^(this|this page|this article|link)$`),
}

// NormalizeURL canonicalizes an absolute http(s) URL into a page identity.
// Scheme and host are lower-cased, default ports removed, the path cleaned,
// trailing slash and fragment stripped and query parameters sorted.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}

	// Handle protocol-relative URLs
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed url %q: %w", raw, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	if _, ok := defaultPorts[scheme]; !ok {
		return "", fmt.Errorf("url %q: %w", raw, ErrUnsupportedScheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	if port := parsed.Port(); port != "" && port != defaultPorts[scheme] {
		host = host + ":" + port
	}

	cleaned := parsed.Path
	if cleaned != "" {
		cleaned = path.Clean(cleaned)
	}
	cleaned = strings.TrimSuffix(cleaned, "/")

	query := parsed.RawQuery
	if query != "" {
		if values, err := url.ParseQuery(query); err == nil {
			query = values.Encode()
		}
	}

	normalized := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     cleaned,
		RawQuery: query,
	}
	return normalized.String(), nil
}

// ResolveURL resolves ref against base and normalizes the result
func ResolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty link target")
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("malformed link target %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return NormalizeURL(ref)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("malformed base url %q: %w", base, err)
	}
	return NormalizeURL(baseURL.ResolveReference(refURL).String())
}

// Host extracts the lower-cased hostname from a URL string
func Host(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// NormalizeAnchor lower-cases anchor text and collapses whitespace
func NormalizeAnchor(anchor string) string {
	return strings.Join(strings.Fields(strings.ToLower(anchor)), " ")
}

// IsGenericAnchor reports whether anchor text is a non-descriptive phrase like "click here"
func IsGenericAnchor(anchor string) bool {
	normalized := NormalizeAnchor(anchor)
	if normalized == "" {
		return false
	}
	for _, pattern := range genericAnchorPatterns {
		if pattern.MatchString(normalized) {
			return true
		}
	}
	return false
}

// SlugPhrase turns the last path segment of a URL into words.
// Example: https://a.test/blog/link-building-guide -> "link building guide"
func SlugPhrase(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segment := path.Base(strings.TrimSuffix(parsed.Path, "/"))
	if segment == "." || segment == "/" {
		return ""
	}
	if idx := strings.LastIndex(segment, "."); idx > 0 {
		segment = segment[:idx]
	}
	segment = strings.NewReplacer("-", " ", "_", " ").Replace(segment)
	return strings.Join(strings.Fields(strings.ToLower(segment)), " ")
}
