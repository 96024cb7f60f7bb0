// Package target validates and normalizes LinkedIn profile URLs.
package target

import (
	"net/url"
	"regexp"
	"strings"

	"lnscraper/pkg/errors"
)

var profilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?linkedin\.com/in/[a-zA-Z0-9\-]+/?$`),
	regexp.MustCompile(`^https?://(?:www\.)?linkedin\.com/pub/[a-zA-Z0-9\-/]+/?$`),
	regexp.MustCompile(`^https?://(?:www\.)?linkedin\.com/profile/view\?id=\d+$`),
}

var validDomains = map[string]bool{
	"linkedin.com":     true,
	"www.linkedin.com": true,
}

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9\-]+$`)

// Profile is a validated, normalized extraction target.
type Profile struct {
	// URL is the normalized profile URL.
	URL string
	// Username is the profile identifier extracted from the URL path.
	Username string
}

// Parse validates a raw profile URL or bare username and returns the
// normalized target. A bare username like "jane-doe" is expanded to the
// standard profile URL form.
func Parse(raw string) (Profile, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Profile{}, errors.New(errors.ErrorTypeValidation, "profile URL cannot be empty")
	}

	if usernameRe.MatchString(raw) {
		raw = "https://www.linkedin.com/in/" + raw
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return Profile{}, errors.New(errors.ErrorTypeValidation, "invalid URL format")
	}

	if !validDomains[strings.ToLower(parsed.Host)] {
		return Profile{}, errors.New(errors.ErrorTypeValidation, "URL must be a linkedin.com profile")
	}

	normalized := normalize(parsed)
	if !matchesProfilePattern(normalized) {
		return Profile{}, errors.New(errors.ErrorTypeValidation, "URL does not look like a LinkedIn profile")
	}

	username := extractUsername(parsed)
	if username == "" {
		return Profile{}, errors.New(errors.ErrorTypeValidation, "could not determine profile identifier")
	}

	return Profile{URL: normalized, Username: username}, nil
}

func matchesProfilePattern(u string) bool {
	for _, p := range profilePatterns {
		if p.MatchString(u) {
			return true
		}
	}
	return false
}

// normalize rewrites a parsed URL to the canonical form: https scheme,
// www host, no trailing slash, no fragment.
func normalize(parsed *url.URL) string {
	host := strings.ToLower(parsed.Host)
	if host == "linkedin.com" {
		host = "www.linkedin.com"
	}

	path := strings.TrimRight(parsed.Path, "/")

	out := url.URL{
		Scheme:   "https",
		Host:     host,
		Path:     path,
		RawQuery: parsed.RawQuery,
	}
	return out.String()
}

func extractUsername(parsed *url.URL) string {
	path := strings.Trim(parsed.Path, "/")

	switch {
	case strings.HasPrefix(path, "in/"):
		parts := strings.Split(path, "/")
		return parts[len(parts)-1]
	case strings.HasPrefix(path, "pub/"):
		parts := strings.Split(path, "/")
		if len(parts) >= 2 {
			return parts[1]
		}
	case strings.Contains(path, "profile/view"):
		return parsed.Query().Get("id")
	}
	return ""
}

// Suggest proposes likely corrections for an input that failed
// validation, for display in CLI error output. At most three
// suggestions are returned.
func Suggest(invalid string) []string {
	cleaned := strings.ToLower(strings.TrimSpace(invalid))
	cleaned = strings.TrimPrefix(cleaned, "https://")
	cleaned = strings.TrimPrefix(cleaned, "http://")
	cleaned = strings.TrimPrefix(cleaned, "www.")

	var suggestions []string

	if usernameRe.MatchString(cleaned) {
		suggestions = append(suggestions, "https://www.linkedin.com/in/"+cleaned)
	}

	if strings.HasPrefix(cleaned, "linkedin.com/") {
		rest := strings.TrimPrefix(cleaned, "linkedin.com/")
		rest = strings.TrimPrefix(rest, "in/")
		rest = strings.TrimRight(rest, "/")
		if rest != "" && usernameRe.MatchString(rest) {
			suggestions = append(suggestions, "https://www.linkedin.com/in/"+rest)
		}
	}

	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}
