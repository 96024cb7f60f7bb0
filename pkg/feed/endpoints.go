package feed

import (
	"fmt"
	"net/url"
)

const (
	// BaseURL is the base URL for the feed API.
	BaseURL = "https://www.linkedin.com"

	// UpdatesEndpoint is the endpoint pattern for profile feed updates.
	UpdatesEndpoint = "/voyager/api/identity/profileUpdates"

	// DefaultPageSize is the default number of posts to fetch per page.
	DefaultPageSize = 20

	// MaxPageSize is the largest page the API accepts.
	MaxPageSize = 50
)

// UpdatesURL constructs the URL for one page of a profile's feed.
func UpdatesURL(base, username, cursor string, count int) string {
	if base == "" {
		base = BaseURL
	}
	if count <= 0 {
		count = DefaultPageSize
	} else if count > MaxPageSize {
		count = MaxPageSize
	}

	params := url.Values{}
	params.Set("profileId", username)
	params.Set("count", fmt.Sprintf("%d", count))
	if cursor != "" {
		params.Set("paginationToken", cursor)
	}

	return fmt.Sprintf("%s%s?%s", base, UpdatesEndpoint, params.Encode())
}
