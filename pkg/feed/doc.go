// Package feed provides the HTTP client for fetching profile feed
// pages.
//
// The client performs single attempts and reports typed failures; retry
// and breaker discipline belong to the session's retry executor, not to
// the transport. HTTP statuses map onto session error types: 429 is a
// rate limit, 401/403 is an anti-automation block, 5xx is a network
// failure.
package feed
