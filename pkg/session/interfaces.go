package session

import (
	"context"

	"lnscraper/pkg/models"
	"lnscraper/pkg/partial"
)

// Fetcher retrieves one page of posts at a time. Implementations signal
// the end of the feed with Batch.HasMore == false; errors should carry a
// type from pkg/errors so the retry boundary can classify them.
type Fetcher interface {
	FetchNext(ctx context.Context, cursor string) (models.Batch, error)
}

// Writer renders the final result to its destination and returns the
// path of the written artifact.
type Writer interface {
	Write(profileName, profileURL string, result partial.Result) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, cursor string) (models.Batch, error)

func (f FetcherFunc) FetchNext(ctx context.Context, cursor string) (models.Batch, error) {
	return f(ctx, cursor)
}
