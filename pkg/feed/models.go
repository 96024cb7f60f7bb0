package feed

import (
	"context"
	"time"

	"lnscraper/pkg/models"
)

// updatesResponse is the top-level response for one page of feed updates.
type updatesResponse struct {
	Elements []updateElement `json:"elements"`
	Paging   paging          `json:"paging"`
}

type paging struct {
	PaginationToken string `json:"paginationToken"`
	HasMore         bool   `json:"hasMore"`
}

// updateElement is a single post in the wire format.
type updateElement struct {
	Commentary string         `json:"commentary"`
	ActorName  string         `json:"actorName"`
	CreatedAt  int64          `json:"createdAt"` // epoch milliseconds
	Permalink  string         `json:"permalink"`
	UpdateType string         `json:"updateType"`
	Social     map[string]int `json:"socialCounts"`
	ImageURLs  []string       `json:"imageUrls"`
}

func (e *updateElement) toPost() models.Post {
	post := models.Post{
		Content:    e.Commentary,
		Author:     e.ActorName,
		PostURL:    e.Permalink,
		PostType:   e.UpdateType,
		Engagement: e.Social,
		Images:     e.ImageURLs,
	}
	if e.CreatedAt > 0 {
		t := time.UnixMilli(e.CreatedAt).UTC()
		post.PostedAt = &t
	}
	return post
}

// Fetcher adapts the client to a single profile's feed, implementing
// the session engine's fetch contract.
type Fetcher struct {
	client   *Client
	username string
}

// NewFetcher creates a fetcher bound to one profile.
func NewFetcher(client *Client, username string) *Fetcher {
	return &Fetcher{client: client, username: username}
}

// FetchNext retrieves the page at cursor and converts it to a batch.
func (f *Fetcher) FetchNext(ctx context.Context, cursor string) (models.Batch, error) {
	url := UpdatesURL(f.client.baseURL, f.username, cursor, f.client.pageSize)

	var resp updatesResponse
	if err := f.client.getJSON(ctx, url, &resp); err != nil {
		return models.Batch{}, err
	}

	batch := models.Batch{
		NextCursor: resp.Paging.PaginationToken,
		HasMore:    resp.Paging.HasMore,
	}
	for i := range resp.Elements {
		batch.Posts = append(batch.Posts, resp.Elements[i].toPost())
	}
	return batch, nil
}
