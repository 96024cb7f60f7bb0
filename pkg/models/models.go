package models

import (
	"regexp"
	"time"
)

// Post is one extracted feed post. The session engine treats posts as
// opaque items; only the output writer looks inside.
type Post struct {
	Content    string         `json:"content"`
	Author     string         `json:"author"`
	PostedAt   *time.Time     `json:"posted_at,omitempty"`
	PostURL    string         `json:"post_url,omitempty"`
	PostType   string         `json:"post_type"` // text, image, video, shared_content
	Engagement map[string]int `json:"engagement,omitempty"`
	Images     []string       `json:"images,omitempty"`
	Hashtags   []string       `json:"hashtags,omitempty"`
	Mentions   []string       `json:"mentions,omitempty"`
}

// Batch is one page of posts returned by the fetch collaborator,
// together with the cursor to request the page after it.
type Batch struct {
	Posts      []Post
	NextCursor string
	HasMore    bool
}

var (
	hashtagPattern = regexp.MustCompile(`#[\w\d]+(?:[\w\d\-_]*[\w\d])?`)
	mentionPattern = regexp.MustCompile(`@[\w\d]+(?:[\w\d\-_]*[\w\d])?`)
)

// Enrich derives hashtags and mentions from the post content.
func (p *Post) Enrich() {
	if p.Content == "" {
		return
	}
	p.Hashtags = hashtagPattern.FindAllString(p.Content, -1)
	p.Mentions = mentionPattern.FindAllString(p.Content, -1)
	if p.PostType == "" {
		p.PostType = "text"
	}
}
