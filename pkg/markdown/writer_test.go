package markdown

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lnscraper/pkg/models"
	"lnscraper/pkg/partial"
)

func sampleResult() partial.Result {
	posted := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return partial.Result{
		Posts: []models.Post{
			{
				Content:    "Shipping the new release today! #golang #release",
				Author:     "Jane Doe",
				PostedAt:   &posted,
				PostURL:    "https://www.linkedin.com/posts/jane-doe_1",
				PostType:   "text",
				Engagement: map[string]int{"likes": 120, "comments": 8},
				Hashtags:   []string{"#golang", "#release"},
			},
			{
				Content:  "Second post without extras",
				Author:   "Jane Doe",
				PostType: "text",
			},
		},
		PageFailures: []partial.PageFailure{
			{Marker: "page-4", Reason: "retries exhausted"},
		},
	}
}

func TestWriterProducesDocument(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "{profile}-posts-{date}.md")

	path, err := w.Write("jane-doe", "https://www.linkedin.com/in/jane-doe", sampleResult())
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "jane-doe-posts-"))
	assert.True(t, strings.HasSuffix(path, ".md"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	// Front matter
	assert.True(t, strings.HasPrefix(content, "---\n"))
	assert.Contains(t, content, `profile_name: "jane-doe"`)
	assert.Contains(t, content, "total_posts: 2")
	assert.Contains(t, content, "skipped_pages: 1")

	// Body
	assert.Contains(t, content, "### Post #1")
	assert.Contains(t, content, "### Post #2")
	assert.Contains(t, content, "Shipping the new release today!")
	assert.Contains(t, content, "comments: 8, likes: 120")
	assert.Contains(t, content, "[View on LinkedIn](https://www.linkedin.com/posts/jane-doe_1)")

	// Skipped page annotations
	assert.Contains(t, content, "## Skipped Pages")
	assert.Contains(t, content, `page at "page-4": retries exhausted`)
}

func TestWriterDegradedNote(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "{profile}.md")

	result := sampleResult()
	result.Degraded = true

	path, err := w.Write("jane-doe", "https://www.linkedin.com/in/jane-doe", result)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "partial: true")
	assert.Contains(t, string(data), "partial result")
}

func TestWriterEmptyResult(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "{profile}.md")

	path, err := w.Write("jane-doe", "https://www.linkedin.com/in/jane-doe", partial.Result{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "total_posts: 0")
	assert.Contains(t, content, "No posts were found")
	assert.NotContains(t, content, "## Skipped Pages")
}

func TestWriterSanitizesFilename(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "{profile}.md")

	path, err := w.Write("../weird name!", "https://www.linkedin.com/in/x", partial.Result{})
	require.NoError(t, err)

	base := filepath.Base(path)
	assert.NotContains(t, base, "/")
	assert.NotContains(t, base, "!")
	assert.NotContains(t, base, " ")
	assert.Equal(t, dir, filepath.Dir(path))
}

func TestWriterLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "{profile}.md")

	_, err := w.Write("jane-doe", "https://www.linkedin.com/in/jane-doe", sampleResult())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.Contains(entries[0].Name(), ".tmp"))
}
