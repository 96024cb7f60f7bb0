// Package markdown renders collected posts into a Markdown document and
// writes it atomically to the output directory.
package markdown

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"lnscraper/pkg/errors"
	"lnscraper/pkg/models"
	"lnscraper/pkg/partial"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// Writer renders extraction results to Markdown files.
type Writer struct {
	outputDir       string
	filenamePattern string
}

// NewWriter creates a Writer targeting the given directory. The pattern
// supports {profile} and {date} placeholders.
func NewWriter(outputDir, filenamePattern string) *Writer {
	return &Writer{
		outputDir:       outputDir,
		filenamePattern: filenamePattern,
	}
}

// Write renders the result and writes it to disk, returning the path of
// the written file. The write goes through a temp file and rename so an
// interruption never leaves a half-written document.
func (w *Writer) Write(profileName, profileURL string, result partial.Result) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return "", errors.Wrap(errors.ErrorTypeIO, "failed to create output directory", err)
	}

	filename := w.buildFilename(profileName)
	path := filepath.Join(w.outputDir, filename)

	content := w.render(profileName, profileURL, result)

	tmp, err := os.CreateTemp(w.outputDir, filename+".tmp-*")
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeIO, "failed to create temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrorTypeIO, "failed to write output", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrorTypeIO, "failed to sync output", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrorTypeIO, "failed to close output", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrorTypeIO, "failed to finalize output", err)
	}

	return path, nil
}

func (w *Writer) buildFilename(profileName string) string {
	name := unsafeFilenameChars.ReplaceAllString(profileName, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "profile"
	}

	out := strings.ReplaceAll(w.filenamePattern, "{profile}", name)
	out = strings.ReplaceAll(out, "{date}", time.Now().Format("2006-01-02"))
	if !strings.HasSuffix(out, ".md") {
		out += ".md"
	}
	return out
}

func (w *Writer) render(profileName, profileURL string, result partial.Result) string {
	var b strings.Builder

	writeFrontMatter(&b, profileName, profileURL, result)
	writeHeader(&b, profileName, profileURL, result)
	writePosts(&b, result.Posts)
	writeFooter(&b, result)

	return b.String()
}

func writeFrontMatter(b *strings.Builder, profileName, profileURL string, result partial.Result) {
	hashtags := collectHashtags(result.Posts)

	fmt.Fprintf(b, "---\n")
	fmt.Fprintf(b, "title: %q\n", "LinkedIn Posts - "+profileName)
	fmt.Fprintf(b, "profile_name: %q\n", profileName)
	fmt.Fprintf(b, "profile_url: %q\n", profileURL)
	fmt.Fprintf(b, "extraction_date: %q\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(b, "total_posts: %d\n", len(result.Posts))
	fmt.Fprintf(b, "unique_hashtags: %d\n", len(hashtags))
	fmt.Fprintf(b, "skipped_pages: %d\n", len(result.PageFailures))
	fmt.Fprintf(b, "partial: %t\n", result.Degraded)
	fmt.Fprintf(b, "generated_by: %q\n", "lnscraper")
	fmt.Fprintf(b, "---\n\n")
}

func writeHeader(b *strings.Builder, profileName, profileURL string, result partial.Result) {
	fmt.Fprintf(b, "# LinkedIn Posts - %s\n\n", profileName)
	fmt.Fprintf(b, "Extracted on %s from [%s](%s).\n\n",
		time.Now().Format("January 2, 2006 at 15:04"), profileName, profileURL)

	fmt.Fprintf(b, "## Summary\n\n")
	fmt.Fprintf(b, "- **Total posts:** %d\n", len(result.Posts))
	if len(result.PageFailures) > 0 {
		fmt.Fprintf(b, "- **Skipped pages:** %d\n", len(result.PageFailures))
		fmt.Fprintf(b, "- **Extraction success rate:** %.1f%%\n", result.SuccessRate()*100)
	}
	if result.Degraded {
		fmt.Fprintf(b, "\n> **Note:** extraction stopped early after repeated page failures. This document contains a partial result.\n")
	}

	hashtags := collectHashtags(result.Posts)
	if len(hashtags) > 0 {
		fmt.Fprintf(b, "\n### Top Hashtags (%d unique)\n\n", len(hashtags))
		top := hashtags
		if len(top) > 10 {
			top = top[:10]
		}
		for _, h := range top {
			fmt.Fprintf(b, "- %s\n", h)
		}
	}
	fmt.Fprintf(b, "\n---\n\n")
}

func writePosts(b *strings.Builder, posts []models.Post) {
	if len(posts) == 0 {
		fmt.Fprintf(b, "*No posts were found for this profile.*\n\n")
		return
	}

	fmt.Fprintf(b, "## Posts\n\n")
	for i, post := range posts {
		fmt.Fprintf(b, "### Post #%d\n\n", i+1)
		if post.Author != "" {
			fmt.Fprintf(b, "**Author:** %s\n\n", post.Author)
		}
		if post.PostedAt != nil {
			fmt.Fprintf(b, "**Posted:** %s\n\n", post.PostedAt.Format("January 2, 2006"))
		}

		fmt.Fprintf(b, "%s\n\n", post.Content)

		if len(post.Engagement) > 0 {
			keys := make([]string, 0, len(post.Engagement))
			for k := range post.Engagement {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s: %d", k, post.Engagement[k]))
			}
			fmt.Fprintf(b, "*Engagement: %s*\n\n", strings.Join(parts, ", "))
		}

		if post.PostURL != "" {
			fmt.Fprintf(b, "[View on LinkedIn](%s)\n\n", post.PostURL)
		}
		fmt.Fprintf(b, "---\n\n")
	}
}

func writeFooter(b *strings.Builder, result partial.Result) {
	if len(result.PageFailures) > 0 {
		fmt.Fprintf(b, "## Skipped Pages\n\n")
		fmt.Fprintf(b, "The following pages could not be extracted and are not included above:\n\n")
		for _, f := range result.PageFailures {
			fmt.Fprintf(b, "- page at %q: %s\n", f.Marker, f.Reason)
		}
		fmt.Fprintf(b, "\n")
	}

	fmt.Fprintf(b, "*Generated by lnscraper on %s.*\n", time.Now().Format(time.RFC3339))
}

func collectHashtags(posts []models.Post) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range posts {
		for _, h := range p.Hashtags {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
	}
	sort.Strings(out)
	return out
}
