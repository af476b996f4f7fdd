package tools

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Document is the clean text of one manual.
type Document struct {
	Source string
	Title  string
	Text   string
}

// maxDocumentChars bounds how much of a single manual is indexed.
const maxDocumentChars = 500000

// LoadManualFile reads a manual from disk. HTML is reduced to its readable
// text; plain text and markdown are used as is.
func LoadManualFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read manual: %w", err)
	}
	source := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		u := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
		return ExtractHTML(bytes.NewReader(data), u, source)
	case ".txt", ".md":
		return Document{Source: source, Title: source, Text: clip(string(data))}, nil
	}
	return Document{}, fmt.Errorf("unsupported manual format: %s", source)
}

// FetchManualPage downloads a manual page published on a vendor portal.
func FetchManualPage(ctx context.Context, rawURL string) (Document, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "plantdoc-indexer/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse URL: %w", err)
	}
	return ExtractHTML(resp.Body, parsedURL, rawURL)
}

// ExtractHTML pulls the main content out of an HTML manual page.
func ExtractHTML(r io.Reader, pageURL *url.URL, source string) (Document, error) {
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse manual page: %w", err)
	}

	// Strip anything readability left behind.
	p := bluemonday.StrictPolicy()
	text := html.UnescapeString(p.Sanitize(article.TextContent))

	title := article.Title
	if title == "" {
		title = source
	}
	return Document{Source: source, Title: title, Text: clip(text)}, nil
}

func clip(s string) string {
	if len(s) <= maxDocumentChars {
		return s
	}
	cut := maxDocumentChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
