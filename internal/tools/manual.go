package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/vectorstores"
)

// Passage is one ranked hit from a manual backend.
type Passage struct {
	Content string
	Source  string
	Page    string
	// Chunk is the 1-based passage number within Source when the backend
	// splits manuals itself and has no real page numbers.
	Chunk string
	Score float64
}

// Searcher is the manual search backend.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Passage, error)
}

const noManualHits = "No relevant information found."

// ManualTool searches technical manuals and troubleshooting procedures.
type ManualTool struct {
	Backend Searcher
	TopK    int
}

func NewManualTool(backend Searcher, topK int) *ManualTool {
	if topK <= 0 {
		topK = 3
	}
	return &ManualTool{Backend: backend, TopK: topK}
}

func (m *ManualTool) Name() string {
	return "manual"
}

func (m *ManualTool) Description() string {
	return "Search equipment manuals for procedures, specifications, error codes and safety information."
}

func (m *ManualTool) Execute(ctx context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("empty manual query")
	}
	hits, err := m.Backend.Search(ctx, ExpandQuery(input), m.TopK)
	if err != nil {
		return "", fmt.Errorf("manual search failed: %w", err)
	}
	if len(hits) == 0 {
		return noManualHits, nil
	}

	lines := make([]string, 0, len(hits))
	for i, h := range hits {
		preview := truncateRunes(strings.Join(strings.Fields(h.Content), " "), 200)
		source := h.Source
		if source == "" {
			source = "Unknown"
		}
		switch {
		case h.Page != "":
			lines = append(lines, fmt.Sprintf("%d. %s (Source: %s, page %s)", i+1, preview, source, h.Page))
		case h.Chunk != "":
			lines = append(lines, fmt.Sprintf("%d. %s (Source: %s, passage %s)", i+1, preview, source, h.Chunk))
		default:
			lines = append(lines, fmt.Sprintf("%d. %s (Source: %s)", i+1, preview, source))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// truncateRunes keeps the first n characters of s and marks the cut.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Shorthand used by operators, expanded before search. Order matters only for
// readability; every rule matches on word boundaries.
var queryExpansions = []struct {
	re   *regexp.Regexp
	full string
}{
	{regexp.MustCompile(`\btemp\b`), "temperature"},
	{regexp.MustCompile(`\bpress\b`), "pressure"},
	{regexp.MustCompile(`\bvib\b`), "vibration"},
	{regexp.MustCompile(`\brpm\b`), "rotations per minute"},
	{regexp.MustCompile(`\bpsi\b`), "pressure"},
	{regexp.MustCompile(`\berr\b`), "error"},
	{regexp.MustCompile(`\btroubleshoot\b`), "troubleshooting diagnosis problem"},
	{regexp.MustCompile(`\bfix\b`), "repair solution troubleshooting"},
	{regexp.MustCompile(`\balarm\b`), "error alarm warning"},
	{regexp.MustCompile(`\bfault\b`), "error fault problem"},
	{regexp.MustCompile(`\bmaintenance\b`), "maintenance service repair"},
	{regexp.MustCompile(`\bcalibration\b`), "calibration adjustment setup"},
	{regexp.MustCompile(`\binstallation\b`), "installation setup configuration"},
}

// ExpandQuery lower-cases the query and expands operator shorthand.
func ExpandQuery(q string) string {
	out := strings.ToLower(strings.TrimSpace(q))
	for _, e := range queryExpansions {
		out = e.re.ReplaceAllString(out, e.full)
	}
	return out
}

// VectorSearcher adapts a langchaingo vector store.
type VectorSearcher struct {
	Store vectorstores.VectorStore
}

func (v VectorSearcher) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	docs, err := v.Store.SimilaritySearch(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]Passage, 0, len(docs))
	for _, d := range docs {
		out = append(out, Passage{
			Content: d.PageContent,
			Source:  metaString(d.Metadata, "source_file", "source"),
			Page:    metaString(d.Metadata, "page_number", "page"),
			Score:   float64(d.Score),
		})
	}
	return out, nil
}

func metaString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}
