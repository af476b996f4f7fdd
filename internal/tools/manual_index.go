package tools

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// chunkTarget is the preferred size of an indexed passage in characters.
const chunkTarget = 800

// KeywordIndex is a BM25 manual index backed by Bleve.
type KeywordIndex struct {
	index bleve.Index
}

// OpenKeywordIndex opens the index at path, creating it when missing.
// An empty path gives an in-memory index.
func OpenKeywordIndex(path string) (*KeywordIndex, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildManualMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create manual index: %w", err)
		}
		return &KeywordIndex{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		idx, err = bleve.New(path, buildManualMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create manual index: %w", err)
		}
		log.Printf("[Manual] index created at %s", path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open manual index: %w", err)
	}
	return &KeywordIndex{index: idx}, nil
}

func buildManualMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	chunkMapping := bleve.NewDocumentMapping()

	sourceField := bleve.NewTextFieldMapping()
	sourceField.Analyzer = keyword.Name
	sourceField.Store = true
	chunkMapping.AddFieldMappingsAt("source", sourceField)

	passageField := bleve.NewTextFieldMapping()
	passageField.Analyzer = keyword.Name
	passageField.Store = true
	passageField.Index = false
	chunkMapping.AddFieldMappingsAt("passage", passageField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	chunkMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = chunkMapping
	return indexMapping
}

// AddDocument chunks a manual by paragraph and indexes every chunk.
// Returns the number of chunks written.
func (k *KeywordIndex) AddDocument(doc Document) (int, error) {
	chunks := ChunkText(doc.Text, chunkTarget)
	batch := k.index.NewBatch()
	for i, c := range chunks {
		id := fmt.Sprintf("%s#%d", doc.Source, i+1)
		err := batch.Index(id, map[string]any{
			"source":  doc.Source,
			"passage": strconv.Itoa(i + 1),
			"content": c,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to index %s: %w", id, err)
		}
	}
	if err := k.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to write manual batch: %w", err)
	}
	return len(chunks), nil
}

// IndexDir loads every supported manual under dir. Manuals are keyed by their
// slash-separated path relative to dir so that same-named files in different
// folders do not overwrite each other.
func (k *KeywordIndex) IndexDir(dir string) (int, error) {
	total := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md", ".html", ".htm":
		default:
			return nil
		}
		doc, err := LoadManualFile(path)
		if err != nil {
			log.Printf("[Manual] skipping %s: %v", path, err)
			return nil
		}
		if rel, err := filepath.Rel(dir, path); err == nil {
			doc.Source = filepath.ToSlash(rel)
		}
		n, err := k.AddDocument(doc)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	return total, err
}

func (k *KeywordIndex) Search(ctx context.Context, query string, size int) ([]Passage, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField("content")

	req := bleve.NewSearchRequest(q)
	req.Size = size
	req.Fields = []string{"source", "passage", "content"}

	res, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("manual index search failed: %w", err)
	}

	out := make([]Passage, 0, len(res.Hits))
	for _, hit := range res.Hits {
		p := Passage{Score: hit.Score}
		if s, ok := hit.Fields["content"].(string); ok {
			p.Content = s
		}
		if s, ok := hit.Fields["source"].(string); ok {
			p.Source = s
		}
		if s, ok := hit.Fields["passage"].(string); ok {
			p.Chunk = s
		}
		out = append(out, p)
	}
	return out, nil
}

// Count returns the number of indexed chunks.
func (k *KeywordIndex) Count() (uint64, error) {
	return k.index.DocCount()
}

func (k *KeywordIndex) Close() error {
	return k.index.Close()
}

// ChunkText groups paragraphs into passages of roughly target characters.
// A single paragraph longer than target is kept whole.
func ChunkText(text string, target int) []string {
	paras := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var chunks []string
	var cur strings.Builder
	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p)+2 > target {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
