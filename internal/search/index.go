// Package search builds a per-snapshot full-text index over posts, entries
// and pages.
package search

import (
	"fmt"
	"sort"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Document is one searchable unit.
type Document struct {
	ID      string
	Kind    string
	Title   string
	Content string
	Tags    []string
	Path    string
	Date    time.Time
}

// Hit is a single search result.
type Hit struct {
	ID        string
	Kind      string
	Title     string
	Path      string
	Score     float64
	Fragments map[string][]string
}

// Index wraps an in-memory bleve index. It is read-only after Build.
type Index struct {
	index bleve.Index
	count int
}

func buildIndexMapping() mapping.IndexMapping {
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"

	contentFieldMapping := bleve.NewTextFieldMapping()
	contentFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	stored := bleve.NewTextFieldMapping()
	stored.Index = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Content", contentFieldMapping)
	docMapping.AddFieldMappingsAt("Tags", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Kind", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Path", stored)
	docMapping.AddFieldMappingsAt("Date", bleve.NewDateTimeFieldMapping())
	docMapping.AddFieldMappingsAt("ID", stored)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)
	indexMapping.DefaultAnalyzer = "en"

	return indexMapping
}

// Build indexes docs in one batch.
func Build(docs []Document) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	batch := idx.NewBatch()
	for i := range docs {
		doc := docs[i]
		if err := batch.Index(doc.ID, doc); err != nil {
			_ = idx.Close()

			return nil, fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()

		return nil, fmt.Errorf("commit batch: %w", err)
	}

	return &Index{index: idx, count: len(docs)}, nil
}

// Search runs a query-string query. Results are ordered by score, then ID.
func (i *Index) Search(queryStr string, limit int) ([]Hit, error) {
	if i == nil || queryStr == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := bleve.NewQueryStringQuery(queryStr)
	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("Content")
	req.Fields = []string{"Title", "Kind", "Path"}

	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		hit := Hit{ID: h.ID, Score: h.Score, Fragments: h.Fragments}
		if v, ok := h.Fields["Title"].(string); ok {
			hit.Title = v
		}
		if v, ok := h.Fields["Kind"].(string); ok {
			hit.Kind = v
		}
		if v, ok := h.Fields["Path"].(string); ok {
			hit.Path = v
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}

		return hits[a].ID < hits[b].ID
	})

	return hits, nil
}

// Len returns the number of indexed documents.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}

	return i.count
}

// Close releases the index.
func (i *Index) Close() error {
	if i == nil {
		return nil
	}

	return i.index.Close()
}
