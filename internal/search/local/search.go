package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/reflow-agent/reflow/internal/search/models"
)

// doc is the indexed shape of one file.
type doc struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Search answers queries from a BM25 index built over the text files in
// a local directory. It needs no API key, which makes it the default for
// tests and air-gapped deployments.
type Search struct {
	mu    sync.RWMutex
	index bleve.Index
	docs  map[string]doc
}

// New builds a memory-only index over the .txt and .md files under dir.
func New(dir string) (*Search, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	s := &Search{index: index, docs: make(map[string]doc)}
	if dir == "" {
		return s, nil
	}
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return s.Add(path, strings.TrimSuffix(filepath.Base(path), ext), string(data))
	})
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", dir, err)
	}
	return s, nil
}

// Add indexes one document under the given id.
func (s *Search) Add(id, title, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := doc{Path: id, Title: title, Text: text}
	s.docs[id] = d
	return s.index.Index(id, d)
}

func (s *Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k, 0, false)
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, err := s.index.SearchInContext(ctx, searchReq)
	if err != nil {
		return nil, err
	}
	var out []models.Result
	for _, hit := range res.Hits {
		d := s.docs[hit.ID]
		out = append(out, models.Result{
			Title:   d.Title,
			URL:     "file://" + d.Path,
			Snippet: snippet(d.Text),
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func snippet(s string) string {
	if len(s) <= 300 {
		return s
	}
	return s[:300] + "…"
}
