// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/lang/en"

	"github.com/pdiddy/research-agent/pkg/types"
)

// indexedPaper is the document stored for each corpus entry.
type indexedPaper struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Authors  string `json:"authors"`
}

// CorpusIndex is an in-memory full-text index over a ranked corpus. It
// selects the papers an interactive answer is grounded on.
type CorpusIndex struct {
	index  bleve.Index
	corpus []types.RankedPaper
}

// NewCorpusIndex indexes title, abstract, and authors of every paper.
func NewCorpusIndex(corpus []types.RankedPaper) (*CorpusIndex, error) {
	mapping := bleve.NewIndexMapping()
	mapping.DefaultAnalyzer = en.AnalyzerName
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("creating corpus index: %w", err)
	}

	batch := idx.NewBatch()
	for i, p := range corpus {
		doc := indexedPaper{Title: p.Title, Abstract: p.Abstract}
		for j, a := range p.Authors {
			if j > 0 {
				doc.Authors += ", "
			}
			doc.Authors += a
		}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			idx.Close()
			return nil, fmt.Errorf("indexing paper %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return nil, fmt.Errorf("writing corpus index: %w", err)
	}
	return &CorpusIndex{index: idx, corpus: corpus}, nil
}

// Search returns up to n papers matching text, best match first. When
// nothing matches it returns the top of the corpus by rank.
func (c *CorpusIndex) Search(text string, n int) ([]types.RankedPaper, error) {
	if n <= 0 {
		n = 5
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(text), n, 0, false)
	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching corpus: %w", err)
	}

	out := make([]types.RankedPaper, 0, n)
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(c.corpus) {
			continue
		}
		out = append(out, c.corpus[i])
	}
	if len(out) == 0 {
		if n > len(c.corpus) {
			n = len(c.corpus)
		}
		out = append(out, c.corpus[:n]...)
	}
	return out, nil
}

// Close releases the index.
func (c *CorpusIndex) Close() error {
	return c.index.Close()
}
