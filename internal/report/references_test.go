// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-agent/pkg/types"
)

func referenceCorpus() []types.RankedPaper {
	return []types.RankedPaper{
		{PaperRecord: types.PaperRecord{
			Title: "Surface codes: Towards practical computation", Authors: []string{"Austin G. Fowler", "John Martinis"},
			Year: 2012, Source: types.SourceSemanticScholar, SourceID: "10.1103/PhysRevA.86.032324",
		}, Rank: 1},
		{PaperRecord: types.PaperRecord{
			Title: "Surface code decoding & matching", Authors: []string{"Austin Fowler"},
			Year: 2012, Source: types.SourceArxiv, SourceID: "1208.0928", URL: "https://arxiv.org/abs/1208.0928",
		}, Rank: 2},
		{PaperRecord: types.PaperRecord{
			Title: "A blog", Authors: []string{"Plato"}, Source: types.SourceWeb, URL: "https://example.com/post",
		}, Rank: 3},
		{PaperRecord: types.PaperRecord{Title: "", Source: types.SourceWeb}, Rank: 4},
	}
}

func TestCitationKeys(t *testing.T) {
	keys := citationKeys(referenceCorpus())
	assert.Equal(t, []string{"fowler2012surface", "fowler2012surfacea", "platoblog", "ref4"}, keys)
}

func TestWriteCSL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSL(&buf, referenceCorpus()))

	var items []CSLItem
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &items))
	require.Len(t, items, 4)

	assert.Equal(t, "fowler2012surface", items[0].ID)
	assert.Equal(t, "article-journal", items[0].Type)
	assert.Equal(t, "10.1103/PhysRevA.86.032324", items[0].DOI)
	assert.Equal(t, []CSLName{{Given: "Austin G.", Family: "Fowler"}, {Given: "John", Family: "Martinis"}}, items[0].Author)
	assert.Equal(t, [][]int{{2012}}, items[0].Issued.DateParts)

	assert.Equal(t, "article", items[1].Type)
	assert.Empty(t, items[1].DOI, "arXiv IDs are not DOIs")

	assert.Equal(t, "webpage", items[2].Type)
	assert.Equal(t, []CSLName{{Literal: "Plato"}}, items[2].Author)
	assert.Nil(t, items[2].Issued)
}

func TestWriteBibTeX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBibTeX(&buf, referenceCorpus()[:3]))
	out := buf.String()

	assert.Contains(t, out, "@article{fowler2012surface,\n")
	assert.Contains(t, out, "  author = {Austin G. Fowler and John Martinis},\n")
	assert.Contains(t, out, "  doi = {10.1103/PhysRevA.86.032324},\n")
	assert.Contains(t, out, `  title = {Surface code decoding \& matching},`)
	assert.Contains(t, out, "@misc{platoblog,\n")
	assert.NotContains(t, out, "year = {0}")
}

func TestSaveStateReferences(t *testing.T) {
	dir := t.TempDir()
	state := types.ResearchState{Topic: "surface codes", Corpus: referenceCorpus()}

	bib := filepath.Join(dir, "refs.bib")
	require.NoError(t, SaveState(bib, state))
	data, err := os.ReadFile(bib)
	require.NoError(t, err)
	assert.Contains(t, string(data), "@article{fowler2012surface,")

	csl := filepath.Join(dir, "refs.csl")
	require.NoError(t, SaveState(csl, state))
	data, err = os.ReadFile(csl)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id: fowler2012surface")
}
