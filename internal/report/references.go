// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-agent/pkg/types"
)

// CSLItem is one corpus entry in CSL-YAML form, readable by Pandoc and
// reference managers.
type CSLItem struct {
	ID       string    `yaml:"id"`
	Type     string    `yaml:"type"`
	Title    string    `yaml:"title"`
	Author   []CSLName `yaml:"author,omitempty"`
	Abstract string    `yaml:"abstract,omitempty"`
	Issued   *CSLDate  `yaml:"issued,omitempty"`
	DOI      string    `yaml:"DOI,omitempty"`
	URL      string    `yaml:"URL,omitempty"`
}

// CSLName is a person's name split into family and given parts.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate holds CSL date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// WriteCSL writes the corpus in rank order as a CSL-YAML list.
func WriteCSL(w io.Writer, corpus []types.RankedPaper) error {
	keys := citationKeys(corpus)
	items := make([]CSLItem, len(corpus))
	for i, p := range corpus {
		item := CSLItem{
			ID:       keys[i],
			Type:     cslType(p.Source),
			Title:    p.Title,
			Abstract: p.Abstract,
			URL:      p.URL,
		}
		for _, a := range p.Authors {
			item.Author = append(item.Author, splitName(a))
		}
		if p.Year > 0 {
			item.Issued = &CSLDate{DateParts: [][]int{{p.Year}}}
		}
		if doiPattern.MatchString(p.SourceID) {
			item.DOI = p.SourceID
		}
		items[i] = item
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// WriteBibTeX writes the corpus in rank order as BibTeX entries.
func WriteBibTeX(w io.Writer, corpus []types.RankedPaper) error {
	keys := citationKeys(corpus)
	var b strings.Builder
	for i, p := range corpus {
		kind := "article"
		if p.Source == types.SourceWeb {
			kind = "misc"
		}
		fmt.Fprintf(&b, "@%s{%s,\n", kind, keys[i])
		fmt.Fprintf(&b, "  title = {%s},\n", bibEscape(p.Title))
		if len(p.Authors) > 0 {
			fmt.Fprintf(&b, "  author = {%s},\n", bibEscape(strings.Join(p.Authors, " and ")))
		}
		if p.Year > 0 {
			fmt.Fprintf(&b, "  year = {%d},\n", p.Year)
		}
		if doiPattern.MatchString(p.SourceID) {
			fmt.Fprintf(&b, "  doi = {%s},\n", p.SourceID)
		}
		if p.URL != "" {
			fmt.Fprintf(&b, "  url = {%s},\n", p.URL)
		}
		b.WriteString("}\n\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// citationKeys builds surnameYEARword keys, suffixing a, b, ... on collisions.
func citationKeys(corpus []types.RankedPaper) []string {
	keys := make([]string, len(corpus))
	seen := make(map[string]int)
	for i, p := range corpus {
		base := keyPart(surname(p.Authors)) + yearPart(p.Year) + keyPart(firstWord(p.Title))
		if base == "" {
			base = fmt.Sprintf("ref%d", p.Rank)
		}
		n := seen[base]
		seen[base] = n + 1
		if n > 0 {
			base += string(rune('a' + (n-1)%26))
		}
		keys[i] = base
	}
	return keys
}

func surname(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	n := splitName(authors[0])
	if n.Family != "" {
		return n.Family
	}
	return n.Literal
}

func firstWord(title string) string {
	for _, w := range strings.Fields(title) {
		if len(w) > 3 {
			return w
		}
	}
	return ""
}

func yearPart(y int) string {
	if y <= 0 {
		return ""
	}
	return fmt.Sprint(y)
}

func keyPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitName splits on the last space. Single-token names use Literal.
func splitName(name string) CSLName {
	name = strings.TrimSpace(name)
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{Given: name[:idx], Family: name[idx+1:]}
}

func cslType(source string) string {
	switch source {
	case types.SourceWeb:
		return "webpage"
	case types.SourceArxiv:
		return "article"
	}
	return "article-journal"
}

var bibReplacer = strings.NewReplacer(`{`, `\{`, `}`, `\}`, `&`, `\&`, `%`, `\%`)

func bibEscape(s string) string { return bibReplacer.Replace(s) }
