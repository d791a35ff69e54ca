// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pdiddy/research-agent/pkg/types"
)

// fingerprint is the canonical form hashed into a cache key.
type fingerprint struct {
	Source     string        `json:"s"`
	Text       string        `json:"q"`
	Filters    types.Filters `json:"f"`
	MaxResults int           `json:"n,omitempty"`
}

// Key returns the cache key for q: a SHA-256 over the source, the query
// text lowercased with whitespace collapsed, and the canonical filter set.
// Two queries that differ only in filter ordering or letter case share a
// key.
func Key(q types.SourceQuery) string {
	fp := fingerprint{
		Source:     strings.ToLower(strings.TrimSpace(q.Source)),
		Text:       strings.Join(strings.Fields(strings.ToLower(q.Text)), " "),
		Filters:    q.Filters.Canonical(),
		MaxResults: q.MaxResults,
	}
	// Marshaling a struct of strings, ints, and string slices cannot fail.
	b, _ := json.Marshal(fp)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
