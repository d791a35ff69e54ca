// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"sort"

	"github.com/pdiddy/research-agent/pkg/types"
)

// group collects the records sharing one identity.
type group struct {
	first   int   // index of the earliest member in the input
	keyed   []int // members carrying the group's title+surname key
	joiners []int // surname-less members that joined the only surname group
	linked  []int // surname-less members that joined one of several groups by URL
	url     map[string]bool
}

type membership int

const (
	keyedMember membership = iota
	joinedMember
	linkedMember
)

func (g *group) add(i int, rec types.PaperRecord, m membership) {
	switch m {
	case keyedMember:
		g.keyed = append(g.keyed, i)
	case joinedMember:
		g.joiners = append(g.joiners, i)
	default:
		g.linked = append(g.linked, i)
	}
	if u := rec.NormalizedURL(); u != "" {
		g.url[u] = true
	}
}

func newGroup(first int) *group {
	return &group{first: first, url: make(map[string]bool)}
}

// Dedup collapses records describing the same paper and returns one
// canonical record per paper, ordered by first appearance.
//
// Records with equal normalized title and first-author surname are the same
// paper. A record whose first author has no usable surname joins its title's
// group when exactly one such group exists; when several exist it joins only
// a group with an equal normalized URL. Untitled records are keyed by URL.
//
// The canonical record prefers a non-empty abstract, then the higher known
// citation count, then the earliest position. Surname-less members compete
// only when their title has a single surname group; a record linked by URL
// to one of several groups never represents it, since without a surname it
// would join a different group on the next pass. Dedup(Dedup(x)) == Dedup(x).
func Dedup(records []types.PaperRecord) []types.PaperRecord {
	var groups []*group
	byKey := make(map[string]*group)
	byTitle := make(map[string][]*group)

	var deferred []int
	for i, rec := range records {
		title := rec.NormalizedTitle()
		if title == "" {
			u := rec.NormalizedURL()
			if u == "" {
				g := newGroup(i)
				g.add(i, rec, keyedMember)
				groups = append(groups, g)
				continue
			}
			key := "url:" + u
			g, ok := byKey[key]
			if !ok {
				g = newGroup(i)
				byKey[key] = g
				groups = append(groups, g)
			}
			g.add(i, rec, keyedMember)
			continue
		}
		surname := rec.FirstAuthorSurname()
		if surname == "" {
			deferred = append(deferred, i)
			continue
		}
		key := title + "|" + surname
		g, ok := byKey[key]
		if !ok {
			g = newGroup(i)
			byKey[key] = g
			byTitle[title] = append(byTitle[title], g)
			groups = append(groups, g)
		}
		g.add(i, records[i], keyedMember)
	}

	// Surname-less records are placed once every surname group is known,
	// so the result does not depend on input order.
	for _, i := range deferred {
		rec := records[i]
		title := rec.NormalizedTitle()
		candidates := byTitle[title]

		if len(candidates) == 1 {
			candidates[0].add(i, rec, joinedMember)
			if i < candidates[0].first {
				candidates[0].first = i
			}
			continue
		}

		u := rec.NormalizedURL()
		var target *group
		if len(candidates) > 1 && u != "" {
			for _, g := range candidates {
				if g.url[u] {
					target = g
					break
				}
			}
		}
		if target != nil {
			target.add(i, rec, linkedMember)
			if i < target.first {
				target.first = i
			}
			continue
		}

		// No surname group for the title: surname-less records merge among
		// themselves. With several surname groups and no URL match they merge
		// only with each other on URL.
		key := title + "|"
		if len(candidates) > 1 {
			key += "url:" + u
		}
		g, ok := byKey[key]
		if !ok || (len(candidates) > 1 && u == "") {
			g = newGroup(i)
			if u != "" || len(candidates) == 0 {
				byKey[key] = g
			}
			groups = append(groups, g)
		}
		g.add(i, rec, keyedMember)
	}

	sort.SliceStable(groups, func(a, b int) bool { return groups[a].first < groups[b].first })

	out := make([]types.PaperRecord, 0, len(groups))
	for _, g := range groups {
		members := append(append([]int(nil), g.keyed...), g.joiners...)
		if len(members) == 0 {
			members = g.linked
		}
		sort.Ints(members)
		out = append(out, records[canonical(records, members)])
	}
	return out
}

// canonical returns the index of the most complete record among members,
// which are in input order.
func canonical(records []types.PaperRecord, members []int) int {
	best := members[0]
	for _, i := range members[1:] {
		if moreComplete(records[i], records[best]) {
			best = i
		}
	}
	return best
}

// moreComplete reports whether a should replace b as canonical. Equal
// records keep the earlier one.
func moreComplete(a, b types.PaperRecord) bool {
	ha, hb := a.Abstract != "", b.Abstract != ""
	if ha != hb {
		return ha
	}
	ca, okA := a.CitationCount()
	cb, okB := b.CitationCount()
	if okA != okB {
		return okA
	}
	return okA && ca > cb
}
