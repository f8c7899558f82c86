// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedupe folds catalog rows that share an identity key into one
// canonical row. Grouping runs over an integer-indexed union-find arena
// so the merge logic is testable without storage.
package dedupe

import "sort"

// arena is a union-find over string identifiers. Each identifier maps
// to an integer node; find compresses paths; union keeps the node whose
// rank value is smallest as root, so ordering by creation time makes
// the earliest-created row canonical.
type arena struct {
	ids    []string
	index  map[string]int
	parent []int
	rank   []string // creation-order tiebreak, smaller wins root
}

func newArena() *arena {
	return &arena{index: make(map[string]int)}
}

// add registers an identifier with its ordering key. Re-adding is a
// no-op.
func (a *arena) add(id, order string) int {
	if n, ok := a.index[id]; ok {
		return n
	}
	n := len(a.ids)
	a.ids = append(a.ids, id)
	a.index[id] = n
	a.parent = append(a.parent, n)
	a.rank = append(a.rank, order)
	return n
}

func (a *arena) find(n int) int {
	for a.parent[n] != n {
		a.parent[n] = a.parent[a.parent[n]] // path halving
		n = a.parent[n]
	}
	return n
}

func (a *arena) union(x, y int) {
	rx, ry := a.find(x), a.find(y)
	if rx == ry {
		return
	}
	// Earlier creation order (then smaller id, for determinism) roots.
	if a.rank[ry] < a.rank[rx] || (a.rank[ry] == a.rank[rx] && a.ids[ry] < a.ids[rx]) {
		rx, ry = ry, rx
	}
	a.parent[ry] = rx
}

// Group is one duplicate set: the canonical identifier and the members
// to fold into it.
type Group struct {
	Canonical  string
	Duplicates []string
}

// groups extracts every component with more than one member, duplicates
// sorted for deterministic output.
func (a *arena) groups() []Group {
	members := make(map[int][]string)
	for n, id := range a.ids {
		root := a.find(n)
		if root != n {
			members[root] = append(members[root], id)
		}
	}
	out := make([]Group, 0, len(members))
	for root, dups := range members {
		sort.Strings(dups)
		out = append(out, Group{Canonical: a.ids[root], Duplicates: dups})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}
