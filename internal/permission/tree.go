// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package permission implements the hierarchical permission tree.
//
// Permissions are opaque colon-delimited strings ("calendar:events:write").
// Declared permissions form a prefix tree; assigning a permission grants the
// permission itself plus every declared permission underneath it. Strings
// that were never declared are still valid opaque tokens: expanding them
// yields the string unchanged.
//
// A Tree is immutable after construction. Configuration reloads build a new
// Tree and swap it in; readers never need a lock.
package permission

import (
	"fmt"
	"slices"
	"strings"
)

// Separator splits hierarchy levels within a permission string.
const Separator = ":"

type node struct {
	children map[string]*node

	// declared marks nodes that correspond to a configured permission
	// string, as opposed to intermediate grouping segments.
	declared bool
}

// Tree is the read-only prefix tree over all declared permission strings.
type Tree struct {
	root *node
}

// NewTree builds a permission tree from the declared permission list.
// It fails if any string contains an empty segment (leading, trailing or
// doubled colon) or appears twice. Given identical input it always produces
// an equivalent tree.
func NewTree(declared []string) (*Tree, error) {
	root := &node{children: make(map[string]*node)}

	for _, perm := range declared {
		segments, err := split(perm)
		if err != nil {
			return nil, err
		}

		cur := root
		for _, seg := range segments {
			child, ok := cur.children[seg]
			if !ok {
				child = &node{children: make(map[string]*node)}
				cur.children[seg] = child
			}
			cur = child
		}

		if cur.declared {
			return nil, fmt.Errorf("duplicate permission %q", perm)
		}
		cur.declared = true
	}

	return &Tree{root: root}, nil
}

// split validates and splits a permission string into its segments.
func split(perm string) ([]string, error) {
	if perm == "" {
		return nil, fmt.Errorf("empty permission string")
	}

	segments := strings.Split(perm, Separator)
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("permission %q contains an empty segment", perm)
		}
	}

	return segments, nil
}

// Expand returns the assigned permission itself plus every declared
// permission in the subtree the assigned string addresses. Unknown
// permissions expand to themselves: they are opaque tokens other services
// may interpret, not errors.
func (t *Tree) Expand(assigned string) []string {
	cur := t.root
	for _, seg := range strings.Split(assigned, Separator) {
		child, ok := cur.children[seg]
		if !ok {
			return []string{assigned}
		}
		cur = child
	}

	set := []string{assigned}
	for name, child := range cur.children {
		set = child.collect(assigned+Separator+name, set)
	}

	return set
}

// collect appends every declared permission in the subtree to set.
func (n *node) collect(prefix string, set []string) []string {
	if n.declared {
		set = append(set, prefix)
	}
	for name, child := range n.children {
		set = child.collect(prefix+Separator+name, set)
	}
	return set
}

// ExpandAll expands each assigned permission and returns the deduplicated
// union, sorted. Callers must treat the result as a set.
func (t *Tree) ExpandAll(assigned []string) []string {
	set := make([]string, 0, len(assigned))
	for _, perm := range assigned {
		set = append(set, t.Expand(perm)...)
	}

	slices.Sort(set)
	return slices.Compact(set)
}
