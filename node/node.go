// Package node defines the canonical node structure shared by the producer and
// consumer pipelines: path helpers, the open property map, content hashing for
// change detection, and the delta type exchanged between snapshots.
package node

import (
	"sort"
	"strings"
)

// PathSeparator joins ancestor names into a node path. Names themselves must
// not contain it; the collector sanitizes names on the way in.
const PathSeparator = "."

// Node represents one object in the mirrored hierarchy in canonical form.
// Path is the primary key on both sides of the wire. ID is informational and
// changes when the underlying object is recreated, so it must never be used
// for correlation across snapshots.
type Node struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Class      string           `json:"class"`
	Path       string           `json:"path"`
	ParentPath string           `json:"parentPath,omitempty"`
	Props      map[string]Value `json:"props,omitempty"`
	ChildNames []string         `json:"childNames,omitempty"`
}

// Delta carries the changes between two snapshots. Added and Modified are
// disjoint by construction; Removed holds paths only, never full nodes.
type Delta struct {
	Added    []Node   `json:"added"`
	Modified []Node   `json:"modified"`
	Removed  []string `json:"removed"`
}

// Empty reports whether the delta carries no changes at all.
func (d *Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// Size returns the total number of change entries across all three sets.
func (d *Delta) Size() int {
	return len(d.Added) + len(d.Modified) + len(d.Removed)
}

// ParentPath derives the parent path by stripping the last segment. Returns
// the empty string for a single-segment (root) path. This derivation is
// authoritative for tree placement; the stored ParentPath field is
// informational and may lag behind a rename.
func ParentPath(path string) string {
	idx := strings.LastIndex(path, PathSeparator)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// LastSegment returns the final name segment of a path.
func LastSegment(path string) string {
	idx := strings.LastIndex(path, PathSeparator)
	if idx < 0 {
		return path
	}
	return path[idx+len(PathSeparator):]
}

// JoinPath appends a child name to a parent path.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + PathSeparator + name
}

// Segments splits a path into its ancestor-name chain.
func Segments(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}

// SanitizeName strips the path separator out of a display name so a single
// object can never masquerade as a deeper path on the wire.
func SanitizeName(name string) string {
	return strings.ReplaceAll(name, PathSeparator, "_")
}

// SortedPropKeys returns the property keys in ascending order. Hashing and
// display both need a stable iteration order over the open property map.
func SortedPropKeys(props map[string]Value) []string {
	if len(props) == 0 {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
