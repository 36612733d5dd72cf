package reconcile

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"treemirror/node"
	"treemirror/strutil"
)

// Matches reports whether a node hits the query: case-insensitive substring
// on name or classification.
func Matches(n *node.Node, query string) bool {
	q := strutil.NormalizeLower(query)
	if q == "" {
		return false
	}
	return strings.Contains(strings.ToLower(n.Name), q) ||
		strings.Contains(strings.ToLower(n.Class), q)
}

// VisiblePaths computes the display set for a query over the flat collection:
// every matching node plus all of its ancestors, so matching branches keep
// their structure while branches with no matching descendant disappear
// entirely. Returns nil for an empty query, meaning "show everything".
func VisiblePaths(nodes []node.Node, query string) map[string]bool {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	visible := make(map[string]bool)
	for i := range nodes {
		if !Matches(&nodes[i], query) {
			continue
		}
		for p := nodes[i].Path; p != ""; p = node.ParentPath(p) {
			if visible[p] {
				break // ancestors above are already in
			}
			visible[p] = true
		}
	}
	return visible
}

// BuildFiltered reconciles only the visible subset of the collection and
// marks the matching nodes. With an empty query it is identical to Build.
func BuildFiltered(nodes []node.Node, rootPath, query string) *TreeNode {
	visible := VisiblePaths(nodes, query)
	if visible == nil {
		return Build(nodes, rootPath)
	}
	subset := make([]node.Node, 0, len(visible))
	for i := range nodes {
		if visible[nodes[i].Path] {
			subset = append(subset, nodes[i])
		}
	}
	root := Build(subset, rootPath)
	markMatches(root, query)
	return root
}

func markMatches(root *TreeNode, query string) {
	stack := []*TreeNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n.Matched = !n.Placeholder && Matches(&n.Node, query)
		stack = append(stack, n.Children...)
	}
}

// RankMatches orders matching paths by edit distance between the node name
// and the query, closest first, so a client can jump straight to the best
// hit. Ties break by natural path order for determinism.
func RankMatches(nodes []node.Node, query string) []string {
	q := strutil.NormalizeLower(query)
	if q == "" {
		return nil
	}
	type ranked struct {
		path string
		dist int
	}
	var hits []ranked
	for i := range nodes {
		if !Matches(&nodes[i], query) {
			continue
		}
		hits = append(hits, ranked{
			path: nodes[i].Path,
			dist: levenshtein.ComputeDistance(strings.ToLower(nodes[i].Name), q),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return strutil.NaturalLess(hits[i].path, hits[j].path)
	})
	paths := make([]string, len(hits))
	for i, h := range hits {
		paths[i] = h.path
	}
	return paths
}
