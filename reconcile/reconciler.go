// Package reconcile converts the flat path-keyed collection into a rooted
// display tree. Reconciliation is a pure function of the collection: the same
// input always yields the same shape, including the same synthesized
// placeholders, so it can simply re-run after every ingestion update instead
// of patching the tree incrementally.
package reconcile

import (
	"sort"

	"treemirror/node"
	"treemirror/strutil"
)

// DefaultRootPath is the designated root of the mirrored hierarchy.
const DefaultRootPath = "game"

// PlaceholderClass is the best-guess classification for synthesized ancestors
// whose segment name is not a well-known container.
const PlaceholderClass = "Folder"

// RootClass is the classification of a synthesized root.
const RootClass = "DataModel"

// knownContainers maps well-known top-level container names to their
// classification, used both for placeholder synthesis and child ordering.
var knownContainers = map[string]string{
	"Workspace":         "Workspace",
	"Players":           "Players",
	"Lighting":          "Lighting",
	"ReplicatedFirst":   "ReplicatedFirst",
	"ReplicatedStorage": "ReplicatedStorage",
	"ServerScriptService": "ServerScriptService",
	"ServerStorage":     "ServerStorage",
	"StarterGui":        "StarterGui",
	"StarterPack":       "StarterPack",
	"StarterPlayer":     "StarterPlayer",
	"SoundService":      "SoundService",
}

// containerPriority fixes the display order of the root's well-known direct
// children. Everything else sorts after these, alphabetically.
var containerPriority = []string{
	"Workspace",
	"Players",
	"Lighting",
	"ReplicatedFirst",
	"ReplicatedStorage",
	"ServerScriptService",
	"ServerStorage",
	"StarterGui",
	"StarterPack",
	"StarterPlayer",
	"SoundService",
}

// TreeNode is one node of the reconciled display tree. Placeholder marks
// synthesized ancestors that were missing from the collection; Matched marks
// search hits.
type TreeNode struct {
	Node        node.Node
	Children    []*TreeNode
	Placeholder bool
	Matched     bool
}

// HasChildren reports whether the node currently has attached children.
func (t *TreeNode) HasChildren() bool { return len(t.Children) > 0 }

// Build reconciles the flat collection into a rooted tree. A missing root is
// synthesized; orphans are resolved by synthesizing placeholder ancestors; a
// node with no resolvable ancestor at all attaches under the root, so data is
// never dropped. The stored ParentPath field is ignored for placement: the
// parent derived from Path is authoritative, since the field may lag a
// rename.
func Build(nodes []node.Node, rootPath string) *TreeNode {
	if rootPath == "" {
		rootPath = DefaultRootPath
	}

	index := make(map[string]*TreeNode, len(nodes)+1)
	for i := range nodes {
		// Last writer wins on duplicate paths, matching ingest semantics.
		index[nodes[i].Path] = &TreeNode{Node: nodes[i]}
	}

	root, ok := index[rootPath]
	if !ok {
		root = &TreeNode{
			Node: node.Node{
				Name:  node.LastSegment(rootPath),
				Class: RootClass,
				Path:  rootPath,
			},
			Placeholder: true,
		}
		index[rootPath] = root
	}

	// Sorted iteration makes placeholder synthesis order deterministic.
	paths := make([]string, 0, len(index))
	for p := range index {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	attached := map[string]bool{rootPath: true}
	for _, p := range paths {
		attachPath(p, rootPath, index, attached)
	}

	sortTree(root, rootPath)
	return root
}

// attachPath links the node at path under its nearest resolvable ancestor,
// synthesizing placeholders for every missing segment in between. Iterative:
// it first collects the missing ancestor chain, then attaches top-down.
func attachPath(path, rootPath string, index map[string]*TreeNode, attached map[string]bool) {
	if attached[path] {
		return
	}

	// Walk upward collecting ancestors that need synthesis until an existing
	// (or root) anchor is found.
	var missing []string
	anchor := node.ParentPath(path)
	for anchor != "" && anchor != rootPath {
		if _, ok := index[anchor]; ok {
			break
		}
		missing = append(missing, anchor)
		anchor = node.ParentPath(anchor)
	}
	if anchor == "" {
		// No ancestor at all: fall back to the root. The missing chain still
		// gets synthesized so siblings share the same placeholders.
		anchor = rootPath
	}

	// Attach the missing chain top-down under the anchor.
	parent := anchor
	for i := len(missing) - 1; i >= 0; i-- {
		p := missing[i]
		ph := &TreeNode{
			Node: node.Node{
				Name:  node.LastSegment(p),
				Class: placeholderClass(node.LastSegment(p)),
				Path:  p,
			},
			Placeholder: true,
		}
		index[p] = ph
		link(index, parent, p, attached)
		parent = p
	}
	link(index, parent, path, attached)
}

func link(index map[string]*TreeNode, parentPath, childPath string, attached map[string]bool) {
	if attached[childPath] {
		return
	}
	index[parentPath].Children = append(index[parentPath].Children, index[childPath])
	attached[childPath] = true
}

func placeholderClass(name string) string {
	if class, ok := knownContainers[name]; ok {
		return class
	}
	return PlaceholderClass
}

// sortTree orders every sibling list: the root's direct children follow the
// fixed container priority first, then the natural order used everywhere
// else. Iterative with an explicit stack.
func sortTree(root *TreeNode, rootPath string) {
	stack := []*TreeNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Node.Path == rootPath {
			sort.SliceStable(n.Children, func(i, j int) bool {
				return rootChildLess(n.Children[i].Node.Name, n.Children[j].Node.Name)
			})
		} else {
			sort.SliceStable(n.Children, func(i, j int) bool {
				return strutil.NaturalLess(n.Children[i].Node.Name, n.Children[j].Node.Name)
			})
		}
		stack = append(stack, n.Children...)
	}
}

func rootChildLess(a, b string) bool {
	pa, pb := priorityOf(a), priorityOf(b)
	if pa != pb {
		return pa < pb
	}
	return strutil.NaturalLess(a, b)
}

func priorityOf(name string) int {
	for i, n := range containerPriority {
		if n == name {
			return i
		}
	}
	return len(containerPriority)
}

// Count returns the number of nodes in the tree, placeholders included.
func Count(root *TreeNode) int {
	total := 0
	stack := []*TreeNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, n.Children...)
	}
	return total
}
