// Package collect walks the live object graph on the producer side and
// flattens it into node records with stable paths. The walk is iterative with
// hard depth and node-count caps so a hostile or cyclic source graph can never
// recurse the producer into the ground.
package collect

import (
	"errors"
	"fmt"
	"log"

	"treemirror/node"
)

// Object is one graph object as the host environment reports it. ID must be
// unique per live object instance; the collector uses it for cycle detection
// only, never as a sync key.
type Object struct {
	ID    string
	Name  string
	Class string
}

// Source is the live object-graph accessor supplied by the host environment.
// Children and Properties take the Object.ID of a previously returned object.
type Source interface {
	Root() (Object, error)
	Children(id string) ([]Object, error)
	Properties(id string) (map[string]node.Value, error)
}

const (
	// DefaultMaxDepth bounds how deep the walk descends. Graphs deeper than
	// this are truncated per branch with a log line.
	DefaultMaxDepth = 64
	// DefaultMaxNodes bounds the total snapshot size.
	DefaultMaxNodes = 250_000
)

// ErrNoRoot reports that the source could not produce a root object, which
// abandons the whole cycle (retried on the next tick).
var ErrNoRoot = errors.New("collect: source has no root")

// Collector flattens the source graph into a snapshot. Zero caps fall back to
// the defaults.
type Collector struct {
	source   Source
	maxDepth int
	maxNodes int
}

// NewCollector wraps a source with the given caps.
func NewCollector(source Source, maxDepth, maxNodes int) *Collector {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &Collector{source: source, maxDepth: maxDepth, maxNodes: maxNodes}
}

type workItem struct {
	obj   Object
	path  string
	depth int
}

// Collect walks the graph breadth-first and returns the flat snapshot.
// Failure handling is per-node: a property read error degrades that node to an
// empty property set, a children read error truncates that branch, and a
// revisited object ID (a cycle, which the tree data model forbids) skips the
// offending edge. Only a missing root abandons the snapshot entirely.
func (c *Collector) Collect() ([]node.Node, error) {
	root, err := c.source.Root()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRoot, err)
	}

	seen := make(map[string]bool)
	nodes := make([]node.Node, 0, 1024)
	queue := []workItem{{obj: root, path: node.SanitizeName(root.Name), depth: 0}}
	seen[root.ID] = true

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if len(nodes) >= c.maxNodes {
			log.Printf("Collector: node cap %d reached, truncating snapshot", c.maxNodes)
			break
		}

		props, err := c.source.Properties(item.obj.ID)
		if err != nil {
			// One unreadable node must not sink the cycle; ship it bare.
			log.Printf("Collector: properties unreadable for %s: %v", item.path, err)
			props = nil
		}

		rec := node.Node{
			ID:         item.obj.ID,
			Name:       node.SanitizeName(item.obj.Name),
			Class:      item.obj.Class,
			Path:       item.path,
			ParentPath: node.ParentPath(item.path),
			Props:      props,
		}

		if item.depth < c.maxDepth {
			children, err := c.source.Children(item.obj.ID)
			if err != nil {
				log.Printf("Collector: children unreadable for %s: %v", item.path, err)
				children = nil
			}
			for _, child := range children {
				if seen[child.ID] {
					log.Printf("Collector: cycle at %s -> %s (%s), skipping edge",
						item.path, child.Name, child.ID)
					continue
				}
				seen[child.ID] = true
				name := node.SanitizeName(child.Name)
				rec.ChildNames = append(rec.ChildNames, name)
				queue = append(queue, workItem{
					obj:   child,
					path:  node.JoinPath(item.path, name),
					depth: item.depth + 1,
				})
			}
		} else if item.depth == c.maxDepth {
			log.Printf("Collector: depth cap %d reached at %s, truncating branch", c.maxDepth, item.path)
		}

		nodes = append(nodes, rec)
	}

	return nodes, nil
}
