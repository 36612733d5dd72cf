package detect

import (
	"sort"
	"testing"

	"treemirror/node"
)

func snap(nodes ...node.Node) []node.Node { return nodes }

func mk(path, class string, props map[string]node.Value) node.Node {
	return node.Node{
		Name:       node.LastSegment(path),
		Class:      class,
		Path:       path,
		ParentPath: node.ParentPath(path),
		Props:      props,
	}
}

func TestFirstDiffIsAllAdded(t *testing.T) {
	d := NewDetector()
	delta := d.Diff(snap(
		mk("game", "DataModel", nil),
		mk("game.Workspace", "Workspace", nil),
	))
	if len(delta.Added) != 2 || len(delta.Modified) != 0 || len(delta.Removed) != 0 {
		t.Fatalf("first diff = %d added %d modified %d removed",
			len(delta.Added), len(delta.Modified), len(delta.Removed))
	}
}

func TestDiffIdempotentOnUnchangedSnapshot(t *testing.T) {
	d := NewDetector()
	s := snap(
		mk("game", "DataModel", nil),
		mk("game.Workspace", "Workspace", map[string]node.Value{"Gravity": node.Number(196.2)}),
	)
	d.Diff(s)
	for i := 0; i < 2; i++ {
		if delta := d.Diff(s); !delta.Empty() {
			t.Fatalf("run %d: unchanged snapshot produced non-empty delta %+v", i, delta)
		}
	}
}

func TestDiffClassifiesModified(t *testing.T) {
	d := NewDetector()
	d.Diff(snap(mk("game.Workspace.Part", "Part", map[string]node.Value{"v": node.Number(1)})))

	delta := d.Diff(snap(mk("game.Workspace.Part", "Part", map[string]node.Value{"v": node.Number(2)})))
	if len(delta.Added) != 0 || len(delta.Removed) != 0 {
		t.Fatalf("expected pure modification, got %+v", delta)
	}
	if len(delta.Modified) != 1 || delta.Modified[0].Path != "game.Workspace.Part" {
		t.Fatalf("Modified = %+v", delta.Modified)
	}
}

func TestDiffClassifiesRemoved(t *testing.T) {
	d := NewDetector()
	d.Diff(snap(
		mk("game", "DataModel", nil),
		mk("game.Workspace", "Workspace", nil),
	))
	delta := d.Diff(snap(mk("game", "DataModel", nil)))
	if len(delta.Removed) != 1 || delta.Removed[0] != "game.Workspace" {
		t.Fatalf("Removed = %v", delta.Removed)
	}
}

func TestRenameIsRemovePlusAdd(t *testing.T) {
	d := NewDetector()
	d.Diff(snap(mk("game.Workspace.Old", "Part", nil)))
	delta := d.Diff(snap(mk("game.Workspace.New", "Part", nil)))

	if len(delta.Added) != 1 || delta.Added[0].Path != "game.Workspace.New" {
		t.Fatalf("Added = %+v", delta.Added)
	}
	if len(delta.Removed) != 1 || delta.Removed[0] != "game.Workspace.Old" {
		t.Fatalf("Removed = %v", delta.Removed)
	}
	if len(delta.Modified) != 0 {
		t.Fatalf("rename must not register as modification: %+v", delta.Modified)
	}
}

func TestAddedAndModifiedDisjoint(t *testing.T) {
	d := NewDetector()
	d.Diff(snap(mk("game", "DataModel", nil)))
	delta := d.Diff(snap(
		mk("game", "DataModel", map[string]node.Value{"tag": node.String("x")}),
		mk("game.Workspace", "Workspace", nil),
	))
	seen := make(map[string]int)
	for _, n := range delta.Added {
		seen[n.Path]++
	}
	for _, n := range delta.Modified {
		seen[n.Path]++
	}
	for path, count := range seen {
		if count > 1 {
			t.Fatalf("path %s classified twice", path)
		}
	}
}

func TestTableReplacedEvenOnEmptyDelta(t *testing.T) {
	d := NewDetector()
	s := snap(mk("game", "DataModel", nil))
	d.Diff(s)
	d.Diff(s) // empty delta; table must still be current
	if d.TrackedCount() != 1 {
		t.Fatalf("TrackedCount = %d", d.TrackedCount())
	}
	delta := d.Diff(snap())
	if len(delta.Removed) != 1 {
		t.Fatalf("stale table: removal not detected, delta=%+v", delta)
	}
}

func TestResetForcesFullAdd(t *testing.T) {
	d := NewDetector()
	s := snap(mk("game", "DataModel", nil), mk("game.Workspace", "Workspace", nil))
	d.Diff(s)
	d.Reset()
	delta := d.Diff(s)
	var added []string
	for _, n := range delta.Added {
		added = append(added, n.Path)
	}
	sort.Strings(added)
	if len(added) != 2 {
		t.Fatalf("after Reset expected full add, got %v", added)
	}
}
