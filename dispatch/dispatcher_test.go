package dispatch

import (
	"errors"
	"testing"

	"treemirror/node"
	"treemirror/wire"
)

type captureSender struct {
	sent    []*wire.Message
	failSeq map[int]error // 0-based index into the send sequence
}

func (s *captureSender) Send(m *wire.Message) error {
	idx := len(s.sent)
	s.sent = append(s.sent, m)
	if err := s.failSeq[idx]; err != nil {
		return err
	}
	return nil
}

func makeNodes(n int) []node.Node {
	nodes := make([]node.Node, n)
	for i := range nodes {
		nodes[i] = node.Node{Name: "n", Class: "Part", Path: node.JoinPath("game", string(rune('a'+i%26))+string(rune('0'+i/26)))}
	}
	return nodes
}

func TestSmallSnapshotSingleMessage(t *testing.T) {
	s := &captureSender{}
	d := NewDispatcher(s, "p1", 10, 0)
	d.SendSnapshot(makeNodes(3))
	if len(s.sent) != 1 || s.sent[0].Type != wire.TypeSnapshot {
		t.Fatalf("sent = %+v", s.sent)
	}
	if len(s.sent[0].Nodes) != 3 {
		t.Fatalf("snapshot carried %d nodes", len(s.sent[0].Nodes))
	}
}

func TestLargeSnapshotBatched(t *testing.T) {
	s := &captureSender{}
	d := NewDispatcher(s, "p1", 4, 0)
	d.SendSnapshot(makeNodes(10))

	if s.sent[0].Type != wire.TypeBatchStart {
		t.Fatalf("first message %s, want batchStart", s.sent[0].Type)
	}
	if s.sent[0].TotalNodes != 10 || s.sent[0].BatchSize != 4 {
		t.Fatalf("batchStart meta = %+v", s.sent[0])
	}

	batches := s.sent[1:]
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	carried := 0
	for i, b := range batches {
		if b.Type != wire.TypeBatch {
			t.Fatalf("batch %d has type %s", i, b.Type)
		}
		if b.BatchIndex != i {
			t.Errorf("batch %d has index %d", i, b.BatchIndex)
		}
		if b.BatchTotal != 3 {
			t.Errorf("batch %d has total %d", i, b.BatchTotal)
		}
		if got, want := b.IsLast, i == 2; got != want {
			t.Errorf("batch %d IsLast = %t", i, got)
		}
		if len(b.Nodes) > 4 {
			t.Errorf("batch %d carries %d nodes, cap is 4", i, len(b.Nodes))
		}
		carried += len(b.Nodes)
	}
	if carried != 10 {
		t.Errorf("batches carried %d nodes total, want 10", carried)
	}
}

func TestSeqStrictlyIncreases(t *testing.T) {
	s := &captureSender{}
	d := NewDispatcher(s, "p1", 4, 0)
	d.SendSnapshot(makeNodes(10))
	d.SendHeartbeat()
	for i := 1; i < len(s.sent); i++ {
		if s.sent[i].Seq != s.sent[i-1].Seq+1 {
			t.Fatalf("seq jumped from %d to %d", s.sent[i-1].Seq, s.sent[i].Seq)
		}
	}
}

func TestBatchFailureContinuesSequence(t *testing.T) {
	s := &captureSender{failSeq: map[int]error{2: errors.New("socket hiccup")}}
	d := NewDispatcher(s, "p1", 4, 0)
	d.SendSnapshot(makeNodes(10))
	// batchStart + 3 batches regardless of the mid-sequence failure
	if len(s.sent) != 4 {
		t.Fatalf("expected the full sequence despite one failed batch, sent %d", len(s.sent))
	}
}

func TestBatchStartFailureAbandonsSequence(t *testing.T) {
	s := &captureSender{failSeq: map[int]error{0: errors.New("down")}}
	d := NewDispatcher(s, "p1", 4, 0)
	d.SendSnapshot(makeNodes(10))
	if len(s.sent) != 1 {
		t.Fatalf("batches were sent after a failed batchStart: %d messages", len(s.sent))
	}
}

func TestSmallDeltaSingleMessage(t *testing.T) {
	s := &captureSender{}
	d := NewDispatcher(s, "p1", 10, 0)
	d.SendDelta(node.Delta{Removed: []string{"game.Workspace.Part"}})
	if len(s.sent) != 1 || s.sent[0].Type != wire.TypeDelta {
		t.Fatalf("sent = %+v", s.sent)
	}
}

func TestOversizedDeltaSplitPreservesCategories(t *testing.T) {
	s := &captureSender{}
	d := NewDispatcher(s, "p1", 3, 0)
	delta := node.Delta{
		Added:    makeNodes(4),
		Modified: makeNodes(2),
		Removed:  []string{"game.x", "game.y", "game.z"},
	}
	d.SendDelta(delta)

	if len(s.sent) < 2 {
		t.Fatalf("oversized delta not split: %d messages", len(s.sent))
	}
	var added, modified, removed int
	for _, m := range s.sent {
		if m.Type != wire.TypeDelta || m.Delta == nil {
			t.Fatalf("non-delta message in split: %+v", m)
		}
		if m.Delta.Size() > 3 {
			t.Errorf("chunk exceeds cap: %d items", m.Delta.Size())
		}
		added += len(m.Delta.Added)
		modified += len(m.Delta.Modified)
		removed += len(m.Delta.Removed)
	}
	if added != 4 || modified != 2 || removed != 3 {
		t.Fatalf("split lost items: added=%d modified=%d removed=%d", added, modified, removed)
	}
}
