package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"treemirror/ingest"
	"treemirror/node"
	"treemirror/stats"
	"treemirror/wire"
)

func newTestServer(t *testing.T) (*httptest.Server, *ingest.Store, *stats.Tracker) {
	t.Helper()
	store := ingest.NewStore(nil)
	codec, err := wire.NewCodec(true)
	if err != nil {
		t.Fatal(err)
	}
	tracker := stats.NewTracker()
	srv := NewServer(store, codec, tracker, Options{RootPath: "game"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store, tracker
}

func dialProducer(t *testing.T, ts *httptest.Server, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?producer=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, m *wire.Message) {
	t.Helper()
	codec, _ := wire.NewCodec(true)
	data, err := codec.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestProducerSnapshotFlow(t *testing.T) {
	ts, store, _ := newTestServer(t)
	conn := dialProducer(t, ts, "studio")

	waitFor(t, "connection registered", func() bool {
		return store.ConnectionState().Connected
	})

	sendMessage(t, conn, &wire.Message{
		Type: wire.TypeSnapshot, Seq: 1, Timestamp: time.Now().UnixMilli(),
		Producer: "studio",
		Nodes: []node.Node{
			{Name: "game", Class: "DataModel", Path: "game"},
			{Name: "Workspace", Class: "Workspace", Path: "game.Workspace"},
		},
	})
	waitFor(t, "snapshot applied", func() bool {
		return len(store.ListNodes()) == 2
	})

	resp, err := http.Get(ts.URL + "/api/nodes")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var nodes []node.Node
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("/api/nodes returned %d", len(nodes))
	}

	conn.Close()
	waitFor(t, "disconnect clear", func() bool {
		return len(store.ListNodes()) == 0 && !store.ConnectionState().Connected
	})
}

func TestMalformedMessageDoesNotDropConnection(t *testing.T) {
	ts, store, tracker := newTestServer(t)
	conn := dialProducer(t, ts, "studio")
	waitFor(t, "connection registered", func() bool {
		return store.ConnectionState().Connected
	})

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte(`{"type":"mystery"}`)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "malformed counted", func() bool {
		_, _, _, bad := tracker.Totals()
		return bad == 1
	})

	// Connection must still accept a valid message afterwards.
	sendMessage(t, conn, &wire.Message{
		Type: wire.TypeDelta, Seq: 2, Timestamp: time.Now().UnixMilli(),
		Delta: &node.Delta{Added: []node.Node{{Name: "game", Class: "DataModel", Path: "game"}}},
	})
	waitFor(t, "delta applied after malformed", func() bool {
		return len(store.ListNodes()) == 1
	})
}

func TestBatchedSnapshotFlow(t *testing.T) {
	ts, store, _ := newTestServer(t)
	conn := dialProducer(t, ts, "studio")
	waitFor(t, "connection registered", func() bool {
		return store.ConnectionState().Connected
	})

	sendMessage(t, conn, &wire.Message{Type: wire.TypeBatchStart, Seq: 1, TotalNodes: 3, BatchSize: 2})
	sendMessage(t, conn, &wire.Message{Type: wire.TypeBatch, Seq: 2, BatchIndex: 0, BatchTotal: 2,
		Nodes: []node.Node{{Name: "game", Class: "DataModel", Path: "game"}, {Name: "A", Class: "Folder", Path: "game.A"}}})
	sendMessage(t, conn, &wire.Message{Type: wire.TypeBatch, Seq: 3, BatchIndex: 1, BatchTotal: 2, IsLast: true,
		Nodes: []node.Node{{Name: "B", Class: "Folder", Path: "game.B"}}})

	waitFor(t, "batches merged", func() bool {
		return len(store.ListNodes()) == 3
	})
}

func TestTreeEndpointWithQuery(t *testing.T) {
	ts, store, _ := newTestServer(t)
	store.ApplySnapshot([]node.Node{
		{Name: "game", Class: "DataModel", Path: "game"},
		{Name: "Workspace", Class: "Workspace", Path: "game.Workspace"},
		{Name: "Target", Class: "Part", Path: "game.Workspace.Target"},
		{Name: "Noise", Class: "Part", Path: "game.Noise"},
	})

	resp, err := http.Get(ts.URL + "/api/tree?q=target")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var root treeEntry
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		t.Fatal(err)
	}
	if len(root.Children) != 1 || root.Children[0].Name != "Workspace" {
		t.Fatalf("filtered tree root children = %+v", root.Children)
	}
	if len(root.Children[0].Children) != 1 || !root.Children[0].Children[0].Matched {
		t.Fatalf("match not marked: %+v", root.Children[0].Children)
	}
}

func TestStateEndpoint(t *testing.T) {
	ts, store, _ := newTestServer(t)
	store.ProducerConnected("studio")
	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var state ingest.ConnectionState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	if !state.Connected || state.Producer != "studio" {
		t.Fatalf("state = %+v", state)
	}
}

func TestBackoffDoublesAndResets(t *testing.T) {
	b := newBackoff(time.Second, 5*time.Second)
	if b.Next() != time.Second {
		t.Fatal("first delay should be the base")
	}
	if b.Next() != 2*time.Second {
		t.Fatal("second delay should double")
	}
	b.Next()
	if d := b.Next(); d != 5*time.Second {
		t.Fatalf("delay should cap at max, got %s", d)
	}
	b.Reset()
	if b.Next() != time.Second {
		t.Fatal("Reset should restart at base")
	}
}

func TestBatchSequenceGapCounted(t *testing.T) {
	ts, store, tracker := newTestServer(t)
	conn := dialProducer(t, ts, "studio")
	waitFor(t, "connection registered", func() bool {
		return store.ConnectionState().Connected
	})

	sendMessage(t, conn, &wire.Message{Type: wire.TypeBatchStart, Seq: 1, TotalNodes: 3, BatchSize: 1})
	sendMessage(t, conn, &wire.Message{Type: wire.TypeBatch, Seq: 2, BatchIndex: 0, BatchTotal: 3,
		Nodes: []node.Node{{Name: "game", Class: "DataModel", Path: "game"}}})
	// Index 2 lands where 1 was expected.
	sendMessage(t, conn, &wire.Message{Type: wire.TypeBatch, Seq: 3, BatchIndex: 2, BatchTotal: 3, IsLast: true,
		Nodes: []node.Node{{Name: "B", Class: "Folder", Path: "game.B"}}})

	waitFor(t, "gap counted", func() bool {
		_, _, gaps, _ := tracker.Totals()
		return gaps == 1
	})
	waitFor(t, "partial union applied", func() bool {
		return len(store.ListNodes()) == 2
	})
}

func TestSearchEndpointRanksMatches(t *testing.T) {
	ts, store, _ := newTestServer(t)
	store.ApplySnapshot([]node.Node{
		{Name: "game", Class: "DataModel", Path: "game"},
		{Name: "Part", Class: "Part", Path: "game.Part"},
		{Name: "Particles", Class: "Part", Path: "game.Particles"},
	})

	resp, err := http.Get(ts.URL + "/api/search?q=part")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var paths []string
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil {
		t.Fatal(err)
	}
	// Exact name distance beats the longer match.
	if len(paths) != 2 || paths[0] != "game.Part" || paths[1] != "game.Particles" {
		t.Fatalf("ranked paths = %v", paths)
	}

	resp2, err := http.Get(ts.URL + "/api/search?q=")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if err := json.NewDecoder(resp2.Body).Decode(&paths); err != nil {
		t.Fatal(err)
	}
	if len(paths) != 0 {
		t.Fatalf("blank query returned %v", paths)
	}
}

func TestDisplacedProducerCannotWrite(t *testing.T) {
	ts, store, _ := newTestServer(t)
	old := dialProducer(t, ts, "old")
	waitFor(t, "first producer registered", func() bool {
		return store.ConnectionState().Producer == "old"
	})

	dialProducer(t, ts, "new")
	waitFor(t, "second producer displaces the first", func() bool {
		return store.ConnectionState().Producer == "new"
	})

	// A write from the displaced socket must never reach the collection the
	// successor now owns. The write itself may or may not error depending on
	// how far teardown has progressed.
	codec, _ := wire.NewCodec(true)
	data, err := codec.Encode(&wire.Message{
		Type: wire.TypeSnapshot, Seq: 9, Timestamp: time.Now().UnixMilli(), Producer: "old",
		Nodes: []node.Node{{Name: "game", Class: "DataModel", Path: "game"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = old.WriteMessage(websocket.BinaryMessage, data)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(store.ListNodes()) != 0 {
			t.Fatal("displaced producer's snapshot was applied")
		}
		if store.ConnectionState().Producer != "new" {
			t.Fatal("successor connection state was disturbed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
