// Package transport wires the sync engine to the network: a websocket
// endpoint where the producer pushes messages, an HTTP API the presentation
// layer polls, and the producer-side client. The engine itself never touches
// a socket; everything crosses the wire.Codec seam.
package transport

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"treemirror/buffer"
	"treemirror/ingest"
	"treemirror/journal"
	"treemirror/reconcile"
	"treemirror/recorder"
	"treemirror/stats"
	"treemirror/wire"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server terminates producer connections and serves consumer reads. Exactly
// one producer socket is active at a time: a newcomer displaces the current
// one, which also clears the mirrored collection (single-producer rule).
type Server struct {
	store    *ingest.Store
	codec    *wire.Codec
	tracker  *stats.Tracker
	journal  *journal.Journal   // optional
	recorder *recorder.Recorder // optional
	events   *buffer.RingBuffer // optional
	rootPath string

	upgrader websocket.Upgrader

	mu     sync.Mutex
	active *websocket.Conn
}

// Options carries the optional collaborators.
type Options struct {
	Journal  *journal.Journal
	Recorder *recorder.Recorder
	Events   *buffer.RingBuffer
	RootPath string
}

// NewServer builds the consumer-side server.
func NewServer(store *ingest.Store, codec *wire.Codec, tracker *stats.Tracker, opts Options) *Server {
	if opts.RootPath == "" {
		opts.RootPath = reconcile.DefaultRootPath
	}
	return &Server{
		store:    store,
		codec:    codec,
		tracker:  tracker,
		journal:  opts.Journal,
		recorder: opts.Recorder,
		events:   opts.Events,
		rootPath: opts.RootPath,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 4 * 1024,
			// The producer runs on the same trust boundary as the server.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router returns the HTTP routes: /ws for the producer, /api/* for readers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws", s.handleProducer)
	r.Get("/api/nodes", s.handleNodes)
	r.Get("/api/state", s.handleState)
	r.Get("/api/tree", s.handleTree)
	r.Get("/api/search", s.handleSearch)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/history", s.handleHistory)
	return r
}

// handleProducer upgrades the producer socket and pumps messages into the
// store. The read loop is the single ingest writer for this connection, so
// message application is serialized by construction.
func (s *Server) handleProducer(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Server: upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	producer := r.URL.Query().Get("producer")
	if producer == "" {
		producer = r.RemoteAddr
	}

	s.mu.Lock()
	if s.active != nil {
		log.Printf("Server: producer %q displaces the active connection", producer)
		s.active.Close()
	}
	s.active = conn
	s.mu.Unlock()

	s.store.ProducerConnected(producer)
	log.Printf("Server: producer %q connected from %s", producer, r.RemoteAddr)

	defer func() {
		conn.Close()
		s.mu.Lock()
		wasActive := s.active == conn
		if wasActive {
			s.active = nil
		}
		s.mu.Unlock()
		// A displaced connection must not clear the successor's data.
		if wasActive {
			s.store.ProducerDisconnected("socket closed")
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("Server: producer %q read loop ended: %v", producer, err)
			return
		}
		s.tracker.AddBytesIn(len(data))
		msg, err := s.codec.Decode(data)
		if err != nil {
			// Discard the one message; the connection stays up.
			log.Printf("Server: discarding malformed message from %q: %v", producer, err)
			s.tracker.IncrementMalformed()
			continue
		}
		// A message read before displacement must not land after the
		// successor cleared the collection.
		if !s.isActive(conn) {
			log.Printf("Server: dropping in-flight message from displaced producer %q", producer)
			return
		}
		s.apply(msg)
	}
}

func (s *Server) isActive(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == conn
}

// apply routes one validated message into the store and the optional
// persistence layers.
func (s *Server) apply(m *wire.Message) {
	s.tracker.IncrementMessage(string(m.Type))
	upserts, removals := 0, 0

	switch m.Type {
	case wire.TypeSnapshot:
		s.store.ApplySnapshot(m.Nodes)
		upserts = len(m.Nodes)
	case wire.TypeBatchStart:
		s.store.BeginBatch(m.TotalNodes, m.BatchSize)
	case wire.TypeBatch:
		if s.store.ApplyBatch(m.Nodes, m.BatchIndex, m.BatchTotal, m.IsLast) > 0 {
			s.tracker.IncrementBatchGap()
		}
		upserts = len(m.Nodes)
	case wire.TypeDelta:
		s.store.ApplyDelta(m.Delta)
		upserts = len(m.Delta.Added) + len(m.Delta.Modified)
		removals = len(m.Delta.Removed)
	case wire.TypeHeartbeat:
		s.store.Touch()
	}
	s.tracker.AddUpserts(upserts)
	s.tracker.AddRemovals(removals)

	if s.journal != nil && m.Type != wire.TypeHeartbeat {
		err := s.journal.Append(journal.Entry{
			WireSeq:  m.Seq,
			Type:     string(m.Type),
			Producer: m.Producer,
			Items:    upserts + removals,
		})
		if err != nil {
			log.Printf("Server: journal append failed: %v", err)
		}
	}
	if s.recorder != nil {
		err := s.recorder.Record(recorder.Cycle{
			Kind:     string(m.Type),
			Producer: m.Producer,
			Upserts:  upserts,
			Removals: removals,
			WireSeq:  m.Seq,
			At:       time.Now(),
		})
		if err != nil {
			log.Printf("Server: recorder insert failed: %v", err)
		}
	}
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.store.ListNodes())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.store.ConnectionState())
}

// treeEntry is the JSON shape of one reconciled tree node.
type treeEntry struct {
	Path        string       `json:"path"`
	Name        string       `json:"name"`
	Class       string       `json:"class"`
	Placeholder bool         `json:"placeholder,omitempty"`
	Matched     bool         `json:"matched,omitempty"`
	Children    []*treeEntry `json:"children,omitempty"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	root := reconcile.BuildFiltered(s.store.ListNodes(), s.rootPath, query)
	writeJSON(w, toEntry(root))
}

func toEntry(n *reconcile.TreeNode) *treeEntry {
	e := &treeEntry{
		Path:        n.Node.Path,
		Name:        n.Node.Name,
		Class:       n.Node.Class,
		Placeholder: n.Placeholder,
		Matched:     n.Matched,
	}
	for _, c := range n.Children {
		e.Children = append(e.Children, toEntry(c))
	}
	return e
}

// handleSearch returns matching paths ranked best-first, for clients that
// want to jump straight to a hit rather than render the filtered tree.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	paths := reconcile.RankMatches(s.store.ListNodes(), r.URL.Query().Get("q"))
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, paths)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	if s.events == nil {
		writeJSON(w, []struct{}{})
		return
	}
	writeJSON(w, s.events.Recent(100))
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	if s.recorder == nil {
		writeJSON(w, []struct{}{})
		return
	}
	cycles, err := s.recorder.RecentCycles(100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, cycles)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Server: response encode failed: %v", err)
	}
}
