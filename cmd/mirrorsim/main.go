// mirrorsim runs a synthetic producer against a mirror consumer. It hosts a
// mutating in-memory game tree, drives the full collection/detection/dispatch
// pipeline over a real websocket, and reports cycle accounting on exit. It is
// the standing integration harness for the producer side; no game engine
// required.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"treemirror/collect"
	"treemirror/detect"
	"treemirror/dispatch"
	"treemirror/node"
	"treemirror/transport"
	"treemirror/wire"
)

func main() {
	var (
		consumerURL = flag.String("consumer", "ws://127.0.0.1:7420/ws", "consumer websocket URL")
		producer    = flag.String("name", "mirrorsim", "producer name announced to the consumer")
		interval    = flag.Duration("interval", 2*time.Second, "sync cycle interval")
		churn       = flag.Duration("churn", 750*time.Millisecond, "how often the synthetic tree mutates")
		parts       = flag.Int("parts", 200, "initial part count under Workspace")
		batchSize   = flag.Int("batch-size", 500, "nodes per snapshot batch")
		compress    = flag.Bool("compress", true, "zstd-compress wire messages")
		runFor      = flag.Duration("duration", 0, "stop after this long (0 = run until interrupted)")
		seed        = flag.Int64("seed", 0, "mutation RNG seed (0 = time-based)")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	log.Printf("mirrorsim: consumer=%s name=%s interval=%s churn=%s parts=%d seed=%d",
		*consumerURL, *producer, *interval, *churn, *parts, *seed)

	world := newSimWorld(rand.New(rand.NewSource(*seed)), *parts)

	codec, err := wire.NewCodec(*compress)
	if err != nil {
		log.Fatalf("mirrorsim: codec: %v", err)
	}

	collector := collect.NewCollector(world, 0, 0)
	detector := detect.NewDetector()

	var cycle *dispatch.Cycle
	client := transport.NewClient(*consumerURL, codec, func() {
		// The consumer cleared its collection when this session registered, so
		// the next cycle must ship everything.
		if cycle != nil {
			cycle.RequireFullSync()
		}
	})
	dispatcher := dispatch.NewDispatcher(client, *producer, *batchSize, 0)
	cycle = dispatch.NewCycle(collector, detector, dispatcher, *interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *runFor > 0 {
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}

	go client.Run(ctx)
	go world.churn(ctx, *churn)
	go cycle.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case <-sigChan:
		cancel()
	}
	// Let an in-flight cycle drain before reporting.
	time.Sleep(200 * time.Millisecond)

	run, skipped, lastAt := cycle.Stats()
	log.Println("mirrorsim: complete")
	log.Printf("cycles=%d skipped=%d tracked=%d last=%s",
		run, skipped, detector.TrackedCount(), lastAt.Format("15:04:05"))
	log.Printf("world: %d mutations applied", world.mutations())
}

// simWorld is a mutating in-memory object graph shaped like a small game
// place. The churn loop renames parts, nudges positions, recolors, and
// adds/removes parts under Workspace so every delta category gets exercised.
type simWorld struct {
	mu       sync.Mutex
	rng      *rand.Rand
	objects  map[string]*simObject
	children map[string][]string
	nextID   int
	partIDs  []string
	mutCount int
}

type simObject struct {
	id    string
	name  string
	class string
	props map[string]node.Value
}

var _ collect.Source = (*simWorld)(nil)

const simRootID = "root"

func newSimWorld(rng *rand.Rand, parts int) *simWorld {
	w := &simWorld{
		rng:      rng,
		objects:  make(map[string]*simObject),
		children: make(map[string][]string),
	}
	w.add("", simRootID, "game", "DataModel", nil)
	for _, svc := range []string{
		"Workspace", "Players", "Lighting", "ReplicatedStorage",
		"ServerScriptService", "StarterGui", "SoundService",
	} {
		w.add(simRootID, "svc-"+svc, svc, svc, nil)
	}
	w.objects["svc-Lighting"].props = map[string]node.Value{
		"Brightness":    node.Number(2),
		"ClockTime":     node.Number(14.5),
		"Ambient":       node.RGB(70, 70, 70),
		"GlobalShadows": node.Bool(true),
	}
	for i := 0; i < parts; i++ {
		w.addPart()
	}
	return w
}

func (w *simWorld) add(parentID, id, name, class string, props map[string]node.Value) {
	w.objects[id] = &simObject{id: id, name: name, class: class, props: props}
	if parentID != "" {
		w.children[parentID] = append(w.children[parentID], id)
	}
}

func (w *simWorld) addPart() {
	w.nextID++
	id := "part-" + strconv.Itoa(w.nextID)
	w.add("svc-Workspace", id, fmt.Sprintf("Part%d", w.nextID), "Part", map[string]node.Value{
		"Position": node.Vector(w.rng.Float64()*512, w.rng.Float64()*64, w.rng.Float64()*512),
		"Color":    node.RGB(uint8(w.rng.Intn(256)), uint8(w.rng.Intn(256)), uint8(w.rng.Intn(256))),
		"Anchored": node.Bool(w.rng.Intn(2) == 0),
	})
	w.partIDs = append(w.partIDs, id)
}

func (w *simWorld) removePart() {
	if len(w.partIDs) == 0 {
		return
	}
	i := w.rng.Intn(len(w.partIDs))
	id := w.partIDs[i]
	w.partIDs = append(w.partIDs[:i], w.partIDs[i+1:]...)
	delete(w.objects, id)
	kids := w.children["svc-Workspace"]
	for j, k := range kids {
		if k == id {
			w.children["svc-Workspace"] = append(kids[:j], kids[j+1:]...)
			break
		}
	}
}

// churn applies one random mutation per tick.
func (w *simWorld) churn(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mutate()
		}
	}
}

func (w *simWorld) mutate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mutCount++
	switch w.rng.Intn(10) {
	case 0:
		w.addPart()
	case 1:
		w.removePart()
	case 2:
		// Rename; the mirror treats this as remove+add of the subtree.
		if id := w.randomPart(); id != "" {
			w.objects[id].name = fmt.Sprintf("Part%d_r%d", w.nextID, w.mutCount)
		}
	case 3:
		w.objects["svc-Lighting"].props["ClockTime"] = node.Number(w.rng.Float64() * 24)
	default:
		if id := w.randomPart(); id != "" {
			w.objects[id].props["Position"] = node.Vector(
				w.rng.Float64()*512, w.rng.Float64()*64, w.rng.Float64()*512)
		}
	}
}

func (w *simWorld) randomPart() string {
	if len(w.partIDs) == 0 {
		return ""
	}
	return w.partIDs[w.rng.Intn(len(w.partIDs))]
}

func (w *simWorld) mutations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mutCount
}

func (w *simWorld) Root() (collect.Object, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	root := w.objects[simRootID]
	return collect.Object{ID: root.id, Name: root.name, Class: root.class}, nil
}

func (w *simWorld) Children(id string) ([]collect.Object, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := w.children[id]
	out := make([]collect.Object, 0, len(ids))
	for _, cid := range ids {
		obj, ok := w.objects[cid]
		if !ok {
			continue
		}
		out = append(out, collect.Object{ID: obj.id, Name: obj.name, Class: obj.class})
	}
	return out, nil
}

func (w *simWorld) Properties(id string) (map[string]node.Value, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	obj, ok := w.objects[id]
	if !ok || obj.props == nil {
		return nil, nil
	}
	props := make(map[string]node.Value, len(obj.props))
	for k, v := range obj.props {
		props[k] = v
	}
	return props, nil
}
