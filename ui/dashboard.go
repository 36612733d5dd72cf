// Package ui implements the terminal dashboard: the reconciled tree on the
// left, connection/stats panels and the recent-change feed on the right, and
// a debounced search box. Rendering polls the store version so idle refreshes
// cost nothing.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"treemirror/buffer"
	"treemirror/ingest"
	"treemirror/reconcile"
	"treemirror/stats"
)

var (
	uiBorderColor      = tcell.ColorGray
	uiTitleColor       = tcell.ColorTeal
	placeholderColor   = tcell.ColorDarkGray
	matchColor         = tcell.ColorYellow
	connectedColor     = "[green]"
	disconnectedColor  = "[red]"
	colorReset         = "[-]"
)

// Dashboard is the tview application wrapper.
type Dashboard struct {
	app     *tview.Application
	store   *ingest.Store
	tracker *stats.Tracker
	events  *buffer.RingBuffer

	rootPath  string
	refresh   time.Duration
	eventRows int

	tree       *tview.TreeView
	statusView *tview.TextView
	eventsView *tview.TextView
	searchBox  *tview.InputField
	search     *SearchFilter

	lastVersion uint64
	lastQuery   string
}

// NewDashboard builds the dashboard around the consumer store.
func NewDashboard(store *ingest.Store, tracker *stats.Tracker, events *buffer.RingBuffer, rootPath string, refresh time.Duration, eventRows int) *Dashboard {
	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}
	if eventRows <= 0 {
		eventRows = 20
	}
	return &Dashboard{
		app:       tview.NewApplication(),
		store:     store,
		tracker:   tracker,
		events:    events,
		rootPath:  rootPath,
		refresh:   refresh,
		eventRows: eventRows,
	}
}

// Run blocks until the user quits or the context is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.build(ctx)
	defer d.search.Stop()

	go func() {
		ticker := time.NewTicker(d.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				d.app.QueueUpdateDraw(func() { d.app.Stop() })
				return
			case <-ticker.C:
				d.app.QueueUpdateDraw(d.redraw)
			}
		}
	}()

	return d.app.Run()
}

func (d *Dashboard) build(ctx context.Context) {
	d.tree = tview.NewTreeView()
	d.tree.SetBorder(true).SetTitle(" Instance Tree ").
		SetBorderColor(uiBorderColor).SetTitleColor(uiTitleColor)

	d.statusView = tview.NewTextView().SetDynamicColors(true)
	d.statusView.SetBorder(true).SetTitle(" Connection ").
		SetBorderColor(uiBorderColor).SetTitleColor(uiTitleColor)

	d.eventsView = tview.NewTextView().SetDynamicColors(true)
	d.eventsView.SetBorder(true).SetTitle(" Recent Changes ").
		SetBorderColor(uiBorderColor).SetTitleColor(uiTitleColor)

	d.search = NewSearchFilter(ctx)
	d.searchBox = tview.NewInputField().SetLabel("Search: ")
	d.searchBox.SetBorder(true).SetBorderColor(uiBorderColor)
	d.searchBox.SetChangedFunc(func(text string) {
		d.search.SetQuery(text, func() {
			d.app.QueueUpdateDraw(d.redraw)
		})
	})

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.statusView, 7, 0, false).
		AddItem(d.eventsView, 0, 1, false)

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.searchBox, 3, 0, false).
		AddItem(d.tree, 0, 1, true)

	root := tview.NewFlex().
		AddItem(left, 0, 2, true).
		AddItem(right, 0, 1, false)

	d.app.SetRoot(root, true)
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC, tcell.KeyEscape:
			d.app.Stop()
			return nil
		case tcell.KeyTab:
			if d.app.GetFocus() == d.searchBox {
				d.app.SetFocus(d.tree)
			} else {
				d.app.SetFocus(d.searchBox)
			}
			return nil
		}
		return event
	})

	d.redraw()
}

// redraw refreshes all panels. The tree only rebuilds when the collection
// version or the active query changed since the last frame.
func (d *Dashboard) redraw() {
	d.drawStatus()
	d.drawEvents()

	version := d.store.Version()
	query := d.search.ActiveQuery()
	if version == d.lastVersion && query == d.lastQuery {
		return
	}
	d.lastVersion = version
	d.lastQuery = query
	d.drawTree(query)
}

func (d *Dashboard) drawTree(query string) {
	nodes := d.store.ListNodes()
	root := reconcile.BuildFiltered(nodes, d.rootPath, query)

	treeRoot := toTreeNode(root)
	treeRoot.SetExpanded(true)
	for _, c := range treeRoot.GetChildren() {
		c.SetExpanded(true)
	}
	d.tree.SetRoot(treeRoot).SetCurrentNode(treeRoot)
}

func toTreeNode(n *reconcile.TreeNode) *tview.TreeNode {
	label := n.Node.Name
	if n.Node.Class != "" && n.Node.Class != n.Node.Name {
		label = fmt.Sprintf("%s (%s)", n.Node.Name, n.Node.Class)
	}
	t := tview.NewTreeNode(label).SetReference(n.Node.Path)
	switch {
	case n.Placeholder:
		t.SetColor(placeholderColor)
	case n.Matched:
		t.SetColor(matchColor)
	}
	for _, c := range n.Children {
		t.AddChild(toTreeNode(c))
	}
	// Deep trees start collapsed below the first level to stay navigable.
	t.SetExpanded(false)
	return t
}

func (d *Dashboard) drawStatus() {
	state := d.store.ConnectionState()
	var b strings.Builder
	if state.Connected {
		fmt.Fprintf(&b, "%sCONNECTED%s %s\n", connectedColor, colorReset, state.Producer)
		fmt.Fprintf(&b, "since %s\n", state.ConnectedAt.Format("15:04:05"))
		fmt.Fprintf(&b, "last contact %s\n", humanize.Time(state.LastSeenAt))
	} else {
		fmt.Fprintf(&b, "%sDISCONNECTED%s\n", disconnectedColor, colorReset)
		if !state.LastSeenAt.IsZero() {
			fmt.Fprintf(&b, "last contact %s\n", humanize.Time(state.LastSeenAt))
		}
	}
	fmt.Fprintf(&b, "nodes: %s\n", humanize.Comma(int64(len(d.store.ListNodes()))))
	if d.tracker != nil {
		up, rm, _, _ := d.tracker.Totals()
		fmt.Fprintf(&b, "upserts: %s  removals: %s\n",
			humanize.Comma(int64(up)), humanize.Comma(int64(rm)))
	}
	d.statusView.SetText(b.String())
}

func (d *Dashboard) drawEvents() {
	if d.events == nil {
		return
	}
	var b strings.Builder
	for _, e := range d.events.Recent(d.eventRows) {
		switch e.Kind {
		case buffer.EventSnapshot:
			fmt.Fprintf(&b, "%s  snapshot (%d nodes)\n", e.At.Format("15:04:05"), e.Count)
		case buffer.EventCleared:
			fmt.Fprintf(&b, "%s  [red]cleared[-] (%d nodes)\n", e.At.Format("15:04:05"), e.Count)
		default:
			fmt.Fprintf(&b, "%s  %-8s %s\n", e.At.Format("15:04:05"), e.Kind, e.Path)
		}
	}
	d.eventsView.SetText(b.String())
}
