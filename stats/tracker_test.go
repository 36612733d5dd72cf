package stats

import (
	"strings"
	"testing"
)

func TestMessageCounts(t *testing.T) {
	tr := NewTracker()
	tr.IncrementMessage("delta")
	tr.IncrementMessage("delta")
	tr.IncrementMessage("Heartbeat")
	if got := tr.MessageCount("delta"); got != 2 {
		t.Errorf("delta count = %d", got)
	}
	if got := tr.MessageCount("heartbeat"); got != 1 {
		t.Errorf("heartbeat count = %d", got)
	}
	if got := tr.MessageCount("snapshot"); got != 0 {
		t.Errorf("snapshot count = %d", got)
	}
}

func TestTotalsAndSummary(t *testing.T) {
	tr := NewTracker()
	tr.AddUpserts(10)
	tr.AddRemovals(3)
	tr.IncrementBatchGap()
	tr.IncrementMalformed()
	tr.AddBytesIn(1024)

	up, rm, gaps, bad := tr.Totals()
	if up != 10 || rm != 3 || gaps != 1 || bad != 1 {
		t.Fatalf("Totals = %d %d %d %d", up, rm, gaps, bad)
	}
	s := tr.Summary()
	for _, want := range []string{"upserts=10", "removals=3", "batch-gaps=1", "malformed=1"} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary %q missing %q", s, want)
		}
	}
}

func TestNegativeDeltasIgnored(t *testing.T) {
	tr := NewTracker()
	tr.AddUpserts(-5)
	tr.AddBytesIn(-1)
	up, _, _, _ := tr.Totals()
	if up != 0 {
		t.Fatalf("negative add leaked: %d", up)
	}
}
