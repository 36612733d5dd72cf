package strutil

import (
	"sort"
	"testing"
)

func TestNaturalLessNumericRuns(t *testing.T) {
	names := []string{"Part10", "Part2", "part1", "Brick", "zone"}
	sort.Slice(names, func(i, j int) bool { return NaturalLess(names[i], names[j]) })
	want := []string{"Brick", "part1", "Part2", "Part10", "zone"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("sorted = %v, want %v", names, want)
		}
	}
}

func TestNaturalLessCaseInsensitive(t *testing.T) {
	if !NaturalLess("apple", "Banana") {
		t.Error("apple should sort before Banana")
	}
	if NaturalLess("Banana", "apple") {
		t.Error("Banana should not sort before apple")
	}
}

func TestNaturalLessLeadingZeros(t *testing.T) {
	if !NaturalLess("n007", "n8") {
		t.Error("007 compares as 7, before 8")
	}
	if !NaturalLess("n8", "n010") {
		t.Error("8 before 010 (10)")
	}
}

func TestNaturalLessTotalOrder(t *testing.T) {
	// Equal ignoring case must still order deterministically.
	if NaturalLess("Part", "part") == NaturalLess("part", "Part") {
		t.Error("tie-break is not antisymmetric")
	}
	if NaturalLess("same", "same") {
		t.Error("irreflexive violation")
	}
}
