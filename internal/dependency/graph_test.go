package dependency

import (
	"reflect"
	"testing"
)

func TestDetectCyclesFindsTwoNodeCycle(t *testing.T) {
	g := &Graph{
		Root:  "a",
		Nodes: []string{"a", "b"},
		Edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	}

	cycle := DetectCycles(g)
	if !reflect.DeepEqual(cycle, []string{"a", "b", "a"}) {
		t.Fatalf("expected [a b a], got %v", cycle)
	}
}

func TestDetectCyclesReturnsInnerPath(t *testing.T) {
	g := &Graph{
		Root:  "root",
		Nodes: []string{"root", "x", "y", "z"},
		Edges: []Edge{
			{From: "root", To: "x"},
			{From: "x", To: "y"},
			{From: "y", To: "z"},
			{From: "z", To: "x"},
		},
	}

	cycle := DetectCycles(g)
	if !reflect.DeepEqual(cycle, []string{"x", "y", "z", "x"}) {
		t.Fatalf("unexpected cycle %v", cycle)
	}
}

func TestDetectCyclesAcyclic(t *testing.T) {
	g := &Graph{
		Root:  "a",
		Nodes: []string{"a", "b", "c", "d"},
		Edges: []Edge{
			{From: "a", To: "b"},
			{From: "a", To: "c"},
			{From: "b", To: "d"},
			{From: "c", To: "d"},
		},
	}
	if cycle := DetectCycles(g); cycle != nil {
		t.Fatalf("expected no cycle, got %v", cycle)
	}
	if cycle := DetectCycles(nil); cycle != nil {
		t.Fatalf("expected nil for nil graph, got %v", cycle)
	}
}

func TestDetectCyclesSelfLoop(t *testing.T) {
	g := &Graph{Root: "a", Nodes: []string{"a"}, Edges: []Edge{{From: "a", To: "a"}}}
	if cycle := DetectCycles(g); !reflect.DeepEqual(cycle, []string{"a", "a"}) {
		t.Fatalf("expected [a a], got %v", cycle)
	}
}

func TestToDiagram(t *testing.T) {
	g := &Graph{
		Root:  "@acme/app",
		Nodes: []string{"@acme/app", "left-pad", "_acme_app"},
		Edges: []Edge{{From: "@acme/app", To: "left-pad"}, {From: "@acme/app", To: "_acme_app"}},
	}

	want := "graph TD\n" +
		"  _acme_app[\"@acme/app\"]\n" +
		"  left_pad[\"left-pad\"]\n" +
		"  _acme_app_2[\"_acme_app\"]\n" +
		"  _acme_app --> left_pad\n" +
		"  _acme_app --> _acme_app_2\n"
	if got := ToDiagram(g); got != want {
		t.Fatalf("unexpected diagram:\n%s", got)
	}
	if ToDiagram(g) != ToDiagram(g) {
		t.Fatalf("diagram is not deterministic")
	}
}
