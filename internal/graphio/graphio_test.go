package graphio

import (
	"errors"
	"strings"
	"testing"

	"fieldnet/internal/model"
)

func TestReadNodesAssignsUIDsAndAttrs(t *testing.T) {
	input := `
# x y
0 0
1 0   # second device
2.5 1
`
	nodes, err := ReadNodes(strings.NewReader(input), []string{"x", "y"}, false, 0)
	if err != nil {
		t.Fatalf("read nodes: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got=%d", len(nodes))
	}
	if nodes[0].UID != 1 || nodes[2].UID != 3 {
		t.Fatalf("expected uids assigned in file order, got %d..%d", nodes[0].UID, nodes[2].UID)
	}
	if nodes[2].Attrs["x"] != 2.5 || nodes[2].Attrs["y"] != 1 {
		t.Fatalf("unexpected attrs: %v", nodes[2].Attrs)
	}
	if nodes[1].Start != 0 {
		t.Fatalf("expected default start, got=%v", nodes[1].Start)
	}
}

func TestReadNodesWithStartColumn(t *testing.T) {
	nodes, err := ReadNodes(strings.NewReader("1.5 7\n3 9\n"), []string{"v"}, true, 0)
	if err != nil {
		t.Fatalf("read nodes: %v", err)
	}
	if nodes[0].Start != 1.5 || nodes[1].Start != 3 {
		t.Fatalf("unexpected starts: %v %v", nodes[0].Start, nodes[1].Start)
	}
	if nodes[0].Attrs["v"] != 7 {
		t.Fatalf("unexpected attr: %v", nodes[0].Attrs)
	}
}

func TestReadNodesRejectsBadFieldCount(t *testing.T) {
	_, err := ReadNodes(strings.NewReader("1 2 3\n"), []string{"x", "y"}, false, 0)
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected config error, got=%v", err)
	}
}

func TestReadNodesRejectsBadNumber(t *testing.T) {
	_, err := ReadNodes(strings.NewReader("1 oops\n"), []string{"x", "y"}, false, 0)
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected config error, got=%v", err)
	}
}

func TestReadArcsDirected(t *testing.T) {
	arcs, err := ReadArcs(strings.NewReader("1 2\n2 1\n2 3\n"))
	if err != nil {
		t.Fatalf("read arcs: %v", err)
	}
	if len(arcs) != 3 || arcs[2] != (Arc{From: 2, To: 3}) {
		t.Fatalf("unexpected arcs: %v", arcs)
	}
}

func TestReadArcsRejectsBadUID(t *testing.T) {
	_, err := ReadArcs(strings.NewReader("1 -2\n"))
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected config error, got=%v", err)
	}
}

func TestReadNodesFileMissingIsIOError(t *testing.T) {
	_, err := ReadNodesFile("does-not-exist.txt", nil, false, 0)
	if !errors.Is(err, model.ErrIO) {
		t.Fatalf("expected io error, got=%v", err)
	}
}
