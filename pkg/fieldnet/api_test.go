package fieldnet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func snapshotFloat(t *testing.T, values map[string]any, tag string) float64 {
	t.Helper()
	v, ok := values[tag].(float64)
	if !ok {
		t.Fatalf("expected float %s in snapshot, got %v", tag, values)
	}
	return v
}

func TestClientRunGossipMinFromNodesFile(t *testing.T) {
	client := newTestClient(t)
	nodesPath := writeFile(t, t.TempDir(), "nodes.txt", "5\n2\n7\n")

	var sb strings.Builder
	summary, err := client.Run(context.Background(), RunRequest{
		Program:      "gossip-min",
		Seed:         42,
		Deadline:     4,
		NodesPath:    nodesPath,
		NodesColumns: []string{"value"},
		LogOutput:    &sb,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if summary.Devices != 3 {
		t.Fatalf("expected 3 devices, got=%d", summary.Devices)
	}
	if summary.Faults != 0 {
		t.Fatalf("expected no faults, got=%d", summary.Faults)
	}
	if summary.Rows == 0 {
		t.Fatal("expected logged rows")
	}
	for _, snap := range summary.Snapshots {
		if got := snapshotFloat(t, snap.Values, "min"); got != 2 {
			t.Fatalf("device %d: min=%v, want 2", snap.UID, got)
		}
	}

	out := sb.String()
	for _, want := range []string{
		"name = gossip-min, seed = 42",
		"# time count(min) min(min) max(min)",
		"# data export finished at:",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}

	runs, err := client.Runs(context.Background())
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != summary.RunID {
		t.Fatalf("expected stored run %s, got %+v", summary.RunID, runs)
	}
	rows, err := client.Rows(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != summary.Rows {
		t.Fatalf("stored rows=%d, summary rows=%d", len(rows), summary.Rows)
	}
	// count(min) over 3 devices
	if rows[0].Values[0] != 3 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
}

func TestClientRunDistanceOverArcsFile(t *testing.T) {
	client := newTestClient(t)
	arcsPath := writeFile(t, t.TempDir(), "arcs.txt", "1 2\n2 1\n2 3\n3 2\n")

	summary, err := client.Run(context.Background(), RunRequest{
		Program:   "abf-distance",
		Devices:   3,
		Deadline:  6,
		ArcsPath:  arcsPath,
		LogOutput: &strings.Builder{},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []float64{0, 1, 2}
	for i, snap := range summary.Snapshots {
		if got := snapshotFloat(t, snap.Values, "dist"); got != want[i] {
			t.Fatalf("device %d: dist=%v, want %v", snap.UID, got, want[i])
		}
	}
}

func TestClientRunCollectionSumsIntoSource(t *testing.T) {
	client := newTestClient(t)
	dir := t.TempDir()
	nodesPath := writeFile(t, dir, "nodes.txt", "1\n2\n3\n")
	arcsPath := writeFile(t, dir, "arcs.txt", "1 2\n2 1\n2 3\n3 2\n")

	summary, err := client.Run(context.Background(), RunRequest{
		Program:      "collection",
		Seed:         7,
		Deadline:     12,
		NodesPath:    nodesPath,
		NodesColumns: []string{"value"},
		ArcsPath:     arcsPath,
		LogOutput:    &strings.Builder{},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := snapshotFloat(t, summary.Snapshots[0].Values, "collected"); got != 6 {
		t.Fatalf("source collected=%v, want 6", got)
	}
}

func TestClientRunParallelMatchesSequential(t *testing.T) {
	client := newTestClient(t)
	nodesPath := writeFile(t, t.TempDir(), "nodes.txt", "9\n4\n6\n1\n8\n")

	run := func(parallel bool) RunSummary {
		summary, err := client.Run(context.Background(), RunRequest{
			Program:      "gossip-min",
			Seed:         3,
			Deadline:     5,
			NodesPath:    nodesPath,
			NodesColumns: []string{"value"},
			Parallel:     parallel,
			Workers:      3,
			LogOutput:    &strings.Builder{},
		})
		if err != nil {
			t.Fatalf("run parallel=%v: %v", parallel, err)
		}
		return summary
	}

	seq, par := run(false), run(true)
	if len(seq.Snapshots) != len(par.Snapshots) {
		t.Fatalf("snapshot count mismatch: %d vs %d", len(seq.Snapshots), len(par.Snapshots))
	}
	for i := range seq.Snapshots {
		sv := snapshotFloat(t, seq.Snapshots[i].Values, "min")
		pv := snapshotFloat(t, par.Snapshots[i].Values, "min")
		if sv != pv {
			t.Fatalf("device %d diverged: sequential=%v parallel=%v", seq.Snapshots[i].UID, sv, pv)
		}
	}
}

func TestClientRunCountsFaultsAcrossParallelRounds(t *testing.T) {
	Register(ProgramSpec{
		Name: "flaky-sensor",
		Program: func(r *Round) error {
			if r.UID == 2 {
				return errors.New("sensor offline")
			}
			r.Storage.Set("ok", 1.0)
			return nil
		},
	})
	client := newTestClient(t)

	summary, err := client.Run(context.Background(), RunRequest{
		Program:   "flaky-sensor",
		Devices:   6,
		Deadline:  3,
		Parallel:  true,
		Workers:   3,
		LogOutput: &strings.Builder{},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// device 2 faults once per round at t=0..3
	if summary.Faults != 4 {
		t.Fatalf("expected 4 faults, got=%d", summary.Faults)
	}
}

func TestClientRunUnknownProgramIsConfigError(t *testing.T) {
	client := newTestClient(t)
	_, err := client.Run(context.Background(), RunRequest{Program: "does-not-exist"})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected config error, got=%v", err)
	}
}

func TestClientRunMissingNodesFileIsIOError(t *testing.T) {
	client := newTestClient(t)
	_, err := client.Run(context.Background(), RunRequest{
		Program:      "gossip-min",
		NodesPath:    filepath.Join(t.TempDir(), "missing.txt"),
		NodesColumns: []string{"value"},
	})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected io error, got=%v", err)
	}
}

type failingSink struct{}

func (failingSink) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestClientRunLogSinkFailureExitsAsIO(t *testing.T) {
	client := newTestClient(t)
	_, err := client.Run(context.Background(), RunRequest{
		Program:   "gossip-min",
		Devices:   2,
		Deadline:  2,
		LogOutput: failingSink{},
	})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected io error from failing log sink, got=%v", err)
	}
	if got := ExitCode(err); got != 2 {
		t.Fatalf("expected exit code 2, got=%d", got)
	}
}

func TestNamesListsBuiltinsSorted(t *testing.T) {
	names := Names()
	want := []string{"abf-distance", "collection", "gossip-min"}
	found := 0
	for _, name := range names {
		if found < len(want) && name == want[found] {
			found++
		}
	}
	if found != len(want) {
		t.Fatalf("expected builtins %v in sorted Names(), got %v", want, names)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{ErrInvariant, 3},
		{ErrIO, 2},
		{ErrConfig, 1},
		{ErrRound, 1},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.want {
			t.Fatalf("ExitCode(%v)=%d, want %d", tc.err, got, tc.want)
		}
	}
}
