package storage

import (
	"context"
	"reflect"
	"testing"

	"fieldnet/internal/model"
)

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	run := model.RunRecord{
		ID:         "run-1",
		Name:       "gossip",
		Seed:       42,
		Columns:    []string{"time", "count", "mean(min)"},
		Parameters: map[string]string{"devices": "3"},
		StartedAt:  "2026-08-25T10:00:00Z",
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	got, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, run) {
		t.Fatalf("run mismatch:\ngot=%+v\nwant=%+v", got, run)
	}

	// the stored record is a copy, not an alias
	run.Columns[0] = "mutated"
	again, _, _ := store.GetRun(ctx, "run-1")
	if again.Columns[0] != "time" {
		t.Fatal("expected stored run to be isolated from caller mutation")
	}
}

func TestMemoryStoreGetRunMissing(t *testing.T) {
	store := NewMemoryStore()
	_, ok, err := store.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected missing run to report ok=false")
	}
}

func TestMemoryStoreAppendAndGetRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rows := []model.Row{
		{Time: 0, Values: []float64{3, 5}},
		{Time: 1, Values: []float64{3, 2}},
	}
	if err := store.AppendRows(ctx, "run-1", rows[:1]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendRows(ctx, "run-1", rows[1:]); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, ok, err := store.GetRows(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get rows: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, rows) {
		t.Fatalf("rows mismatch:\ngot=%+v\nwant=%+v", got, rows)
	}

	if _, ok, _ := store.GetRows(ctx, "other"); ok {
		t.Fatal("expected no rows for an unknown run")
	}
}

func TestMemoryStoreListRuns(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, id := range []string{"a", "b"} {
		if err := store.SaveRun(ctx, model.RunRecord{ID: id}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got=%d", len(runs))
	}
}
