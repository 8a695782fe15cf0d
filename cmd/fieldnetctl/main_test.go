package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunCommandWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	nodesPath := writeTestFile(t, dir, "nodes.txt", "5\n2\n7\n")
	logPath := filepath.Join(dir, "out.txt")

	err := run(context.Background(), []string{"run",
		"-program", "gossip-min",
		"-nodes", nodesPath,
		"-nodes-columns", "value",
		"-deadline", "3",
		"-seed", "42",
		"-log", logPath,
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"name = gossip-min, seed = 42",
		"# data export finished at:",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommandConfigFileWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	nodesPath := writeTestFile(t, dir, "nodes.txt", "4\n8\n")
	logPath := filepath.Join(dir, "out.txt")
	configPath := writeTestFile(t, dir, "run.json", `{
  "program": "gossip-min",
  "seed": 5,
  "deadline": 100,
  "nodes_path": "`+nodesPath+`",
  "nodes_columns": ["value"]
}`)

	err := run(context.Background(), []string{"run",
		"-config", configPath,
		"-deadline", "3",
		"-log", logPath,
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

func TestRunCommandUnknownProgramFails(t *testing.T) {
	err := run(context.Background(), []string{"run", "-program", "nope", "-deadline", "1"})
	if err == nil || !strings.Contains(err.Error(), "unknown program") {
		t.Fatalf("expected unknown program error, got %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	nodesPath := writeTestFile(t, dir, "nodes.txt", "0 0\n1 0\n")
	arcsPath := writeTestFile(t, dir, "arcs.txt", "1 2\n2 1\n")

	err := run(context.Background(), []string{"validate",
		"-nodes", nodesPath,
		"-nodes-columns", "x,y",
		"-arcs", arcsPath,
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	badArcs := writeTestFile(t, dir, "bad.txt", "1 2 3\n")
	if err := run(context.Background(), []string{"validate", "-arcs", badArcs}); err == nil {
		t.Fatal("expected malformed arcs error")
	}

	if err := run(context.Background(), []string{"validate"}); err == nil {
		t.Fatal("expected usage error without inputs")
	}
}

func TestProgramsCommand(t *testing.T) {
	if err := run(context.Background(), []string{"programs"}); err != nil {
		t.Fatalf("programs: %v", err)
	}
}

func TestRowsCommandRequiresRunID(t *testing.T) {
	if err := run(context.Background(), []string{"rows"}); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}
