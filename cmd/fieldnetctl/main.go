package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"fieldnet/internal/graphio"
	fieldapi "fieldnet/pkg/fieldnet"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(fieldapi.ExitCode(err))
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "programs":
		return runPrograms(ctx, args[1:])
	case "validate":
		return runValidate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "rows":
		return runRows(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	name := fs.String("name", "", "run label (defaults to the program name)")
	program := fs.String("program", "gossip-min", "registered program name")
	seed := fs.Int64("seed", 1, "rng seed")
	devices := fs.Int("devices", 10, "device count when no nodes file is given")
	period := fs.Float64("period", 1, "round period")
	deadline := fs.Float64("deadline", 10, "simulation end time")
	retain := fs.Float64("retain", 0, "neighbour retain window (0 uses 2*period)")
	epsilon := fs.Float64("epsilon", 0, "parallel front-group tolerance")
	workers := fs.Int("workers", 4, "worker count for parallel runs")
	parallel := fs.Bool("parallel", false, "run the scheduler front groups in parallel")
	jitter := fs.Float64("jitter", 0, "relative round-period jitter")
	radius := fs.Float64("radius", 0, "disk connectivity radius (0 means fully connected)")
	commSpeed := fs.Float64("comm-speed", 0, "signal speed for distance-based delivery delay")
	arcsPath := fs.String("arcs", "", "arcs file path (overrides radius connectivity)")
	nodesPath := fs.String("nodes", "", "nodes file path")
	nodesColumns := fs.String("nodes-columns", "", "comma-separated nodes file attribute columns")
	nodesHaveStart := fs.Bool("nodes-have-start", false, "first nodes column is the spawn time")
	logPeriod := fs.Float64("log-period", 0, "aggregate row cadence (0 uses period)")
	logPath := fs.String("log", "", "log sink: file path, or directory ending in / (default stdout)")
	storeKind := fs.String("store", "memory", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fieldnet.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req := fieldapi.RunRequest{}
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", *configPath, err)
		}
		req = loaded
	}
	overrideFromFlags(&req, setFlags, map[string]any{
		"name":             *name,
		"program":          *program,
		"seed":             *seed,
		"devices":          *devices,
		"period":           *period,
		"deadline":         *deadline,
		"retain":           *retain,
		"epsilon":          *epsilon,
		"workers":          *workers,
		"parallel":         *parallel,
		"jitter":           *jitter,
		"radius":           *radius,
		"comm-speed":       *commSpeed,
		"arcs":             *arcsPath,
		"nodes":            *nodesPath,
		"nodes-columns":    *nodesColumns,
		"nodes-have-start": *nodesHaveStart,
		"log-period":       *logPeriod,
		"log":              *logPath,
	})
	if req.Program == "" {
		req.Program = *program
	}

	client, err := fieldapi.New(fieldapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run complete id=%s devices=%d rows=%d faults=%d\n",
		summary.RunID, summary.Devices, summary.Rows, summary.Faults)
	return nil
}

func runPrograms(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("programs", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range fieldapi.Names() {
		fmt.Println(name)
	}
	return nil
}

func runValidate(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	nodesPath := fs.String("nodes", "", "nodes file path")
	nodesColumns := fs.String("nodes-columns", "", "comma-separated nodes file attribute columns")
	nodesHaveStart := fs.Bool("nodes-have-start", false, "first nodes column is the spawn time")
	arcsPath := fs.String("arcs", "", "arcs file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *nodesPath == "" && *arcsPath == "" {
		return usageError("validate needs -nodes and/or -arcs")
	}

	if *nodesPath != "" {
		nodes, err := graphio.ReadNodesFile(*nodesPath, splitColumns(*nodesColumns), *nodesHaveStart, 0)
		if err != nil {
			return err
		}
		fmt.Printf("nodes ok: %d devices\n", len(nodes))
	}
	if *arcsPath != "" {
		arcs, err := graphio.ReadArcsFile(*arcsPath)
		if err != nil {
			return err
		}
		fmt.Printf("arcs ok: %d links\n", len(arcs))
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", "memory", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fieldnet.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := fieldapi.New(fieldapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("%s name=%s seed=%d started=%s finished=%s\n",
			run.ID, run.Name, run.Seed, run.StartedAt, run.FinishedAt)
	}
	return nil
}

func runRows(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rows", flag.ContinueOnError)
	runID := fs.String("run-id", "", "stored run id")
	storeKind := fs.String("store", "memory", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "fieldnet.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("rows needs -run-id")
	}

	client, err := fieldapi.New(fieldapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	rows, err := client.Rows(ctx, *runID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Print(formatRow(row.Time, row.Values))
	}
	return nil
}

func splitColumns(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: fieldnetctl <run|programs|validate|runs|rows> [flags]", msg)
}
