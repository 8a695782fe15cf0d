// Package fieldnet is the public surface of the aggregate-programming
// runtime: named programs run over a simulated network of devices,
// with aggregate rows logged to a text sink and to the run-history
// store.
package fieldnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"fieldnet/internal/connect"
	"fieldnet/internal/device"
	"fieldnet/internal/engine"
	"fieldnet/internal/exchange"
	"fieldnet/internal/field"
	"fieldnet/internal/graphio"
	"fieldnet/internal/logger"
	"fieldnet/internal/model"
	"fieldnet/internal/network"
	"fieldnet/internal/sequence"
	"fieldnet/internal/storage"
)

// Aliases for the core types callers write programs against.
type (
	DeviceID = model.DeviceID
	Time     = model.Time
	Round    = engine.Round
	Program  = engine.Program
	Fault    = model.Fault
)

// Re-exported error kinds for errors.Is checks at the boundary.
var (
	ErrConfig    = model.ErrConfig
	ErrIO        = model.ErrIO
	ErrRound     = model.ErrRound
	ErrTransport = model.ErrTransport
	ErrProtocol  = model.ErrProtocol
	ErrInvariant = model.ErrInvariant
)

// Wire codecs for the exchange primitives.
var (
	Bool   = exchange.Bool
	Int64  = exchange.Int64
	Float  = exchange.Float
	Device = exchange.Device
	String = exchange.String
	Bytes  = exchange.Bytes
)

// Exchange primitives, re-exported so programs import one package.
func Old[T any](r *Round, tag uint64, c exchange.Codec[T], init T, update func(T) T) T {
	return engine.Old(r, tag, c, init, update)
}

func Nbr[T any](r *Round, tag uint64, c exchange.Codec[T], init T, combine func(field.Field[T]) T) T {
	return engine.Nbr(r, tag, c, init, combine)
}

func Share[T any](r *Round, tag uint64, c exchange.Codec[T], init T, combine func(field.Field[T]) T) T {
	return engine.Share(r, tag, c, init, combine)
}

func NbrField[T any](r *Round, tag uint64, c exchange.Codec[T], value T) field.Field[T] {
	return engine.NbrField(r, tag, c, value)
}

func Branch[T any](r *Round, tag uint64, cond bool, then func() T, otherwise func() T) T {
	return engine.Branch(r, tag, cond, then, otherwise)
}

type Options struct {
	StoreKind string // memory|sqlite
	DBPath    string
}

const defaultDBPath = "fieldnet.db"

type Client struct {
	store storage.Store
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(context.Background()); err != nil {
		return nil, err
	}
	return &Client{store: store}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// RunRequest configures one simulated run of a registered program.
type RunRequest struct {
	Name    string // run label; defaults to the program name
	Program string
	Seed    int64

	Devices      int     // used when NodesPath is empty
	Period       Time    // round period; default 1
	Deadline     Time    // simulation end; default 10
	RetainWindow Time    // neighbour eviction window; default 2*Period
	Epsilon      Time    // parallel front-group tolerance
	Workers      int
	Parallel     bool
	Jitter       float64 // relative round-period jitter

	// Connectivity: arcs file first, else disk radius, else full.
	Radius    float64
	CommSpeed float64
	ArcsPath  string

	// Population from a nodes file; attribute columns become initial
	// storage values on each device.
	NodesPath      string
	NodesColumns   []string
	NodesHaveStart bool

	LogPeriod Time      // aggregate row cadence; default Period
	LogPath   string    // file or directory sink
	LogOutput io.Writer // overrides LogPath
}

// RunSummary reports what one run did.
type RunSummary struct {
	RunID     string
	Devices   int
	Rows      int
	Faults    int
	Snapshots []network.DeviceSnapshot
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	spec, ok := Lookup(req.Program)
	if !ok {
		return RunSummary{}, fmt.Errorf("%w: unknown program %q (have %v)", model.ErrConfig, req.Program, Names())
	}
	if req.Name == "" {
		req.Name = spec.Name
	}
	if req.Period <= 0 {
		req.Period = 1
	}
	if req.Deadline <= 0 {
		req.Deadline = 10
	}
	if req.RetainWindow <= 0 {
		req.RetainWindow = 2 * req.Period
	}
	if req.LogPeriod <= 0 {
		req.LogPeriod = req.Period
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}
	if req.NodesPath == "" && req.Devices <= 0 {
		req.Devices = 10
	}

	nodes, err := c.population(req)
	if err != nil {
		return RunSummary{}, err
	}
	conn, err := c.connectivity(req)
	if err != nil {
		return RunSummary{}, err
	}

	// fault hooks fire from worker goroutines on parallel runs
	var faults atomic.Int64
	net := network.New(network.Config{
		Seed:         req.Seed,
		RetainWindow: req.RetainWindow,
		Deadline:     req.Deadline,
		Epsilon:      req.Epsilon,
		Workers:      req.Workers,
		Parallel:     req.Parallel,
		Connectivity: conn,
		Program:      spec.Program,
		Hooks:        network.Hooks{OnFault: func(Fault) { faults.Add(1) }},
	})
	for _, spec := range nodes {
		nd, err := net.AddNode(spec.cfg)
		if err != nil {
			return RunSummary{}, err
		}
		for _, attr := range spec.attrOrder {
			nd.Storage().Set(attr, spec.attrs[attr])
		}
	}

	log, err := logger.Open(logger.Config{
		Name:       req.Name,
		Seed:       req.Seed,
		Parameters: c.parameters(req),
		Columns:    spec.Columns,
		Output:     req.LogOutput,
		Path:       req.LogPath,
		Store:      c.store,
	})
	if err != nil {
		return RunSummary{}, err
	}

	rows := 0
	net.AddSource("logger", &sequence.Periodic{Start: 0, Period: req.LogPeriod, End: req.Deadline}, func(t Time) error {
		tuples := make([]map[string]any, 0, len(nodes))
		for _, snap := range net.Snapshots() {
			tuples = append(tuples, snap.Values)
		}
		rows++
		return log.Log(t, tuples)
	})

	if err := net.Run(ctx); err != nil {
		_ = log.Close()
		return RunSummary{}, err
	}
	if err := log.Close(); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:     log.RunID(),
		Devices:   len(nodes),
		Rows:      rows,
		Faults:    int(faults.Load()),
		Snapshots: net.Snapshots(),
	}, nil
}

// Runs lists stored run records.
func (c *Client) Runs(ctx context.Context) ([]model.RunRecord, error) {
	return c.store.ListRuns(ctx)
}

// Rows returns the logged rows of one stored run.
func (c *Client) Rows(ctx context.Context, runID string) ([]model.Row, error) {
	rows, ok, err := c.store.GetRows(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no rows for run id: %s", runID)
	}
	return rows, nil
}

type nodeSetup struct {
	cfg       device.Config
	attrs     map[string]float64
	attrOrder []string
}

func (c *Client) population(req RunRequest) ([]nodeSetup, error) {
	schedule := func(start Time) sequence.Generator {
		return &sequence.Periodic{Start: start, Period: req.Period, End: req.Deadline, Jitter: req.Jitter}
	}
	if req.NodesPath == "" {
		out := make([]nodeSetup, 0, req.Devices)
		for uid := 1; uid <= req.Devices; uid++ {
			out = append(out, nodeSetup{cfg: device.Config{
				UID:      DeviceID(uid),
				Schedule: schedule(0),
			}})
		}
		return out, nil
	}

	specs, err := graphio.ReadNodesFile(req.NodesPath, req.NodesColumns, req.NodesHaveStart, 0)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: nodes file %s is empty", model.ErrConfig, req.NodesPath)
	}
	out := make([]nodeSetup, 0, len(specs))
	for _, spec := range specs {
		setup := nodeSetup{
			cfg: device.Config{
				UID:      spec.UID,
				Schedule: schedule(spec.Start),
			},
			attrs:     spec.Attrs,
			attrOrder: req.NodesColumns,
		}
		// x/y attribute columns double as spatial coordinates
		if x, ok := spec.Attrs["x"]; ok {
			setup.cfg.Position = []float64{x, spec.Attrs["y"]}
		}
		out = append(out, setup)
	}
	return out, nil
}

func (c *Client) connectivity(req RunRequest) (connect.Connectivity, error) {
	switch {
	case req.ArcsPath != "":
		arcs, err := graphio.ReadArcsFile(req.ArcsPath)
		if err != nil {
			return nil, err
		}
		return graphio.BuildGraph(arcs), nil
	case req.Radius > 0:
		return connect.Disk{Radius: req.Radius, Speed: req.CommSpeed}, nil
	default:
		return connect.Fully{}, nil
	}
}

func (c *Client) parameters(req RunRequest) map[string]string {
	params := map[string]string{
		"program": req.Program,
		"period":  formatParam(req.Period),
	}
	if req.NodesPath == "" {
		params["devices"] = strconv.Itoa(req.Devices)
	}
	if req.Radius > 0 {
		params["radius"] = formatParam(req.Radius)
	}
	if req.Parallel {
		params["workers"] = strconv.Itoa(req.Workers)
	}
	return params
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ExitCode maps a boundary error to the process exit convention: 1 for
// configuration errors, 2 for I/O, 3 for invariant violations.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, model.ErrInvariant):
		return 3
	case errors.Is(err, model.ErrIO):
		return 2
	default:
		return 1
	}
}
