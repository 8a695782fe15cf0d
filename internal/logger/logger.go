// Package logger turns per-device storage tuples into aggregate data
// rows on a text stream, and optionally into run history records.
package logger

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldnet/internal/model"
	"fieldnet/internal/storage"
)

// Aggregator reduces the values one storage tag holds across the whole
// population into a single column.
type Aggregator struct {
	Name   string
	Reduce func(values []float64) float64
}

var (
	Count = Aggregator{Name: "count", Reduce: func(v []float64) float64 { return float64(len(v)) }}
	Sum   = Aggregator{Name: "sum", Reduce: sum}
	Mean  = Aggregator{Name: "mean", Reduce: func(v []float64) float64 {
		if len(v) == 0 {
			return math.NaN()
		}
		return sum(v) / float64(len(v))
	}}
	Min = Aggregator{Name: "min", Reduce: func(v []float64) float64 {
		out := math.Inf(1)
		for _, x := range v {
			out = math.Min(out, x)
		}
		return out
	}}
	Max = Aggregator{Name: "max", Reduce: func(v []float64) float64 {
		out := math.Inf(-1)
		for _, x := range v {
			out = math.Max(out, x)
		}
		return out
	}}
)

func sum(v []float64) float64 {
	var out float64
	for _, x := range v {
		out += x
	}
	return out
}

// Column pairs a storage tag with the aggregator applied to it. Its
// header reads aggregator(tag).
type Column struct {
	Tag string
	Agg Aggregator
}

func (c Column) Header() string { return fmt.Sprintf("%s(%s)", c.Agg.Name, c.Tag) }

// Config assembles a logger. Exactly one sink applies: Output when
// set, else Path; a Path ending in a separator is treated as a
// directory and the file name is generated from the run name and
// parameters.
type Config struct {
	Name       string
	Seed       int64
	Parameters map[string]string
	Columns    []Column

	Output io.Writer
	Path   string

	Store storage.Store // optional run-history persistence
	RunID string        // generated when empty

	Now func() time.Time // defaults to time.Now
}

// Logger writes a preamble on open, one aggregate row per log event,
// and a footer on close.
type Logger struct {
	cfg     Config
	runID   string
	out     io.Writer
	closer  io.Closer
	now     func() time.Time
	started time.Time
}

// Open resolves the sink, writes the preamble and registers the run.
func Open(cfg Config) (*Logger, error) {
	l := &Logger{cfg: cfg, runID: cfg.RunID, now: cfg.Now}
	if l.now == nil {
		l.now = time.Now
	}
	if l.runID == "" {
		l.runID = uuid.NewString()
	}

	switch {
	case cfg.Output != nil:
		l.out = cfg.Output
	case cfg.Path != "":
		path := cfg.Path
		if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator)) {
			path += generateName(cfg)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("%w: create log %s: %w", model.ErrIO, path, err)
		}
		l.out = f
		l.closer = f
	default:
		l.out = os.Stdout
	}

	l.started = l.now()
	l.preamble()

	if cfg.Store != nil {
		err := cfg.Store.SaveRun(context.Background(), model.RunRecord{
			ID:         l.runID,
			Name:       cfg.Name,
			Seed:       cfg.Seed,
			Columns:    l.headers(),
			Parameters: cfg.Parameters,
			StartedAt:  l.started.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Logger) RunID() string { return l.runID }

// Log aggregates one population snapshot into a row. Devices that
// never stored a column's tag do not contribute to it.
func (l *Logger) Log(t model.Time, tuples []map[string]any) error {
	row := model.Row{Time: t, Values: make([]float64, 0, len(l.cfg.Columns))}
	for _, col := range l.cfg.Columns {
		var values []float64
		for _, tuple := range tuples {
			if v, ok := asFloat(tuple[col.Tag]); ok {
				values = append(values, v)
			}
		}
		row.Values = append(row.Values, col.Agg.Reduce(values))
	}

	fields := make([]string, 0, len(row.Values)+1)
	fields = append(fields, formatFloat(t))
	for _, v := range row.Values {
		fields = append(fields, formatFloat(v))
	}
	if _, err := fmt.Fprintln(l.out, strings.Join(fields, " ")); err != nil {
		return fmt.Errorf("%w: write row: %w", model.ErrIO, err)
	}

	if l.cfg.Store != nil {
		return l.cfg.Store.AppendRows(context.Background(), l.runID, []model.Row{row})
	}
	return nil
}

// Close writes the footer, finalises the run record and releases the
// sink.
func (l *Logger) Close() error {
	banner(l.out)
	fmt.Fprintf(l.out, "# data export finished at: %s #\n", l.now().Format(time.ANSIC))
	banner(l.out)

	if l.cfg.Store != nil {
		err := l.cfg.Store.SaveRun(context.Background(), model.RunRecord{
			ID:         l.runID,
			Name:       l.cfg.Name,
			Seed:       l.cfg.Seed,
			Columns:    l.headers(),
			Parameters: l.cfg.Parameters,
			StartedAt:  l.started.UTC().Format(time.RFC3339),
			FinishedAt: l.now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
	}
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) preamble() {
	banner(l.out)
	fmt.Fprintf(l.out, "# data export started at:  %s #\n", l.started.Format(time.ANSIC))
	banner(l.out)
	fmt.Fprintf(l.out, "# run = %s", l.runID)
	if l.cfg.Name != "" {
		fmt.Fprintf(l.out, ", name = %s", l.cfg.Name)
	}
	fmt.Fprintf(l.out, ", seed = %d", l.cfg.Seed)
	for _, k := range sortedKeys(l.cfg.Parameters) {
		fmt.Fprintf(l.out, ", %s = %s", k, l.cfg.Parameters[k])
	}
	fmt.Fprint(l.out, "\n#\n")
	fmt.Fprintf(l.out, "# The columns have the following meaning:\n# %s\n", strings.Join(append([]string{"time"}, l.headers()...), " "))
}

func (l *Logger) headers() []string {
	out := make([]string, len(l.cfg.Columns))
	for i, col := range l.cfg.Columns {
		out[i] = col.Header()
	}
	return out
}

func banner(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("#", 58))
}

// generateName builds a directory-sink file name from the run name and
// the parameters, underscore separated.
func generateName(cfg Config) string {
	var sb strings.Builder
	if cfg.Name != "" {
		sb.WriteString(cfg.Name)
		sb.WriteByte('_')
	}
	sb.WriteString(fmt.Sprintf("seed-%d", cfg.Seed))
	for _, k := range sortedKeys(cfg.Parameters) {
		sb.WriteString(fmt.Sprintf("_%s-%s", k, cfg.Parameters[k]))
	}
	sb.WriteString(".txt")
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// asFloat coerces the value types programs store into a column value.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case model.DeviceID:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
