// Package graphio loads device populations and their link structure
// from plain text files: a nodes file with one device per line and an
// arcs file with one directed link per line.
package graphio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"fieldnet/internal/connect"
	"fieldnet/internal/model"
)

// NodeSpec is one parsed nodes-file line. UIDs are assigned in file
// order starting from 1.
type NodeSpec struct {
	UID   model.DeviceID
	Start model.Time
	Attrs map[string]float64
}

// Arc is one directed link from a parsed arcs file.
type Arc struct {
	From model.DeviceID
	To   model.DeviceID
}

// ReadNodes parses a nodes stream: whitespace-separated attribute
// values in the caller's declared column order. When hasStart is set
// the first column is the spawn time; otherwise defaultStart applies.
// Blank lines and #-comments are skipped.
func ReadNodes(r io.Reader, columns []string, hasStart bool, defaultStart model.Time) ([]NodeSpec, error) {
	var out []NodeSpec
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(stripComment(scanner.Text()))
		if len(fields) == 0 {
			continue
		}
		want := len(columns)
		if hasStart {
			want++
		}
		if len(fields) != want {
			return nil, fmt.Errorf("%w: nodes line %d has %d fields, want %d", model.ErrConfig, line, len(fields), want)
		}
		spec := NodeSpec{
			UID:   model.DeviceID(len(out) + 1),
			Start: defaultStart,
			Attrs: make(map[string]float64, len(columns)),
		}
		if hasStart {
			start, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: nodes line %d: bad start %q: %w", model.ErrConfig, line, fields[0], err)
			}
			spec.Start = start
			fields = fields[1:]
		}
		for i, col := range columns {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: nodes line %d: bad %s %q: %w", model.ErrConfig, line, col, fields[i], err)
			}
			spec.Attrs[col] = v
		}
		out = append(out, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	return out, nil
}

// ReadNodesFile is ReadNodes over a file path.
func ReadNodesFile(path string, columns []string, hasStart bool, defaultStart model.Time) ([]NodeSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open nodes %s: %w", model.ErrIO, path, err)
	}
	defer f.Close()
	return ReadNodes(f, columns, hasStart, defaultStart)
}

// ReadArcs parses an arcs stream: `from_uid to_uid` per line, one
// directed link each.
func ReadArcs(r io.Reader) ([]Arc, error) {
	var out []Arc
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(stripComment(scanner.Text()))
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: arcs line %d has %d fields, want 2", model.ErrConfig, line, len(fields))
		}
		from, err := parseUID(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: arcs line %d: %w", model.ErrConfig, line, err)
		}
		to, err := parseUID(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: arcs line %d: %w", model.ErrConfig, line, err)
		}
		out = append(out, Arc{From: from, To: to})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	return out, nil
}

// ReadArcsFile is ReadArcs over a file path.
func ReadArcsFile(path string) ([]Arc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open arcs %s: %w", model.ErrIO, path, err)
	}
	defer f.Close()
	return ReadArcs(f)
}

// BuildGraph turns an arc list into a graph connectivity.
func BuildGraph(arcs []Arc) *connect.Graph {
	g := connect.NewGraph()
	for _, a := range arcs {
		g.AddArc(a.From, a.To)
	}
	return g
}

func parseUID(s string) (model.DeviceID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad uid %q: %w", s, err)
	}
	return model.DeviceID(v), nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}
