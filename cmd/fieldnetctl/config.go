package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	fieldapi "fieldnet/pkg/fieldnet"
)

func loadRunRequestFromConfig(path string) (fieldapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fieldapi.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fieldapi.RunRequest{}, err
	}

	var req fieldapi.RunRequest
	if v, ok := asString(raw["name"]); ok {
		req.Name = v
	}
	if v, ok := asString(raw["program"]); ok {
		req.Program = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["devices"]); ok {
		req.Devices = v
	}
	if v, ok := asFloat64(raw["period"]); ok {
		req.Period = v
	}
	if v, ok := asFloat64(raw["deadline"]); ok {
		req.Deadline = v
	}
	if v, ok := asFloat64(raw["retain_window"]); ok {
		req.RetainWindow = v
	}
	if v, ok := asFloat64(raw["epsilon"]); ok {
		req.Epsilon = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asBool(raw["parallel"]); ok {
		req.Parallel = v
	}
	if v, ok := asFloat64(raw["jitter"]); ok {
		req.Jitter = v
	}
	if v, ok := asFloat64(raw["radius"]); ok {
		req.Radius = v
	}
	if v, ok := asFloat64(raw["comm_speed"]); ok {
		req.CommSpeed = v
	}
	if v, ok := asString(raw["arcs_path"]); ok {
		req.ArcsPath = v
	}
	if v, ok := asString(raw["nodes_path"]); ok {
		req.NodesPath = v
	}
	if v, ok := asStringSlice(raw["nodes_columns"]); ok {
		req.NodesColumns = v
	}
	if v, ok := asBool(raw["nodes_have_start"]); ok {
		req.NodesHaveStart = v
	}
	if v, ok := asFloat64(raw["log_period"]); ok {
		req.LogPeriod = v
	}
	if v, ok := asString(raw["log_path"]); ok {
		req.LogPath = v
	}
	return req, nil
}

// overrideFromFlags lets explicitly-set command line flags win over the
// config file.
func overrideFromFlags(req *fieldapi.RunRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "name":
			req.Name = v.(string)
		case "program":
			req.Program = v.(string)
		case "seed":
			req.Seed = v.(int64)
		case "devices":
			req.Devices = v.(int)
		case "period":
			req.Period = v.(float64)
		case "deadline":
			req.Deadline = v.(float64)
		case "retain":
			req.RetainWindow = v.(float64)
		case "epsilon":
			req.Epsilon = v.(float64)
		case "workers":
			req.Workers = v.(int)
		case "parallel":
			req.Parallel = v.(bool)
		case "jitter":
			req.Jitter = v.(float64)
		case "radius":
			req.Radius = v.(float64)
		case "comm-speed":
			req.CommSpeed = v.(float64)
		case "arcs":
			req.ArcsPath = v.(string)
		case "nodes":
			req.NodesPath = v.(string)
		case "nodes-columns":
			req.NodesColumns = splitColumns(v.(string))
		case "nodes-have-start":
			req.NodesHaveStart = v.(bool)
		case "log-period":
			req.LogPeriod = v.(float64)
		case "log":
			req.LogPath = v.(string)
		}
	}
}

func formatRow(t float64, values []float64) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	for _, v := range values {
		fmt.Fprintf(&sb, " %s", strconv.FormatFloat(v, 'g', -1, 64))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asStringSlice(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
