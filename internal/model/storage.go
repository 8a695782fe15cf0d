package model

// Storage is a device's tuple of user-declared variables. Tags keep
// their declaration order so that logged columns are stable across
// runs.
type Storage struct {
	tags []string
	vals map[string]any
}

func NewStorage(tags ...string) *Storage {
	s := &Storage{
		tags: append([]string(nil), tags...),
		vals: make(map[string]any, len(tags)),
	}
	return s
}

// Set assigns a value to a tag, declaring the tag on first use.
func (s *Storage) Set(tag string, v any) {
	if _, ok := s.vals[tag]; !ok {
		if !s.declared(tag) {
			s.tags = append(s.tags, tag)
		}
	}
	s.vals[tag] = v
}

func (s *Storage) declared(tag string) bool {
	for _, t := range s.tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (s *Storage) Get(tag string) (any, bool) {
	v, ok := s.vals[tag]
	return v, ok
}

// Float reads a tag as float64, coercing the integer types a program
// may store.
func (s *Storage) Float(tag string) (float64, bool) {
	v, ok := s.vals[tag]
	if !ok {
		return 0, false
	}
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
	case DeviceID:
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

func (s *Storage) Tags() []string {
	return append([]string(nil), s.tags...)
}

// Snapshot copies the current values for loggers; the copy is safe to
// read after the round moves on.
func (s *Storage) Snapshot() map[string]any {
	out := make(map[string]any, len(s.vals))
	for k, v := range s.vals {
		out[k] = v
	}
	return out
}
