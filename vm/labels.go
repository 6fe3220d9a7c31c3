package vm

import (
	"sort"
	"strings"
)

// Labels maps fully-qualified label names to the index of their defining
// marker. The addressable cell of a label is the slot after the marker.
// Redefinition silently replaces the previous target.
type Labels struct {
	byName map[string]int
}

// NewLabels creates an empty label table.
func NewLabels() *Labels {
	return &Labels{byName: make(map[string]int)}
}

// Define registers or re-registers name at index.
func (l *Labels) Define(name string, index int) {
	l.byName[name] = index
}

// Lookup returns the marker index for name.
func (l *Labels) Lookup(name string) (int, bool) {
	idx, ok := l.byName[name]
	return idx, ok
}

// Len returns the number of labels.
func (l *Labels) Len() int { return len(l.byName) }

// Names returns all label names in sorted order.
func (l *Labels) Names() []string {
	names := make([]string, 0, len(l.byName))
	for name := range l.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NameAt returns a label registered at index, preferring the shortest name.
func (l *Labels) NameAt(index int) (string, bool) {
	best, found := "", false
	for name, idx := range l.byName {
		if idx != index {
			continue
		}
		if !found || len(name) < len(best) || (len(name) == len(best) && name < best) {
			best, found = name, true
		}
	}
	return best, found
}

// Shift moves every label that points at or past from by n slots.
func (l *Labels) Shift(from, n int) {
	for name, idx := range l.byName {
		if idx >= from {
			l.byName[name] = idx + n
		}
	}
}

// Clone returns an independent copy of the table.
func (l *Labels) Clone() *Labels {
	c := &Labels{byName: make(map[string]int, len(l.byName))}
	for name, idx := range l.byName {
		c.byName[name] = idx
	}
	return c
}

// Snapshot returns a copy of the underlying map.
func (l *Labels) Snapshot() map[string]int {
	return l.Clone().byName
}

// LabelsFrom builds a table from a name -> index map.
func LabelsFrom(m map[string]int) *Labels {
	l := NewLabels()
	for name, idx := range m {
		l.byName[name] = idx
	}
	return l
}

// Qualify joins scope segments and a name with ScopeSep.
func Qualify(prefix []string, name string) string {
	if len(prefix) == 0 {
		return name
	}
	return strings.Join(prefix, ScopeSep) + ScopeSep + name
}

// lookupRelative searches name under prefix, then under each shorter prefix,
// most specific first. name must not carry the leading separator.
func (l *Labels) lookupRelative(prefix []string, name string) (string, int, bool) {
	for k := len(prefix); k >= 0; k-- {
		q := Qualify(prefix[:k], name)
		if idx, ok := l.byName[q]; ok {
			return q, idx, true
		}
	}
	return "", 0, false
}

// SplitScope splits a qualified name into its segments.
func SplitScope(qualified string) []string {
	if qualified == "" {
		return nil
	}
	return strings.Split(qualified, ScopeSep)
}
