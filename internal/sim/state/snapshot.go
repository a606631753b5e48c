// Package state contains the in-memory stores the reference engine commits
// into every tick: a columnar snapshot list and a per-tick metrics store.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownNode indicates a query named a node type that was never registered.
	ErrUnknownNode = errors.New("unknown node type")
	// ErrUnknownAttribute indicates a query named an attribute the node type lacks.
	ErrUnknownAttribute = errors.New("unknown attribute")
	// ErrNodeIndex indicates a node index outside the registered node count.
	ErrNodeIndex = errors.New("node index out of range")
	// ErrSlotCount indicates a write supplied the wrong number of slot values.
	ErrSlotCount = errors.New("wrong slot count")
)

// AttrSpec declares one attribute column. Slots > 1 makes the attribute a
// fixed-size list (for example a storage's product list).
type AttrSpec struct {
	Name  string
	Slots int
}

// NodeSpec declares a node type with Count rows.
type NodeSpec struct {
	Name  string
	Count int
	Attrs []AttrSpec
}

type attrLayout struct {
	offset int
	slots  int
}

type nodeFrame struct {
	spec     NodeSpec
	layout   map[string]attrLayout
	rowWidth int
	current  []float64
	history  map[int][]float64
}

// SnapshotList is an append-only, tick-indexed columnar store. Writers mutate
// the current frame and Commit copies it under a tick; readers only ever see
// committed ticks. Ticks that were never committed, or have been evicted,
// read as zeros.
type SnapshotList struct {
	mu sync.RWMutex

	maxHistory int
	nodes      map[string]*nodeFrame
	ticks      []int
}

// NewSnapshotList registers node specs. maxHistory bounds the number of
// committed ticks retained; zero or negative keeps everything.
func NewSnapshotList(maxHistory int, specs ...NodeSpec) (*SnapshotList, error) {
	s := &SnapshotList{
		maxHistory: maxHistory,
		nodes:      make(map[string]*nodeFrame, len(specs)),
	}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("node spec with empty name")
		}
		if _, dup := s.nodes[spec.Name]; dup {
			return nil, fmt.Errorf("node type %q registered twice", spec.Name)
		}
		frame := &nodeFrame{
			spec:    spec,
			layout:  make(map[string]attrLayout, len(spec.Attrs)),
			history: make(map[int][]float64),
		}
		for _, a := range spec.Attrs {
			slots := a.Slots
			if slots <= 0 {
				slots = 1
			}
			if _, dup := frame.layout[a.Name]; dup {
				return nil, fmt.Errorf("node type %q: attribute %q declared twice", spec.Name, a.Name)
			}
			frame.layout[a.Name] = attrLayout{offset: frame.rowWidth, slots: slots}
			frame.rowWidth += slots
		}
		frame.current = make([]float64, spec.Count*frame.rowWidth)
		s.nodes[spec.Name] = frame
	}
	return s, nil
}

func (s *SnapshotList) frame(node string) (*nodeFrame, error) {
	f, ok := s.nodes[node]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, node)
	}
	return f, nil
}

func (f *nodeFrame) cell(index int, attr string) (attrLayout, int, error) {
	if index < 0 || index >= f.spec.Count {
		return attrLayout{}, 0, fmt.Errorf("%w: %s[%d] (count %d)", ErrNodeIndex, f.spec.Name, index, f.spec.Count)
	}
	l, ok := f.layout[attr]
	if !ok {
		return attrLayout{}, 0, fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, f.spec.Name, attr)
	}
	return l, index*f.rowWidth + l.offset, nil
}

// Set writes a single-slot attribute in the current frame.
func (s *SnapshotList) Set(node string, index int, attr string, value float64) error {
	return s.SetSlots(node, index, attr, value)
}

// SetSlots writes every slot of attr in the current frame.
func (s *SnapshotList) SetSlots(node string, index int, attr string, values ...float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.frame(node)
	if err != nil {
		return err
	}
	l, pos, err := f.cell(index, attr)
	if err != nil {
		return err
	}
	if len(values) != l.slots {
		return fmt.Errorf("%w: %s.%s has %d slots, got %d", ErrSlotCount, node, attr, l.slots, len(values))
	}
	copy(f.current[pos:pos+l.slots], values)
	return nil
}

// Current reads attr from the uncommitted frame.
func (s *SnapshotList) Current(node string, index int, attr string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.frame(node)
	if err != nil {
		return nil, err
	}
	l, pos, err := f.cell(index, attr)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), f.current[pos:pos+l.slots]...), nil
}

// Commit copies the current frame of every node type under tick and evicts
// the oldest ticks beyond the history bound.
func (s *SnapshotList) Commit(tick int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.nodes {
		f.history[tick] = append([]float64(nil), f.current...)
	}

	i := sort.SearchInts(s.ticks, tick)
	if i == len(s.ticks) || s.ticks[i] != tick {
		s.ticks = append(s.ticks, 0)
		copy(s.ticks[i+1:], s.ticks[i:])
		s.ticks[i] = tick
	}

	if s.maxHistory > 0 {
		for len(s.ticks) > s.maxHistory {
			old := s.ticks[0]
			s.ticks = s.ticks[1:]
			for _, f := range s.nodes {
				delete(f.history, old)
			}
		}
	}
}

// Reset clears history and zeroes the current frame.
func (s *SnapshotList) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.nodes {
		for i := range f.current {
			f.current[i] = 0
		}
		f.history = make(map[int][]float64)
	}
	s.ticks = nil
}

// Ticks returns the committed ticks in ascending order.
func (s *SnapshotList) Ticks() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.ticks...)
}

// Point returns the values of attrs for one node at tick, one entry per
// attribute slot, in attribute order.
func (s *SnapshotList) Point(node string, tick, index int, attrs ...string) ([]float64, error) {
	return s.Window(node, []int{tick}, index, attrs...)
}

// Window returns attrs for one node across ticks, flattened attribute-major:
// for each attribute, for each tick, every slot. For single-slot attributes
// this is a (len(attrs), len(ticks)) row-major matrix.
func (s *SnapshotList) Window(node string, ticks []int, index int, attrs ...string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.frame(node)
	if err != nil {
		return nil, err
	}

	layouts := make([]attrLayout, len(attrs))
	positions := make([]int, len(attrs))
	width := 0
	for i, attr := range attrs {
		l, pos, err := f.cell(index, attr)
		if err != nil {
			return nil, err
		}
		layouts[i] = l
		positions[i] = pos
		width += l.slots * len(ticks)
	}

	out := make([]float64, 0, width)
	for i := range attrs {
		l, pos := layouts[i], positions[i]
		for _, tick := range ticks {
			row, ok := f.history[tick]
			if !ok {
				out = append(out, make([]float64, l.slots)...)
				continue
			}
			out = append(out, row[pos:pos+l.slots]...)
		}
	}
	return out, nil
}

// NodeCount returns the registered row count of node.
func (s *SnapshotList) NodeCount(node string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := s.frame(node)
	if err != nil {
		return 0, err
	}
	return f.spec.Count, nil
}
