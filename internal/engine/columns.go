package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Board geometry shared by every computation in this package.
const (
	MinColumn  = 2
	MaxColumn  = 12
	NumColumns = MaxColumn - MinColumn + 1
	MaxRunners = 3
)

// ValidColumn reports whether c names one of the eleven board columns.
func ValidColumn(c int) bool {
	return c >= MinColumn && c <= MaxColumn
}

// ColumnSet is a bit set over the columns 2..12. Bit i represents column i,
// so membership tests are a single mask operation.
type ColumnSet uint16

// NewColumnSet builds a set from column ids. Ids outside 2..12 are rejected
// with ErrColumnOutOfRange.
func NewColumnSet(cols ...int) (ColumnSet, error) {
	var s ColumnSet
	for _, c := range cols {
		if !ValidColumn(c) {
			return 0, fmt.Errorf("%w: %d", ErrColumnOutOfRange, c)
		}
		s |= 1 << uint(c)
	}
	return s, nil
}

// MustColumnSet is NewColumnSet for literals known to be valid.
func MustColumnSet(cols ...int) ColumnSet {
	s, err := NewColumnSet(cols...)
	if err != nil {
		panic(err)
	}
	return s
}

// Has reports whether column c is in the set.
func (s ColumnSet) Has(c int) bool {
	if !ValidColumn(c) {
		return false
	}
	return s&(1<<uint(c)) != 0
}

// With returns the set plus column c.
func (s ColumnSet) With(c int) ColumnSet {
	if !ValidColumn(c) {
		return s
	}
	return s | 1<<uint(c)
}

// Without returns the set minus column c.
func (s ColumnSet) Without(c int) ColumnSet {
	if !ValidColumn(c) {
		return s
	}
	return s &^ (1 << uint(c))
}

// Union returns s ∪ o.
func (s ColumnSet) Union(o ColumnSet) ColumnSet { return s | o }

// Intersect returns s ∩ o.
func (s ColumnSet) Intersect(o ColumnSet) ColumnSet { return s & o }

// Len returns the number of columns in the set.
func (s ColumnSet) Len() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Empty reports whether the set has no columns.
func (s ColumnSet) Empty() bool { return s == 0 }

// Columns returns the members in ascending order.
func (s ColumnSet) Columns() []int {
	out := make([]int, 0, s.Len())
	for c := MinColumn; c <= MaxColumn; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// String renders the set as "{6,7,8}".
func (s ColumnSet) String() string {
	cols := s.Columns()
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = strconv.Itoa(c)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// MarshalJSON encodes the set as a sorted array of column ids.
func (s ColumnSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Columns())
}

// UnmarshalJSON decodes an array of column ids, rejecting ids outside 2..12.
func (s *ColumnSet) UnmarshalJSON(data []byte) error {
	var cols []int
	if err := json.Unmarshal(data, &cols); err != nil {
		return err
	}
	set, err := NewColumnSet(cols...)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// Progress maps a column id to a step count. It is used both for the
// uncommitted steps of the current turn and for steps remaining to the top.
type Progress map[int]int

// Total returns the sum of all step counts.
func (p Progress) Total() int {
	total := 0
	for _, v := range p {
		total += v
	}
	return total
}

// Clone returns an independent copy.
func (p Progress) Clone() Progress {
	out := make(Progress, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Key renders the map in a canonical "col:steps" form with columns sorted,
// omitting zero entries.
func (p Progress) Key() string {
	cols := make([]int, 0, len(p))
	for c, v := range p {
		if v != 0 {
			cols = append(cols, c)
		}
	}
	sort.Ints(cols)
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%d:%d", c, p[c])
	}
	return strings.Join(parts, ",")
}

func (p Progress) validate() error {
	for c, v := range p {
		if !ValidColumn(c) {
			return fmt.Errorf("%w: %d", ErrColumnOutOfRange, c)
		}
		if v < 0 {
			return fmt.Errorf("%w: column %d has %d", ErrNegativeProgress, c, v)
		}
	}
	return nil
}
