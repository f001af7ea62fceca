package lineset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LineSet represents a set of 1-based line numbers, stored as a sorted,
// deduplicated slice. It serializes to compact notation like "5,7-8,12".
type LineSet struct {
	lines []int
}

// Range is a closed, 1-based line interval.
type Range struct {
	Start int
	End   int
}

// Len returns the number of lines in the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// New creates a LineSet from individual line numbers.
func New(lines ...int) LineSet {
	return LineSet{lines: dedupSorted(lines)}
}

// FromRange creates a LineSet covering a contiguous range [start, end].
func FromRange(start, end int) LineSet {
	if start <= 0 || end < start {
		return LineSet{}
	}
	lines := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		lines = append(lines, i)
	}
	return LineSet{lines: lines}
}

// FromString parses compact notation like "5", "5-7", or "5,7-8,12".
func FromString(s string) (LineSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LineSet{}, nil
	}

	var lines []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "-"); idx >= 0 {
			start, err := strconv.Atoi(strings.TrimSpace(part[:idx]))
			if err != nil {
				return LineSet{}, fmt.Errorf("invalid range start %q: %w", part[:idx], err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(part[idx+1:]))
			if err != nil {
				return LineSet{}, fmt.Errorf("invalid range end %q: %w", part[idx+1:], err)
			}
			if end < start {
				return LineSet{}, fmt.Errorf("invalid range %d-%d", start, end)
			}
			for i := start; i <= end; i++ {
				lines = append(lines, i)
			}
		} else {
			n, err := strconv.Atoi(part)
			if err != nil {
				return LineSet{}, fmt.Errorf("invalid line number %q: %w", part, err)
			}
			lines = append(lines, n)
		}
	}

	return LineSet{lines: dedupSorted(lines)}, nil
}

// String returns the compact notation: "5,7-8,12".
func (ls LineSet) String() string {
	if len(ls.lines) == 0 {
		return ""
	}
	var parts []string
	for _, r := range ls.Ranges() {
		if r.Start == r.End {
			parts = append(parts, strconv.Itoa(r.Start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", r.Start, r.End))
		}
	}
	return strings.Join(parts, ",")
}

// Ranges returns the maximal contiguous runs of the set in ascending order.
func (ls LineSet) Ranges() []Range {
	var out []Range
	i := 0
	for i < len(ls.lines) {
		start := ls.lines[i]
		end := start
		for i+1 < len(ls.lines) && ls.lines[i+1] == end+1 {
			end = ls.lines[i+1]
			i++
		}
		out = append(out, Range{Start: start, End: end})
		i++
	}
	return out
}

// IsEmpty returns true if the set contains no lines.
func (ls LineSet) IsEmpty() bool {
	return len(ls.lines) == 0
}

// Lines returns the sorted line numbers.
func (ls LineSet) Lines() []int {
	return ls.lines
}

// Len returns the number of lines in the set.
func (ls LineSet) Len() int {
	return len(ls.lines)
}

// Min returns the smallest line number, or 0 if empty.
func (ls LineSet) Min() int {
	if len(ls.lines) == 0 {
		return 0
	}
	return ls.lines[0]
}

// Max returns the largest line number, or 0 if empty.
func (ls LineSet) Max() int {
	if len(ls.lines) == 0 {
		return 0
	}
	return ls.lines[len(ls.lines)-1]
}

// Contains returns true if the given line number is in the set.
func (ls LineSet) Contains(line int) bool {
	i := sort.SearchInts(ls.lines, line)
	return i < len(ls.lines) && ls.lines[i] == line
}

// Union returns a set containing the lines of both sets.
func (ls LineSet) Union(other LineSet) LineSet {
	merged := make([]int, 0, len(ls.lines)+len(other.lines))
	merged = append(merged, ls.lines...)
	merged = append(merged, other.lines...)
	return New(merged...)
}

func dedupSorted(nums []int) []int {
	if len(nums) == 0 {
		return nil
	}
	sort.Ints(nums)
	result := []int{nums[0]}
	for i := 1; i < len(nums); i++ {
		if nums[i] != nums[i-1] {
			result = append(result, nums[i])
		}
	}
	return result
}
