// elcount: a high-performance tool for counting reads in SAM/BAM files.
// Copyright (c) 2017-2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elprep/blob/master/LICENSE.txt>.

package intervals

import (
	"errors"
	"fmt"
	"sort"

	"github.com/biogo/store/interval"
)

// Interval is a half-open range [Start, End) of reference positions.
type Interval struct {
	Start, End int
}

// Empty returns true if the interval covers no position.
func (ival Interval) Empty() bool {
	return ival.End <= ival.Start
}

// Overlaps determines whether the interval shares at least one
// position with the half-open range [start, end). Empty intervals and
// empty ranges overlap nothing.
func (ival Interval) Overlaps(start, end int) bool {
	return start < end && ival.Start < ival.End && ival.Start < end && start < ival.End
}

// SortByStart sorts a slice of Interval by Start position.
func SortByStart(intervals []Interval) {
	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].Start < intervals[j].Start
	})
}

// Extend makes interval1 larger if it overlaps with or touches
// interval2, by storing max(interval1.End, interval2.End) in
// interval1.End; otherwise, interval1 remains unchanged.
// Returns true if the two intervals overlap or touch, false otherwise.
// interval2.Start >= interval1.Start must be true before
// calling Extend.
func (interval1 *Interval) Extend(interval2 Interval) bool {
	if interval2.Start > interval1.End {
		return false
	}
	if interval2.End > interval1.End {
		interval1.End = interval2.End
	}
	return true
}

// Flatten merges overlapping intervals into larger intervals.
// intervals must be sorted by Start before calling Flatten.
// The resulting slice is sorted by Start, and no two
// intervals in the result overlap with each other.
// The result shares memory with the intervals argument.
func Flatten(intervals []Interval) []Interval {
	for i, n := 0, len(intervals)-1; i < n; i++ {
		if intervals[i].Extend(intervals[i+1]) {
			n++
			for j := i + 1; j < n; j++ {
				if !intervals[i].Extend(intervals[j]) {
					i++
					intervals[i] = intervals[j]
				}
			}
			return intervals[:i+1]
		}
	}
	return intervals
}

// An Entry is an interval in a Tree, tagged with the index of the
// feature it belongs to and that feature's strand.
type Entry struct {
	Interval
	Feature uint32
	Strand  int8
}

// treeEntry adapts an Entry to the biogo interval tree. The uid keeps
// entries with equal start positions apart.
type treeEntry struct {
	Entry
	uid uintptr
}

func (e treeEntry) Overlap(r interval.IntRange) bool {
	return e.Overlaps(r.Start, r.End)
}

func (e treeEntry) ID() uintptr {
	return e.uid
}

func (e treeEntry) Range() interval.IntRange {
	return interval.IntRange{Start: e.Start, End: e.End}
}

// query is a half-open range used for searching a Tree.
type query Interval

func (q query) Overlap(r interval.IntRange) bool {
	return Interval(q).Overlaps(r.Start, r.End)
}

// ErrInvertedInterval is returned when an entry ends before it starts.
var ErrInvertedInterval = errors.New("inverted interval")

// Tree is an interval tree of entries. A Tree is immutable once
// constructed, and is safe for concurrent queries.
type Tree struct {
	tree interval.IntTree
	len  int
}

// NewTree builds a Tree from the given entries. Empty entries are
// accepted but not stored, since they can never overlap anything.
func NewTree(entries []Entry) (*Tree, error) {
	t := new(Tree)
	for i, entry := range entries {
		if entry.End < entry.Start {
			return nil, fmt.Errorf("%w [%v, %v)", ErrInvertedInterval, entry.Start, entry.End)
		}
		if entry.Empty() {
			continue
		}
		if err := t.tree.Insert(treeEntry{Entry: entry, uid: uintptr(i)}, true); err != nil {
			return nil, fmt.Errorf("%v, while inserting interval [%v, %v)", err, entry.Start, entry.End)
		}
		t.len++
	}
	t.tree.AdjustRanges()
	return t, nil
}

// Len returns the number of entries stored in the tree.
func (t *Tree) Len() int {
	return t.len
}

// DoOverlapping calls f for every entry that overlaps the half-open
// range [start, end), in order of start position. The traversal stops
// early when f returns true.
func (t *Tree) DoOverlapping(start, end int, f func(Entry) (done bool)) {
	if t.len == 0 || end <= start {
		return
	}
	t.tree.DoMatching(func(e interval.IntInterface) bool {
		return f(e.(treeEntry).Entry)
	}, query{Start: start, End: end})
}

// FirstOverlapping returns an entry that overlaps the half-open
// range [start, end), if any.
func (t *Tree) FirstOverlapping(start, end int) (entry Entry, found bool) {
	t.DoOverlapping(start, end, func(e Entry) bool {
		entry, found = e, true
		return true
	})
	return
}
