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

// Package features builds the per-reference feature tables that read
// counting looks up aligned blocks in.
//
// A feature (typically a gene) is a text identifier, a strand, and a
// list of half-open exon intervals. Each reference sequence gets one
// Table: the ordered list of its feature identifiers, an interval
// tree mapping every exon to the index of its feature in that list,
// and a second tree holding the span of every feature from its first
// exon start to its last exon end.
// Tables are immutable once built and are shared read-only between
// the parallel counting workers.
package features

import (
	"errors"
	"fmt"
	"sort"

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/elcount/intervals"
)

// Feature is one entry of a gene model: an identifier, a strand (-1
// or +1), and the start and end positions of its exons. ExonStarts[i]
// and ExonEnds[i] form the half-open interval of the i-th exon.
type Feature struct {
	ID         string
	Strand     int8
	ExonStarts []int
	ExonEnds   []int
}

// Model maps reference sequence names onto their ordered features.
type Model map[string][]Feature

// ErrMalformedFeature is returned when a feature cannot be turned
// into tree entries.
var ErrMalformedFeature = errors.New("malformed feature")

// Table is the feature index for one reference sequence.
type Table struct {
	// IDs lists the feature identifiers; tree entries refer to
	// features by index into IDs.
	IDs   []string
	tree  *intervals.Tree
	spans *intervals.Tree
}

// BuildTable creates a Table for the given features. Feature i in the
// input gets index i. A feature without exons still occupies an
// index, but can never be matched.
func BuildTable(features []Feature) (*Table, error) {
	ids := make([]string, len(features))
	var entries, spans []intervals.Entry
	for i, feature := range features {
		if len(feature.ExonStarts) != len(feature.ExonEnds) {
			return nil, fmt.Errorf("%w %v: %v exon starts, but %v exon ends",
				ErrMalformedFeature, feature.ID, len(feature.ExonStarts), len(feature.ExonEnds))
		}
		if feature.Strand != 1 && feature.Strand != -1 {
			return nil, fmt.Errorf("%w %v: invalid strand %v", ErrMalformedFeature, feature.ID, feature.Strand)
		}
		ids[i] = feature.ID
		span := intervals.Entry{Feature: uint32(i), Strand: feature.Strand}
		for j, start := range feature.ExonStarts {
			end := feature.ExonEnds[j]
			if start < 0 || end < start {
				return nil, fmt.Errorf("%w %v: invalid exon [%v, %v)", ErrMalformedFeature, feature.ID, start, end)
			}
			exon := intervals.Interval{Start: start, End: end}
			entries = append(entries, intervals.Entry{
				Interval: exon,
				Feature:  uint32(i),
				Strand:   feature.Strand,
			})
			if exon.Empty() {
				continue
			}
			if span.Empty() {
				span.Interval = exon
				continue
			}
			if start < span.Start {
				span.Start = start
			}
			if end > span.End {
				span.End = end
			}
		}
		if !span.Empty() {
			spans = append(spans, span)
		}
	}
	tree, err := intervals.NewTree(entries)
	if err != nil {
		return nil, err
	}
	spanTree, err := intervals.NewTree(spans)
	if err != nil {
		return nil, err
	}
	return &Table{IDs: ids, tree: tree, spans: spanTree}, nil
}

// Len returns the number of features in the table.
func (table *Table) Len() int {
	return len(table.IDs)
}

// DoOverlapping calls f for every exon entry overlapping the
// half-open range [start, end). The traversal stops early when f
// returns true.
func (table *Table) DoOverlapping(start, end int, f func(intervals.Entry) (done bool)) {
	table.tree.DoOverlapping(start, end, f)
}

// FirstSpanning returns the span of a feature that covers position
// pos, if any. A span reaches from the first exon start to the last
// exon end of its feature, introns included.
func (table *Table) FirstSpanning(pos int) (intervals.Entry, bool) {
	return table.spans.FirstOverlapping(pos, pos+1)
}

// Index maps reference sequence names onto their feature tables.
type Index map[string]*Table

// Build creates the feature tables for all reference sequences of a
// model, in parallel. If any table cannot be built, Build returns the
// error for the first such reference in name order, and no index.
func Build(model Model) (Index, error) {
	refs := make([]string, 0, len(model))
	for ref := range model {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	tables := make([]*Table, len(refs))
	errs := make([]error, len(refs))
	if len(refs) > 0 {
		parallel.Range(0, len(refs), 0, func(low, high int) {
			for i := low; i < high; i++ {
				tables[i], errs[i] = BuildTable(model[refs[i]])
			}
		})
	}
	index := make(Index, len(refs))
	for i, ref := range refs {
		if errs[i] != nil {
			return nil, fmt.Errorf("%w, while building feature table for reference %v", errs[i], ref)
		}
		index[ref] = tables[i]
	}
	return index, nil
}

// References returns the reference names of the index in sorted
// order.
func (index Index) References() []string {
	refs := make([]string, 0, len(index))
	for ref := range index {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// NumFeatures returns the total number of features over all
// reference sequences.
func (index Index) NumFeatures() (n int) {
	for _, table := range index {
		n += table.Len()
	}
	return n
}
