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

package count

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/exascience/elcount/features"
	"github.com/exascience/elcount/intervals"
	"github.com/exascience/elcount/sam"
)

// BlockAttributed determines whether an aligned block is counted in
// the chunk [start, stop). A block is counted in the chunk in which it
// starts: blocks that end before start, start at or after stop, or
// start before start and reach into the chunk from the left are
// rejected. A block that straddles a chunk boundary is therefore
// counted exactly once, by the chunk on its left.
func BlockAttributed(block sam.Block, start, stop int) bool {
	switch {
	case block.End < start:
		return false
	case block.Start >= stop:
		return false
	case block.Start < start && block.End >= start:
		return false
	default:
		return true
	}
}

// featureSet is the set of features a single read hits. The list of
// members makes clearing the set proportional to its size.
type featureSet struct {
	bits    *bitset.BitSet
	members []uint32
}

func newFeatureSet(size int) *featureSet {
	return &featureSet{bits: bitset.New(uint(size))}
}

func (set *featureSet) add(feature uint32) {
	if !set.bits.Test(uint(feature)) {
		set.bits.Set(uint(feature))
		set.members = append(set.members, feature)
	}
}

// drain increments counts for every member, and empties the set.
func (set *featureSet) drain(counts []uint32) {
	for _, feature := range set.members {
		counts[feature]++
		set.bits.Clear(uint(feature))
	}
	set.members = set.members[:0]
}

// CountRegion counts the reads in the range [start, stop) of the
// reference sequence with the given id, for every feature of the
// table. The result has one entry per feature of the table.
//
// A uniquely mapped read (NH == 1) is counted at most once per
// feature, no matter how many of its blocks hit the feature. Reads
// mapped to several locations are counted once per feature and
// distinct query name, no matter how many of their alignment records
// in the range hit the feature.
//
// The fetcher must not be used concurrently by other goroutines.
func CountRegion(fetcher sam.Fetcher, table *features.Table, refID, start, stop int) (counts []uint32, err error) {
	iter, err := fetcher.Fetch(refID, start, stop)
	if err != nil {
		return nil, fmt.Errorf("%w, while fetching reads for reference id %v range [%v, %v)", err, refID, start, stop)
	}
	defer func() {
		if nerr := iter.Close(); err == nil && nerr != nil {
			counts, err = nil, nerr
		}
	}()

	counts = make([]uint32, table.Len())
	seen := newFeatureSet(table.Len())
	multimappers := make(map[uint32]map[string]struct{})

	for iter.Next() {
		aln := iter.Alignment()
		for _, block := range aln.Blocks {
			if !BlockAttributed(block, start, stop) {
				continue
			}
			table.DoOverlapping(block.Start, block.End, func(entry intervals.Entry) bool {
				if aln.NH == 1 {
					seen.add(entry.Feature)
				} else {
					qnames := multimappers[entry.Feature]
					if qnames == nil {
						qnames = make(map[string]struct{})
						multimappers[entry.Feature] = qnames
					}
					qnames[aln.QNAME] = struct{}{}
				}
				return false
			})
		}
		seen.drain(counts)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w, while reading reads for reference id %v range [%v, %v)", err, refID, start, stop)
	}

	for feature, qnames := range multimappers {
		counts[feature] += uint32(len(qnames))
	}
	return counts, nil
}
