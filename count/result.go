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
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/exascience/elcount/features"
)

// TotalKey is the key of the number of counted reads over all
// reference sequences.
const TotalKey = "_total"

// ReferenceKey returns the key of the number of counted reads on the
// given reference sequence.
func ReferenceKey(reference string) string {
	return "_" + reference
}

// Result maps feature identifiers onto read counts. It additionally
// contains the totals under TotalKey and ReferenceKey(reference).
type Result map[string]uint64

// newResult returns a Result with zero counts for all features and
// totals of the given reference sequences.
func newResult(index features.Index, references []string) Result {
	result := make(Result, index.NumFeatures()+len(references)+1)
	result[TotalKey] = 0
	for _, ref := range references {
		result[ReferenceKey(ref)] = 0
		for _, id := range index[ref].IDs {
			result[id] = 0
		}
	}
	return result
}

// chunkResult converts the count vector of a chunk into a Result. A
// nil vector counts as all zeros.
func chunkResult(chunk Chunk, counts []uint32) Result {
	ids := chunk.Table.IDs
	result := make(Result, len(ids)+2)
	var total uint64
	for i, id := range ids {
		var n uint64
		if counts != nil {
			n = uint64(counts[i])
		}
		result[id] += n
		total += n
	}
	result[TotalKey] = total
	result[ReferenceKey(chunk.Reference)] = total
	return result
}

// Merge adds all counts of other to result.
func (result Result) Merge(other Result) {
	for key, n := range other {
		result[key] += n
	}
}

// Keys returns the keys of the result in sorted order.
func (result Result) Keys() []string {
	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Write writes the result as tab-separated key/count lines, sorted by
// key.
func (result Result) Write(writer io.Writer) error {
	out := bufio.NewWriter(writer)
	for _, key := range result.Keys() {
		if _, err := fmt.Fprintf(out, "%v\t%v\n", key, result[key]); err != nil {
			return err
		}
	}
	return out.Flush()
}
