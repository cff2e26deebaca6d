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
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elcount/features"
	"github.com/exascience/elcount/sam"
)

func TestCountScenarioUnique(t *testing.T) {
	index := buildIndex(t, features.Model{"chr1": {gene("geneA", [2]int{100, 200})}})
	archive := &fakeArchive{
		references: []fakeReference{{"chr1", 2000000}},
		reads: []fakeRead{
			read("r1", "chr1", 1, sam.Block{Start: 120, End: 150}),
			read("r2", "chr1", 1, sam.Block{Start: 180, End: 210}),
			read("r3", "chr1", 1, sam.Block{Start: 500, End: 600}),
		},
	}
	report, err := Count(archive, index, Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{"geneA": 2, "_total": 2, "_chr1": 2}, report.Counts)
	assert.Equal(t, 2, report.Chunks)
	assert.Empty(t, report.Failed)
}

func TestCountScenarioMultimapper(t *testing.T) {
	index := buildIndex(t, features.Model{"chr1": {gene("geneA", [2]int{100, 200})}})
	archive := &fakeArchive{
		references: []fakeReference{{"chr1", 2000000}},
		reads: []fakeRead{
			read("m1", "chr1", 2, sam.Block{Start: 110, End: 130}),
			read("m1", "chr1", 2, sam.Block{Start: 160, End: 190}),
		},
	}
	report, err := Count(archive, index, Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{"geneA": 1, "_total": 1, "_chr1": 1}, report.Counts)
}

func TestCountBoundaryStraddle(t *testing.T) {
	index := buildIndex(t, features.Model{
		"chr1": {
			gene("geneA", [2]int{999000, 999990}),
			gene("geneB", [2]int{1000005, 1000100}),
		},
	})
	archive := &fakeArchive{
		references: []fakeReference{{"chr1", 2000000}},
		reads: []fakeRead{
			read("r1", "chr1", 1, sam.Block{Start: 999980, End: 1000020}),
		},
	}
	genome, err := NewGenome(archive, index)
	require.NoError(t, err)
	assert.Equal(t, []span{{"chr1", 0, 1000000}, {"chr1", 1000000, 2000000}}, spans(genome.AllChunks()))

	report, err := Count(archive, index, Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{"geneA": 1, "geneB": 1, "_total": 2, "_chr1": 2}, report.Counts)
}

func TestCountExtendedBoundary(t *testing.T) {
	index := buildIndex(t, features.Model{
		"chr1": {gene("geneA", [2]int{999990, 1000010})},
	})
	archive := &fakeArchive{
		references: []fakeReference{{"chr1", 2000000}},
		reads: []fakeRead{
			read("r1", "chr1", 1, sam.Block{Start: 999995, End: 1000005}),
			read("r2", "chr1", 1, sam.Block{Start: 1000001, End: 1000008}),
		},
	}
	genome, err := NewGenome(archive, index)
	require.NoError(t, err)
	assert.Equal(t, []span{{"chr1", 0, 1000011}, {"chr1", 1000011, 2000011}}, spans(genome.AllChunks()))

	report, err := Count(archive, index, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), report.Counts["geneA"])
}

func TestCountIntronBoundary(t *testing.T) {
	// Without moving the boundary past the intron of geneA, each
	// alignment below would be counted once in both chunks.
	index := buildIndex(t, features.Model{
		"chr1": {gene("geneA", [2]int{999900, 999990}, [2]int{1000010, 1000100})},
	})
	archive := &fakeArchive{
		references: []fakeReference{{"chr1", 2000000}},
		reads: []fakeRead{
			read("u1", "chr1", 1, sam.Block{Start: 999950, End: 999960}, sam.Block{Start: 1000020, End: 1000030}),
			read("m1", "chr1", 2, sam.Block{Start: 999950, End: 999960}),
			read("m1", "chr1", 2, sam.Block{Start: 1000020, End: 1000030}),
		},
	}
	report, err := Count(archive, index, Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{"geneA": 2, "_total": 2, "_chr1": 2}, report.Counts)
	assert.Equal(t, 2, report.Chunks)
}

func manyReadsArchive() (*fakeArchive, features.Model) {
	model := features.Model{
		"chr1": {
			gene("geneA", [2]int{100, 200}, [2]int{1500000, 1500100}),
			gene("geneB", [2]int{999950, 1000050}),
			gene("geneC", [2]int{2500000, 2600000}),
			gene("geneD"),
		},
		"chr2": {
			gene("geneE", [2]int{10, 20}),
			gene("geneF", [2]int{15, 30}),
		},
	}
	archive := &fakeArchive{
		references: []fakeReference{{"chr1", 3000000}, {"chr2", 100}},
		reads: []fakeRead{
			read("r1", "chr1", 1, sam.Block{Start: 150, End: 160}),
			read("r2", "chr1", 1, sam.Block{Start: 120, End: 130}, sam.Block{Start: 170, End: 180}),
			read("r3", "chr1", 1, sam.Block{Start: 999990, End: 1000010}),
			read("r4", "chr1", 2, sam.Block{Start: 2500010, End: 2500020}),
			read("r4", "chr1", 2, sam.Block{Start: 2599990, End: 2600010}),
			read("r5", "chr1", 1, sam.Block{Start: 2999990, End: 3000000}),
			read("r6", "chr2", 1, sam.Block{Start: 16, End: 18}),
			read("r7", "chr2", 3, sam.Block{Start: 12, End: 14}),
			read("r7", "chr2", 3, sam.Block{Start: 25, End: 28}),
		},
	}
	return archive, model
}

func TestCountTotals(t *testing.T) {
	archive, model := manyReadsArchive()
	index := buildIndex(t, model)
	report, err := Count(archive, index, Options{Threads: 2})
	require.NoError(t, err)
	counts := report.Counts
	assert.Equal(t, Result{
		"geneA": 2, "geneB": 1, "geneC": 1, "geneD": 0,
		"geneE": 2, "geneF": 2,
		"_chr1": 4, "_chr2": 4, "_total": 8,
	}, counts)

	var total uint64
	for ref, feats := range model {
		var sum uint64
		for _, feature := range feats {
			sum += counts[feature.ID]
		}
		assert.Equal(t, counts[ReferenceKey(ref)], sum, ref)
		total += counts[ReferenceKey(ref)]
	}
	assert.Equal(t, counts[TotalKey], total)

	// One handle per chunk, all of them closed.
	assert.Equal(t, report.Chunks, archive.opened)
	assert.Equal(t, archive.opened, archive.closed)
}

func TestCountIdempotent(t *testing.T) {
	archive, model := manyReadsArchive()
	index := buildIndex(t, model)
	first, err := Count(archive, index, Options{})
	require.NoError(t, err)
	second, err := Count(archive, index, Options{})
	require.NoError(t, err)
	assert.Equal(t, first.Counts, second.Counts)

	sequential, err := Count(archive, index, Options{Threads: 1})
	require.NoError(t, err)
	assert.Equal(t, first.Counts, sequential.Counts)
}

func TestCountChunkSizeInvariant(t *testing.T) {
	archive, model := manyReadsArchive()
	index := buildIndex(t, model)
	expected, err := Count(archive, index, Options{})
	require.NoError(t, err)
	for _, size := range []int{1000, 4096, 333333} {
		report, err := Count(archive, index, Options{ChunkSize: size})
		require.NoError(t, err)
		assert.Equal(t, expected.Counts, report.Counts, "chunk size %v", size)
	}
}

func TestCountUnknownReference(t *testing.T) {
	archive, model := manyReadsArchive()
	model["chrUn"] = []features.Feature{gene("geneU", [2]int{0, 10})}
	index := buildIndex(t, model)
	report, err := Count(archive, index, Options{})
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, ErrUnknownReference))
	assert.Zero(t, archive.opened)
}

func failFirstChr1Chunk(refID, start, _ int) error {
	if refID == 0 && start == 0 {
		return errFake
	}
	return nil
}

func TestCountScanErrorAborts(t *testing.T) {
	for _, onFetch := range []bool{false, true} {
		archive, model := manyReadsArchive()
		archive.fail = failFirstChr1Chunk
		archive.failOnFetch = onFetch
		index := buildIndex(t, model)
		report, err := Count(archive, index, Options{})
		assert.Nil(t, report)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errFake))
		var chunkErr *ChunkError
		require.True(t, errors.As(err, &chunkErr))
		assert.Equal(t, span{"chr1", 0, 1500101}, span{chunkErr.Chunk.Reference, chunkErr.Chunk.Start, chunkErr.Chunk.Stop})
	}
}

func TestCountScanErrorTolerated(t *testing.T) {
	archive, model := manyReadsArchive()
	archive.fail = failFirstChr1Chunk
	index := buildIndex(t, model)
	report, err := Count(archive, index, Options{TolerateScanErrors: true})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "chr1:0-1500101", report.Failed[0].Chunk.String())
	assert.Equal(t, Result{
		"geneA": 0, "geneB": 0, "geneC": 1, "geneD": 0,
		"geneE": 2, "geneF": 2,
		"_chr1": 1, "_chr2": 4, "_total": 5,
	}, report.Counts)
}

func TestResultWrite(t *testing.T) {
	result := Result{"geneB": 3, "_total": 5, "geneA": 2, "_chr1": 5}
	var buf bytes.Buffer
	require.NoError(t, result.Write(&buf))
	assert.Equal(t, "_chr1\t5\n_total\t5\ngeneA\t2\ngeneB\t3\n", buf.String())
}

func TestResultMerge(t *testing.T) {
	result := Result{"geneA": 1, "_total": 1}
	result.Merge(Result{"geneA": 2, "geneB": 1, "_total": 3})
	result.Merge(Result{})
	assert.Equal(t, Result{"geneA": 3, "geneB": 1, "_total": 4}, result)
}
