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
	"log"
	"sort"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/elcount/features"
	"github.com/exascience/elcount/sam"
)

// Options configure Count.
type Options struct {
	// Threads bounds the number of chunks that are counted in
	// parallel. 0 means runtime.GOMAXPROCS(0).
	Threads int

	// ChunkSize overrides the package constant ChunkSize if > 0.
	ChunkSize int

	// TolerateScanErrors makes Count log chunks that fail to be
	// scanned, count zero reads for them, and carry on. Otherwise
	// the first such failure aborts Count.
	TolerateScanErrors bool
}

// ChunkError reports a failure to count the reads of a chunk.
type ChunkError struct {
	Chunk Chunk
	Err   error
}

func (err *ChunkError) Error() string {
	return fmt.Sprintf("%v, while counting reads in chunk %v", err.Err, err.Chunk)
}

func (err *ChunkError) Unwrap() error {
	return err.Err
}

// Report is the outcome of Count.
type Report struct {
	// Counts maps every feature of every counted reference
	// sequence onto its read count, and contains the totals.
	Counts Result

	// Chunks is the number of chunks that were scanned.
	Chunks int

	// Failed lists the chunks that could not be scanned, sorted by
	// reference name and start position. It can only be non-empty
	// when scan errors are tolerated.
	Failed []*ChunkError
}

// countChunk opens a fresh handle into the archive, and counts the
// reads of the chunk with it.
func countChunk(archive sam.Archive, chunk Chunk) (counts []uint32, err error) {
	fetcher, err := archive.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := fetcher.Close(); err == nil && nerr != nil {
			counts, err = nil, nerr
		}
	}()
	return CountRegion(fetcher, chunk.Table, chunk.RefID, chunk.Start, chunk.Stop)
}

type partial struct {
	counts Result
	err    *ChunkError
}

// Count counts the reads of the archive for all features of the
// index. The chunks of the genome are counted in parallel, and the
// partial results are summed up.
//
// Reference sequences of the index that the archive does not list
// cause an error before anything is counted. By default, the first
// chunk that fails to be scanned aborts Count with a *ChunkError.
// See Options.TolerateScanErrors for the alternative.
func Count(archive sam.Archive, index features.Index, opts Options) (*Report, error) {
	genome, err := NewGenome(archive, index)
	if err != nil {
		return nil, err
	}
	if opts.ChunkSize > 0 {
		genome.ChunkSize = opts.ChunkSize
	}
	chunks := genome.AllChunks()
	report := &Report{
		Counts: newResult(index, genome.References()),
		Chunks: len(chunks),
	}
	if len(chunks) == 0 {
		return report, nil
	}
	log.Printf("Counting reads for %v features on %v reference sequences in %v chunks.",
		index.NumFeatures(), len(genome.references), len(chunks))

	var p pipeline.Pipeline
	next := 0
	p.Source(pipeline.NewFunc(-1, func(size int) (interface{}, int, error) {
		if next >= len(chunks) {
			return nil, 0, nil
		}
		end := next + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[next:end]
		next = end
		return batch, len(batch), nil
	}))
	p.SetVariableBatchSize(1, 1)
	p.Add(
		pipeline.LimitedPar(opts.Threads, pipeline.Receive(func(_ int, data interface{}) interface{} {
			batch := data.([]Chunk)
			partials := make([]partial, 0, len(batch))
			for _, chunk := range batch {
				counts, err := countChunk(archive, chunk)
				if err == nil {
					partials = append(partials, partial{counts: chunkResult(chunk, counts)})
					continue
				}
				chunkErr := &ChunkError{Chunk: chunk, Err: err}
				if !opts.TolerateScanErrors {
					p.SetErr(chunkErr)
					return partials
				}
				log.Printf("Warning: %v; counting zero reads for this chunk.", chunkErr)
				partials = append(partials, partial{counts: chunkResult(chunk, nil), err: chunkErr})
			}
			return partials
		})),
		pipeline.Seq(pipeline.Receive(func(_ int, data interface{}) interface{} {
			partials, _ := data.([]partial)
			for _, part := range partials {
				report.Counts.Merge(part.counts)
				if part.err != nil {
					report.Failed = append(report.Failed, part.err)
				}
			}
			return nil
		})),
	)
	p.Run()
	if err := p.Err(); err != nil {
		return nil, err
	}
	sort.Slice(report.Failed, func(i, j int) bool {
		ci, cj := report.Failed[i].Chunk, report.Failed[j].Chunk
		if ci.Reference != cj.Reference {
			return ci.Reference < cj.Reference
		}
		return ci.Start < cj.Start
	})
	return report, nil
}
