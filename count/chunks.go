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

// Package count counts the reads of an indexed alignment file per
// feature.
//
// The genome is split into chunks of about ChunkSize positions per
// reference sequence. Chunk boundaries are moved to the right until
// they do not cut through the span of any feature, so that all exons
// of a feature are contained in a single chunk. The chunks are then counted in
// parallel, each by a worker with its own handle into the alignment
// file, and the per-chunk counts are summed into one Result.
package count

import (
	"errors"
	"fmt"

	"github.com/exascience/elcount/features"
	"github.com/exascience/elcount/sam"
)

// ChunkSize is the default number of reference positions per chunk.
const ChunkSize = 1000000

// ErrUnknownReference is returned when a reference sequence of the
// feature index is not listed in the alignment file's header.
var ErrUnknownReference = errors.New("unknown reference sequence")

// Chunk is a half-open range [Start, Stop) on one reference sequence,
// the unit of parallel work.
type Chunk struct {
	Reference   string
	RefID       int
	Start, Stop int
	// Table is shared with all other chunks of the same reference,
	// and must not be modified.
	Table *features.Table
}

func (chunk Chunk) String() string {
	return fmt.Sprintf("%v:%v-%v", chunk.Reference, chunk.Start, chunk.Stop)
}

type reference struct {
	name   string
	id     int
	length int
	table  *features.Table
}

// Genome is a feature index resolved against the header of an
// alignment file.
type Genome struct {
	// ChunkSize is the minimum number of positions per chunk. It
	// is initialized to the package constant ChunkSize.
	ChunkSize int

	references []reference
}

// NewGenome resolves every reference sequence of the index through
// the header of the archive. A reference sequence the archive does
// not know about is an error, since its features could never be
// counted.
func NewGenome(archive sam.Archive, index features.Index) (*Genome, error) {
	genome := &Genome{ChunkSize: ChunkSize}
	var unknown []string
	for _, name := range index.References() {
		id, length, ok := archive.Reference(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		genome.references = append(genome.references, reference{
			name:   name,
			id:     id,
			length: length,
			table:  index[name],
		})
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w %v, not listed in the alignment file header", ErrUnknownReference, unknown)
	}
	return genome, nil
}

// References returns the names of the reference sequences of the
// genome in sorted order.
func (genome *Genome) References() []string {
	names := make([]string, len(genome.references))
	for i, ref := range genome.references {
		names[i] = ref.name
	}
	return names
}

// chunkStop determines the end of the chunk that starts at cursor:
// the end is first proposed at cursor+size, and then moved past every
// feature span that covers it. A spliced read within one feature
// therefore never has its blocks counted in two chunks.
func chunkStop(table *features.Table, cursor, size int) int {
	stop := cursor + size
	for {
		entry, found := table.FirstSpanning(stop)
		if !found {
			return stop
		}
		stop = entry.End + 1
	}
}

// ChunkIterator produces the chunks of a Genome one by one.
type ChunkIterator struct {
	genome *Genome
	ref    int
	cursor int
	chunk  Chunk
}

// Chunks returns a fresh iterator over the chunks of the genome.
// Reference sequences are visited in sorted order, and each one is
// covered from position 0 to at least its length. A reference
// sequence of length 0 has no chunks.
func (genome *Genome) Chunks() *ChunkIterator {
	return &ChunkIterator{genome: genome}
}

// Next advances the iterator, and returns false when all chunks have
// been produced.
func (it *ChunkIterator) Next() bool {
	size := it.genome.ChunkSize
	if size <= 0 {
		size = ChunkSize
	}
	for ; it.ref < len(it.genome.references); it.ref, it.cursor = it.ref+1, 0 {
		ref := &it.genome.references[it.ref]
		if it.cursor >= ref.length {
			continue
		}
		stop := chunkStop(ref.table, it.cursor, size)
		it.chunk = Chunk{
			Reference: ref.name,
			RefID:     ref.id,
			Start:     it.cursor,
			Stop:      stop,
			Table:     ref.table,
		}
		it.cursor = stop
		return true
	}
	return false
}

// Chunk returns the current chunk.
func (it *ChunkIterator) Chunk() Chunk {
	return it.chunk
}

// AllChunks returns all chunks of the genome.
func (genome *Genome) AllChunks() (chunks []Chunk) {
	for it := genome.Chunks(); it.Next(); {
		chunks = append(chunks, it.Chunk())
	}
	return chunks
}
