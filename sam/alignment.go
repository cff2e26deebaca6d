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

package sam

type (
	// Block is a contiguous aligned part of an alignment, as a
	// half-open range [Start, End) of 0-based reference positions.
	// Deletions and skipped regions (for example introns in a spliced
	// alignment) separate blocks.
	Block struct {
		Start, End int
	}

	// Alignment is the part of an alignment record that read counting
	// needs.
	Alignment struct {
		QNAME  string
		RefID  int
		POS    int
		Blocks []Block
		// NH is the number of reported alignments for the query
		// (the NH tag). It is 1 when the tag is absent.
		NH int
	}

	// Archive is an alignment file with an index for random access.
	Archive interface {
		// Reference returns the numeric id and the length of the
		// named reference sequence, or ok == false if the archive's
		// header does not list it.
		Reference(name string) (id, length int, ok bool)

		// Open returns a fresh, independent Fetcher for the archive.
		Open() (Fetcher, error)
	}

	// Fetcher retrieves alignments from an Archive. A Fetcher must
	// not be used by more than one goroutine at a time.
	Fetcher interface {
		// Fetch returns an iterator over the alignments on the
		// given reference sequence that overlap the half-open range
		// [start, stop).
		Fetch(refID, start, stop int) (Iterator, error)

		// Close releases the Fetcher's resources.
		Close() error
	}

	// Iterator iterates over the alignments of a fetched range.
	Iterator interface {
		// Next advances the iterator, and returns false once the
		// range is exhausted or an error occurred.
		Next() bool

		// Alignment returns the current alignment. It is only valid
		// until the next call to Next.
		Alignment() *Alignment

		// Err returns the error that stopped the iteration, if any.
		Err() error

		// Close releases the iterator's resources.
		Close() error
	}
)

// End returns the end position of the last block, or POS if there are
// no blocks.
func (aln *Alignment) End() int {
	if n := len(aln.Blocks); n > 0 {
		return aln.Blocks[n-1].End
	}
	return aln.POS
}
