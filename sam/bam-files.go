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

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/sam"
)

// BAM file extensions.
const (
	BamExt = ".bam"
	BaiExt = ".bai"
)

var nhTag = sam.NewTag("NH")

// maxIndexPos is the largest position a BAI index can address.
const maxIndexPos = 1<<29 - 1

// tileWidth is the width of the BAI linear index tiles.
const tileWidth = 1 << 14

// BAMArchive is an Archive for a coordinate-sorted BAM file with a BAI
// index. The header and the index are read once, and shared read-only
// between all Fetchers.
type BAMArchive struct {
	filename, indexFilename string
	refs                    map[string]*sam.Reference
	index                   *bam.Index
}

// FindIndex returns the name of the BAI index of the given BAM file:
// either filename.bai, or filename with its .bam extension replaced by
// .bai, whichever exists.
func FindIndex(filename string) (string, error) {
	candidates := []string{filename + BaiExt}
	if filepath.Ext(filename) == BamExt {
		candidates = append(candidates, strings.TrimSuffix(filename, BamExt)+BaiExt)
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no BAI index found for %v (tried %v)", filename, strings.Join(candidates, ", "))
}

func readIndex(filename string) (idx *bam.Index, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	idx, err = bam.ReadIndex(file)
	if err != nil {
		return nil, fmt.Errorf("%v, while reading BAI index %v", err, filename)
	}
	return idx, nil
}

// OpenBAM opens a BAM file and its index. If indexFilename is empty,
// the index is located with FindIndex.
func OpenBAM(filename, indexFilename string) (archive *BAMArchive, err error) {
	if indexFilename == "" {
		if indexFilename, err = FindIndex(filename); err != nil {
			return nil, err
		}
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	reader, err := bam.NewReader(file, 1)
	if err != nil {
		return nil, fmt.Errorf("%v, while reading BAM header of %v", err, filename)
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	idx, err := readIndex(indexFilename)
	if err != nil {
		return nil, err
	}
	refs := make(map[string]*sam.Reference)
	for _, ref := range reader.Header().Refs() {
		refs[ref.Name()] = ref
	}
	return &BAMArchive{
		filename:      filename,
		indexFilename: indexFilename,
		refs:          refs,
		index:         idx,
	}, nil
}

// Filename returns the name of the BAM file.
func (archive *BAMArchive) Filename() string {
	return archive.filename
}

// IndexFilename returns the name of the BAI file.
func (archive *BAMArchive) IndexFilename() string {
	return archive.indexFilename
}

// Reference implements the method of the Archive interface.
func (archive *BAMArchive) Reference(name string) (id, length int, ok bool) {
	ref, ok := archive.refs[name]
	if !ok {
		return -1, 0, false
	}
	return ref.ID(), ref.Len(), true
}

// Open implements the method of the Archive interface. Every Fetcher
// has its own file descriptor.
func (archive *BAMArchive) Open() (Fetcher, error) {
	file, err := os.Open(archive.filename)
	if err != nil {
		return nil, err
	}
	reader, err := bam.NewReader(file, 1)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%v, while reading BAM header of %v", err, archive.filename)
	}
	return &bamFetcher{
		archive: archive,
		file:    file,
		reader:  reader,
		refs:    reader.Header().Refs(),
	}, nil
}

type bamFetcher struct {
	archive *BAMArchive
	file    *os.File
	reader  *bam.Reader
	refs    []*sam.Reference
}

// Close implements the method of the Fetcher interface.
func (fetcher *bamFetcher) Close() error {
	err := fetcher.reader.Close()
	if nerr := fetcher.file.Close(); err == nil {
		err = nerr
	}
	return err
}

// Fetch implements the method of the Fetcher interface.
func (fetcher *bamFetcher) Fetch(refID, start, stop int) (Iterator, error) {
	if refID < 0 || refID >= len(fetcher.refs) {
		return nil, fmt.Errorf("invalid reference id %v in %v", refID, fetcher.archive.filename)
	}
	ref := fetcher.refs[refID]
	beg, end := start, stop
	if end > ref.Len() {
		end = ref.Len()
	}
	if end > maxIndexPos {
		end = maxIndexPos
	}
	if beg < 0 {
		beg = 0
	}
	if beg >= end {
		return emptyIterator{}, nil
	}
	chunks, err := fetcher.archive.index.Chunks(ref, beg, end)
	if errors.Is(err, index.ErrInvalid) && beg >= tileWidth {
		// The linear index may stop one tile short of the end of the
		// last alignment on a reference.
		chunks, err = fetcher.archive.index.Chunks(ref, beg-tileWidth, end)
	}
	if errors.Is(err, index.ErrNoReference) || errors.Is(err, index.ErrInvalid) {
		// No alignment on this reference reaches into [beg, end).
		return emptyIterator{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("%v, while querying BAI index for %v:%v-%v", err, ref.Name(), beg, end)
	}
	if len(chunks) == 0 {
		return emptyIterator{}, nil
	}
	it, err := bam.NewIterator(fetcher.reader, chunks)
	if err != nil {
		return nil, fmt.Errorf("%v, while seeking to %v:%v-%v", err, ref.Name(), beg, end)
	}
	return &bamIterator{
		it:    it,
		refID: refID,
		start: start,
		stop:  stop,
	}, nil
}

type bamIterator struct {
	it          *bam.Iterator
	refID       int
	start, stop int
	aln         Alignment
	err         error
	done        bool
}

// nh extracts the NH tag of a record, or 1 if it is absent.
func nh(rec *sam.Record) (int, error) {
	aux := rec.AuxFields.Get(nhTag)
	if aux == nil {
		return 1, nil
	}
	switch value := aux.Value().(type) {
	case int8:
		return int(value), nil
	case uint8:
		return int(value), nil
	case int16:
		return int(value), nil
	case uint16:
		return int(value), nil
	case int32:
		return int(value), nil
	case uint32:
		return int(value), nil
	default:
		return 0, fmt.Errorf("invalid NH tag %v in alignment %v", aux, rec.Name)
	}
}

// Next implements the method of the Iterator interface. Index bins
// are coarse, so records on other references or outside of the
// fetched range are skipped here. The file is coordinate-sorted, so
// the first record at or after stop ends the iteration.
func (iter *bamIterator) Next() bool {
	if iter.err != nil || iter.done {
		return false
	}
	for iter.it.Next() {
		rec := iter.it.Record()
		if rec.Ref == nil || rec.Ref.ID() != iter.refID {
			continue
		}
		if rec.Pos >= iter.stop {
			iter.done = true
			return false
		}
		recEnd := rec.End()
		if recEnd <= rec.Pos {
			recEnd = rec.Pos + 1
		}
		if recEnd <= iter.start {
			continue
		}
		count, err := nh(rec)
		if err != nil {
			iter.err = err
			return false
		}
		iter.aln.QNAME = rec.Name
		iter.aln.RefID = iter.refID
		iter.aln.POS = rec.Pos
		iter.aln.Blocks = AppendBlocks(iter.aln.Blocks[:0], rec.Pos, rec.Cigar)
		iter.aln.NH = count
		return true
	}
	iter.err = iter.it.Error()
	return false
}

// Alignment implements the method of the Iterator interface.
func (iter *bamIterator) Alignment() *Alignment {
	return &iter.aln
}

// Err implements the method of the Iterator interface.
func (iter *bamIterator) Err() error {
	return iter.err
}

// Close implements the method of the Iterator interface.
func (iter *bamIterator) Close() error {
	return iter.it.Close()
}

type emptyIterator struct{}

func (emptyIterator) Next() bool { return false }
func (emptyIterator) Alignment() *Alignment { return nil }
func (emptyIterator) Err() error { return nil }
func (emptyIterator) Close() error { return nil }
