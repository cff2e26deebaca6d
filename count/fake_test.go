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
	"errors"
	"sync"

	"github.com/exascience/elcount/sam"
)

type fakeRead struct {
	qname  string
	ref    string
	blocks []sam.Block
	nh     int
}

func read(qname, ref string, nh int, blocks ...sam.Block) fakeRead {
	return fakeRead{qname: qname, ref: ref, blocks: blocks, nh: nh}
}

type fakeReference struct {
	name   string
	length int
}

// fakeArchive is an in-memory sam.Archive.
type fakeArchive struct {
	references []fakeReference
	reads      []fakeRead

	// fail, when set, makes Fetch or the iteration fail for the
	// range it returns an error for.
	fail        func(refID, start, stop int) error
	failOnFetch bool

	mu             sync.Mutex
	opened, closed int
}

var errFake = errors.New("fake scan error")

func (archive *fakeArchive) Reference(name string) (id, length int, ok bool) {
	for i, ref := range archive.references {
		if ref.name == name {
			return i, ref.length, true
		}
	}
	return -1, 0, false
}

func (archive *fakeArchive) Open() (sam.Fetcher, error) {
	archive.mu.Lock()
	defer archive.mu.Unlock()
	archive.opened++
	return &fakeFetcher{archive: archive}, nil
}

type fakeFetcher struct {
	archive *fakeArchive
}

func (fetcher *fakeFetcher) Close() error {
	fetcher.archive.mu.Lock()
	defer fetcher.archive.mu.Unlock()
	fetcher.archive.closed++
	return nil
}

func (fetcher *fakeFetcher) Fetch(refID, start, stop int) (sam.Iterator, error) {
	archive := fetcher.archive
	var err error
	if archive.fail != nil {
		err = archive.fail(refID, start, stop)
	}
	if err != nil && archive.failOnFetch {
		return nil, err
	}
	iter := &fakeIterator{err: err}
	for _, r := range archive.reads {
		if r.ref != archive.references[refID].name {
			continue
		}
		aln := sam.Alignment{
			QNAME:  r.qname,
			RefID:  refID,
			POS:    r.blocks[0].Start,
			Blocks: r.blocks,
			NH:     r.nh,
		}
		if aln.POS < stop && aln.End() > start {
			iter.alns = append(iter.alns, aln)
		}
	}
	return iter, nil
}

// fakeIterator returns its alignments, and then fails with err if it
// is not nil.
type fakeIterator struct {
	alns []sam.Alignment
	next int
	err  error
	cur  *sam.Alignment
}

func (iter *fakeIterator) Next() bool {
	if iter.next >= len(iter.alns) {
		return false
	}
	iter.cur = &iter.alns[iter.next]
	iter.next++
	return true
}

func (iter *fakeIterator) Alignment() *sam.Alignment {
	return iter.cur
}

func (iter *fakeIterator) Err() error {
	if iter.next >= len(iter.alns) {
		return iter.err
	}
	return nil
}

func (iter *fakeIterator) Close() error {
	return nil
}
