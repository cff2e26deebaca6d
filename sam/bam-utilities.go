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
	"io"
	"os"
	"runtime"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
)

// ErrNoReplacement is returned by RenameReferences when none of the
// reference names in the header is replaced.
var ErrNoReplacement = errors.New("no replacement happened")

// IndexBAM writes the BAI index filename.bai of a coordinate-sorted
// BAM file.
func IndexBAM(filename string) (err error) {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	reader, err := bam.NewReader(file, 1)
	if err != nil {
		return fmt.Errorf("%v, while reading BAM header of %v", err, filename)
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	var idx bam.Index
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("%v, while indexing %v", err, filename)
		}
		if err := idx.Add(rec, reader.LastChunk()); err != nil {
			return fmt.Errorf("%v, while indexing alignment %v in %v", err, rec.Name, filename)
		}
	}
	bai, err := os.Create(filename + BaiExt)
	if err != nil {
		return err
	}
	if err := bam.WriteIndex(bai, &idx); err != nil {
		_ = bai.Close()
		return fmt.Errorf("%v, while writing BAI index for %v", err, filename)
	}
	return bai.Close()
}

// renameHeader copies a header with renamed references. References
// for which rename returns false are left out. The result also maps
// every old reference id onto its new reference, or nil.
func renameHeader(header *sam.Header, rename func(string) (string, bool)) (*sam.Header, []*sam.Reference, error) {
	var refs []*sam.Reference
	mapping := make([]*sam.Reference, len(header.Refs()))
	seen := make(map[string]bool)
	for i, ref := range header.Refs() {
		name, ok := rename(ref.Name())
		if !ok {
			continue
		}
		if seen[name] {
			return nil, nil, fmt.Errorf("duplicate reference name %v", name)
		}
		seen[name] = true
		newRef := ref.Clone()
		if err := newRef.SetName(name); err != nil {
			return nil, nil, err
		}
		refs = append(refs, newRef)
		mapping[i] = newRef
	}
	newHeader, err := sam.NewHeader(nil, refs)
	if err != nil {
		return nil, nil, err
	}
	newHeader.Version = header.Version
	newHeader.SortOrder = header.SortOrder
	newHeader.GroupOrder = header.GroupOrder
	newHeader.Comments = append([]string(nil), header.Comments...)
	for _, rg := range header.RGs() {
		if err := newHeader.AddReadGroup(rg.Clone()); err != nil {
			return nil, nil, err
		}
	}
	for _, prog := range header.Progs() {
		if err := newHeader.AddProgram(prog.Clone()); err != nil {
			return nil, nil, err
		}
	}
	return newHeader, mapping, nil
}

// remap points the references of a record into the new header. It
// returns false if the record's own reference is dropped. A dropped
// mate reference turns the mate into an unplaced one.
func remap(rec *sam.Record, mapping []*sam.Reference) bool {
	if rec.Ref == nil {
		return false
	}
	newRef := mapping[rec.Ref.ID()]
	if newRef == nil {
		return false
	}
	rec.Ref = newRef
	if rec.MateRef != nil {
		if newMate := mapping[rec.MateRef.ID()]; newMate != nil {
			rec.MateRef = newMate
		} else {
			rec.MateRef = nil
			rec.MatePos = -1
			rec.TempLen = 0
		}
	}
	return true
}

// rewriteBAM copies the records of input for which keep returns true
// into output, under the header that makeHeader derives from the
// input header. A coordinate-sorted output also gets a BAI index. It
// returns the number of records written.
func rewriteBAM(
	input, output string,
	makeHeader func(*sam.Header) (*sam.Header, error),
	keep func(*sam.Record) bool,
) (written int, err error) {
	inFile, err := os.Open(input)
	if err != nil {
		return 0, err
	}
	defer func() {
		if nerr := inFile.Close(); err == nil {
			err = nerr
		}
	}()
	reader, err := bam.NewReader(inFile, runtime.GOMAXPROCS(0))
	if err != nil {
		return 0, fmt.Errorf("%v, while reading BAM header of %v", err, input)
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	header, err := makeHeader(reader.Header())
	if err != nil {
		return 0, fmt.Errorf("%w, while creating header for %v", err, output)
	}
	outFile, err := os.Create(output)
	if err != nil {
		return 0, err
	}
	writer, err := bam.NewWriter(outFile, header, runtime.GOMAXPROCS(0))
	if err != nil {
		_ = outFile.Close()
		return 0, fmt.Errorf("%v, while writing BAM header of %v", err, output)
	}
	for {
		rec, rerr := reader.Read()
		if rerr == io.EOF {
			break
		} else if rerr != nil {
			err = fmt.Errorf("%v, while reading %v", rerr, input)
			break
		}
		if !keep(rec) {
			continue
		}
		if werr := writer.Write(rec); werr != nil {
			err = fmt.Errorf("%v, while writing alignment %v to %v", werr, rec.Name, output)
			break
		}
		written++
	}
	if nerr := writer.Close(); err == nil {
		err = nerr
	}
	if nerr := outFile.Close(); err == nil {
		err = nerr
	}
	if err != nil {
		return written, err
	}
	if header.SortOrder == sam.Coordinate {
		err = IndexBAM(output)
	}
	return written, err
}

// RenameReferences copies a BAM file, renaming the references in the
// header according to replacements. Alignments are copied unchanged,
// since reference ids stay the same. It fails with ErrNoReplacement if no reference name changes.
func RenameReferences(input, output string, replacements map[string]string) (int, error) {
	return rewriteBAM(input, output, func(header *sam.Header) (*sam.Header, error) {
		replaced := false
		newHeader, _, err := renameHeader(header, func(name string) (string, bool) {
			if newName, ok := replacements[name]; ok && newName != name {
				replaced = true
				return newName, true
			}
			return name, true
		})
		if err != nil {
			return nil, err
		}
		if !replaced {
			return nil, ErrNoReplacement
		}
		return newHeader, nil
	}, func(*sam.Record) bool { return true })
}

// FilterAndRenameReferences copies the alignments of a BAM file that
// are placed on a reference with a non-empty entry in replacements,
// and renames those references. All other references, and the
// alignments on them, are left out.
func FilterAndRenameReferences(input, output string, replacements map[string]string) (int, error) {
	var mapping []*sam.Reference
	return rewriteBAM(input, output, func(header *sam.Header) (newHeader *sam.Header, err error) {
		newHeader, mapping, err = renameHeader(header, func(name string) (string, bool) {
			newName := replacements[name]
			return newName, newName != ""
		})
		return newHeader, err
	}, func(rec *sam.Record) bool {
		return remap(rec, mapping)
	})
}

// readNames returns the set of query names in a BAM file.
func readNames(filename string) (names map[string]struct{}, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	reader, err := bam.NewReader(file, runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, fmt.Errorf("%v, while reading BAM header of %v", err, filename)
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	reader.Omit(bam.AllVariableLengthData)
	names = make(map[string]struct{})
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			return names, nil
		} else if err != nil {
			return nil, fmt.Errorf("%v, while reading %v", err, filename)
		}
		names[rec.Name] = struct{}{}
	}
}

// Subtract copies the alignments of input whose query name does not
// occur in subtrahend into output, mapped or not.
func Subtract(input, subtrahend, output string) (int, error) {
	names, err := readNames(subtrahend)
	if err != nil {
		return 0, err
	}
	return rewriteBAM(input, output, func(header *sam.Header) (*sam.Header, error) {
		return header, nil
	}, func(rec *sam.Record) bool {
		_, found := names[rec.Name]
		return !found
	})
}
