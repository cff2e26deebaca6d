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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readBAM returns the reference names and the record names of a BAM
// file, and the reference names of the records.
func readBAM(t *testing.T, filename string) (refNames, recNames, recRefs []string) {
	file, err := os.Open(filename)
	require.NoError(t, err)
	defer file.Close()
	reader, err := bam.NewReader(file, 1)
	require.NoError(t, err)
	defer reader.Close()
	for _, ref := range reader.Header().Refs() {
		refNames = append(refNames, ref.Name())
	}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
		recNames = append(recNames, rec.Name)
		recRefs = append(recRefs, rec.Ref.Name())
	}
}

var utilityRecords = []testRecord{
	{"r1", 0, 100, "50M", 0},
	{"r2", 0, 2000, "50M", 0},
	{"r3", 2, 10, "10M", 0},
	{"r4", 2, 20, "10M", 2},
	{"r5", 2, 30, "10M", 0},
	{"u1", -1, -1, "*", 0},
}

func TestRenameReferences(t *testing.T) {
	input := writeIndexedBAM(t, utilityRecords)
	output := filepath.Join(t.TempDir(), "renamed.bam")
	n, err := RenameReferences(input, output, map[string]string{"chr1": "shu", "chr2": "sha", "chrX": "foo"})
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	refNames, recNames, recRefs := readBAM(t, output)
	assert.Equal(t, []string{"shu", "chrMid", "sha", "chrEmpty"}, refNames)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5", "u1"}, recNames)
	assert.Equal(t, []string{"shu", "shu", "sha", "sha", "sha", "*"}, recRefs)

	archive, err := OpenBAM(output, "")
	require.NoError(t, err)
	id, _, ok := archive.Reference("sha")
	require.True(t, ok)
	fetcher, err := archive.Open()
	require.NoError(t, err)
	defer func() { assert.NoError(t, fetcher.Close()) }()
	assert.Equal(t, []string{"r3", "r4", "r5"}, names(fetchAll(t, fetcher, id, 0, 5000)))
}

func TestRenameReferencesErrors(t *testing.T) {
	input := writeIndexedBAM(t, utilityRecords)
	output := filepath.Join(t.TempDir(), "renamed.bam")

	_, err := RenameReferences(input, output, map[string]string{"chrX": "foo"})
	assert.ErrorIs(t, err, ErrNoReplacement)
	_, err = RenameReferences(input, output, map[string]string{"chr1": "chr1"})
	assert.ErrorIs(t, err, ErrNoReplacement)
	_, err = os.Stat(output)
	assert.True(t, os.IsNotExist(err))

	_, err = RenameReferences(input, output, map[string]string{"chr1": "chr2"})
	assert.Error(t, err)
}

func TestFilterAndRenameReferences(t *testing.T) {
	input := writeIndexedBAM(t, utilityRecords)
	for _, replacements := range []map[string]string{
		{"chr2": "sha"},
		{"chr1": "", "chr2": "sha"},
	} {
		output := filepath.Join(t.TempDir(), "filtered.bam")
		n, err := FilterAndRenameReferences(input, output, replacements)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		refNames, recNames, recRefs := readBAM(t, output)
		assert.Equal(t, []string{"sha"}, refNames)
		assert.Equal(t, []string{"r3", "r4", "r5"}, recNames)
		assert.Equal(t, []string{"sha", "sha", "sha"}, recRefs)

		archive, err := OpenBAM(output, "")
		require.NoError(t, err)
		id, length, ok := archive.Reference("sha")
		require.True(t, ok)
		assert.Equal(t, 0, id)
		assert.Equal(t, 5000, length)
	}
}

func TestFilterAndRenameMates(t *testing.T) {
	refs := make([]*sam.Reference, len(testReferences))
	for i, r := range testReferences {
		ref, err := sam.NewReference(r.name, "", "", r.length, nil, nil)
		require.NoError(t, err)
		refs[i] = ref
	}
	header, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	newHeader, mapping, err := renameHeader(header, func(name string) (string, bool) {
		return "new" + name, name != "chr1"
	})
	require.NoError(t, err)
	assert.Len(t, newHeader.Refs(), 3)

	rec, err := sam.NewRecord("m", refs[2], refs[0], 10, 500, 0, 60, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, remap(rec, mapping))
	assert.Equal(t, "newchr2", rec.Ref.Name())
	assert.Equal(t, 1, rec.Ref.ID())
	assert.Nil(t, rec.MateRef)
	assert.Equal(t, -1, rec.MatePos)

	rec, err = sam.NewRecord("n", refs[0], refs[2], 10, 500, 0, 60, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, remap(rec, mapping))
}

func TestSubtract(t *testing.T) {
	input := writeIndexedBAM(t, utilityRecords)
	subtrahend := writeTestBAM(t, testReferences, sam.Unsorted, []testRecord{
		{"r4", 2, 20, "10M", 2},
		{"r2", 0, 2000, "50M", 0},
		{"other", 1, 5, "10M", 0},
		{"u1", -1, -1, "*", 0},
	})
	output := filepath.Join(t.TempDir(), "subtracted.bam")
	n, err := Subtract(input, subtrahend, output)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	refNames, recNames, _ := readBAM(t, output)
	assert.Equal(t, []string{"chr1", "chrMid", "chr2", "chrEmpty"}, refNames)
	assert.Equal(t, []string{"r1", "r3", "r5"}, recNames)
	_, err = os.Stat(output + BaiExt)
	assert.NoError(t, err)
}
