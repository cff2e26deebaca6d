// Package sam provides random access to the alignments of indexed
// BAM files, in the form needed for counting reads per feature.
//
// An Archive represents one alignment file and its index. It resolves
// reference sequence names, and hands out independent Fetchers. A
// Fetcher owns its own file descriptor and decompression state, so
// each parallel worker must open its own Fetcher; Fetchers are not
// safe for concurrent use. A Fetcher positions an Iterator on the
// alignments that overlap a range of one reference sequence.
//
// The BAM implementation is based on the biogo/hts library. See
// https://godoc.org/github.com/biogo/hts for details.
package sam
