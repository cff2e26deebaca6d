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

package cmd

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/exascience/elcount/count"
	"github.com/exascience/elcount/internal"
	"github.com/exascience/elcount/intervals"
)

// ChunksHelp is the help string for this command.
const ChunksHelp = "\nchunks parameters:\n" +
	"elcount chunks bam-file annotation-file bed-output-file\n" +
	"[--index bai-file]\n" +
	"[--annotation-type type]\n" +
	"[--id-attribute name]\n" +
	"[--chunk-size nr]\n" +
	"[--log-path path]\n"

// Chunks implements the elcount chunks command. It writes the chunks
// that the count command would scan as a BED file, with the number of
// exons in the chunk in the name column.
func Chunks() error {
	var (
		in      inputFlags
		logPath string
	)

	var flags flag.FlagSet

	in.define(&flags)
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 5, ChunksHelp)

	input := getFilename(os.Args[2], ChunksHelp)
	annotation := getFilename(os.Args[3], ChunksHelp)
	output := getFilename(os.Args[4], ChunksHelp)

	setLogOutput(logPath)

	// sanity checks

	sanityChecksFailed := in.check(input, annotation)

	if !checkCreate("", output) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, ChunksHelp)
		os.Exit(1)
	}

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " chunks ", input, " ", annotation, " ", output)
	in.command(&command)
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	log.Println("Executing command:\n", command.String())

	archive, index, err := in.load(input, annotation)
	if err != nil {
		return err
	}
	genome, err := count.NewGenome(archive, index)
	if err != nil {
		return err
	}
	genome.ChunkSize = in.chunkSize

	file := internal.FileCreate(output)
	defer internal.Close(file)
	out := bufio.NewWriter(file)
	n := 0
	for it := genome.Chunks(); it.Next(); n++ {
		chunk := it.Chunk()
		exons := 0
		chunk.Table.DoOverlapping(chunk.Start, chunk.Stop, func(intervals.Entry) bool {
			exons++
			return false
		})
		if _, err := fmt.Fprintf(out, "%v\t%v\t%v\t%v\n", chunk.Reference, chunk.Start, chunk.Stop, exons); err != nil {
			return err
		}
	}
	log.Printf("Wrote %v chunks to %v.", n, output)
	return out.Flush()
}
