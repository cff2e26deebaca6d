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

// elcount is a high-performance tool for counting the reads of
// indexed .bam files per gene or other genomic feature.
//
// Please see https://github.com/exascience/elcount for a documentation
// of the tool, and below (and/or
// https://godoc.org/github.com/exascience/elcount) for the API
// documentation.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/elcount/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: count, chunks, rename, filter-rename, subtract")
	fmt.Fprint(os.Stderr, "\n", cmd.CountHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.ChunksHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.RenameHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.FilterRenameHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.SubtractHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprintln(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "count":
		err = cmd.Count()
	case "chunks":
		err = cmd.Chunks()
	case "rename":
		err = cmd.Rename()
	case "filter-rename":
		err = cmd.FilterRename()
	case "subtract":
		err = cmd.Subtract()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
