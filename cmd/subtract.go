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
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/exascience/elcount/sam"
)

// SubtractHelp is the help string for this command.
const SubtractHelp = "\nsubtract parameters:\n" +
	"elcount subtract bam-file subtrahend-bam-file output-file\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// Subtract implements the elcount subtract command. It writes the
// alignments of the first BAM file whose read names do not occur in
// the second one.
func Subtract() error {
	var (
		timed   bool
		logPath string
	)

	var flags flag.FlagSet

	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 5, SubtractHelp)

	input := getFilename(os.Args[2], SubtractHelp)
	subtrahend := getFilename(os.Args[3], SubtractHelp)
	output := getFilename(os.Args[4], SubtractHelp)

	setLogOutput(logPath)

	// sanity checks

	sanityChecksFailed := false

	if !checkExist("", input) {
		sanityChecksFailed = true
	}

	if !checkExist("", subtrahend) {
		sanityChecksFailed = true
	}

	if !checkCreate("", output) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, SubtractHelp)
		os.Exit(1)
	}

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " subtract ", input, " ", subtrahend, " ", output)
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	log.Println("Executing command:\n", command.String())

	return timedRun(timed, "", "Subtracting BAM files.", 1, func() error {
		n, err := sam.Subtract(input, subtrahend, output)
		if err != nil {
			return err
		}
		log.Printf("Wrote %v alignments to %v.", n, output)
		return nil
	})
}
