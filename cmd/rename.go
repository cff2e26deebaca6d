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
	"sort"
	"strings"

	"github.com/exascience/elcount/sam"
)

// RenameHelp is the help string for this command.
const RenameHelp = "\nrename parameters:\n" +
	"elcount rename bam-file output-file\n" +
	"--replace old=new[,old=new...]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// FilterRenameHelp is the help string for this command.
const FilterRenameHelp = "\nfilter-rename parameters:\n" +
	"elcount filter-rename bam-file output-file\n" +
	"--keep name[=new][,name[=new]...]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// replacements is a flag.Value that collects old=new pairs from
// comma-separated lists, possibly over several occurrences of the
// flag. A name without =new maps onto itself.
type replacements map[string]string

func (r replacements) String() string {
	pairs := make([]string, 0, len(r))
	for oldName, newName := range r {
		pairs = append(pairs, oldName+"="+newName)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (r replacements) Set(value string) error {
	for _, pair := range strings.Split(value, ",") {
		if pair == "" {
			continue
		}
		oldName, newName := pair, pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			oldName, newName = pair[:i], pair[i+1:]
		}
		if oldName == "" || newName == "" {
			return fmt.Errorf("invalid reference replacement %q", pair)
		}
		if prev, ok := r[oldName]; ok && prev != newName {
			return fmt.Errorf("conflicting replacements for reference %v", oldName)
		}
		r[oldName] = newName
	}
	return nil
}

// runRename implements the rename and filter-rename commands. rewrite
// does the actual work.
func runRename(
	name, flagName, help string,
	rewrite func(input, output string, replacements map[string]string) (int, error),
) error {
	var (
		pairs   = make(replacements)
		timed   bool
		logPath string
	)

	var flags flag.FlagSet

	flags.Var(pairs, flagName, "reference name replacements")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, help)

	input := getFilename(os.Args[2], help)
	output := getFilename(os.Args[3], help)

	setLogOutput(logPath)

	// sanity checks

	sanityChecksFailed := false

	if !checkExist("", input) {
		sanityChecksFailed = true
	}

	if !checkCreate("", output) {
		sanityChecksFailed = true
	}

	if len(pairs) == 0 {
		sanityChecksFailed = true
		log.Printf("Error: Missing --%v parameter.", flagName)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " ", name, " ", input, " ", output, " --", flagName, " ", pairs.String())
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	log.Println("Executing command:\n", command.String())

	return timedRun(timed, "", "Rewriting BAM file.", 1, func() error {
		n, err := rewrite(input, output, pairs)
		if err != nil {
			return err
		}
		log.Printf("Wrote %v alignments to %v.", n, output)
		return nil
	})
}

// Rename implements the elcount rename command.
func Rename() error {
	return runRename("rename", "replace", RenameHelp, sam.RenameReferences)
}

// FilterRename implements the elcount filter-rename command.
func FilterRename() error {
	return runRename("filter-rename", "keep", FilterRenameHelp, sam.FilterAndRenameReferences)
}
