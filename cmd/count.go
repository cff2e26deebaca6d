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
	"runtime"

	"github.com/exascience/elcount/count"
	"github.com/exascience/elcount/features"
	"github.com/exascience/elcount/internal"
	"github.com/exascience/elcount/sam"
)

// CountHelp is the help string for this command.
const CountHelp = "\ncount parameters:\n" +
	"elcount count bam-file annotation-file output-file\n" +
	"[--index bai-file]\n" +
	"[--annotation-type type]\n" +
	"[--id-attribute name]\n" +
	"[--chunk-size nr]\n" +
	"[--nr-of-threads nr]\n" +
	"[--tolerate-scan-errors]\n" +
	"[--timed]\n" +
	"[--profile path]\n" +
	"[--log-path path]\n"

// inputFlags are the flags shared by all commands that read an
// alignment file and an annotation.
type inputFlags struct {
	index          string
	annotationType string
	idAttribute    string
	chunkSize      int
}

func (in *inputFlags) define(flags *flag.FlagSet) {
	flags.StringVar(&in.index, "index", "", "BAI index of the BAM file (default: bam-file.bai)")
	flags.StringVar(&in.annotationType, "annotation-type", features.DefaultFeatureType, "GTF/GFF feature type that describes exons")
	flags.StringVar(&in.idAttribute, "id-attribute", features.DefaultIDAttribute, "GTF/GFF attribute that identifies features")
	flags.IntVar(&in.chunkSize, "chunk-size", count.ChunkSize, "minimum number of reference positions per chunk")
}

func (in *inputFlags) check(input, annotation string) (sanityChecksFailed bool) {
	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkExist("", annotation) {
		sanityChecksFailed = true
	}
	if in.index != "" {
		if !checkExist("--index", in.index) {
			sanityChecksFailed = true
		}
	} else if _, err := sam.FindIndex(input); err != nil {
		sanityChecksFailed = true
		log.Println("Error:", err)
	}
	if in.chunkSize <= 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid chunk-size: ", in.chunkSize)
	}
	return sanityChecksFailed
}

func (in *inputFlags) command(command *bytes.Buffer) {
	if in.index != "" {
		fmt.Fprint(command, " --index ", in.index)
	}
	fmt.Fprint(command, " --annotation-type ", in.annotationType)
	fmt.Fprint(command, " --id-attribute ", in.idAttribute)
	fmt.Fprint(command, " --chunk-size ", in.chunkSize)
}

// load opens the BAM file, and builds the feature index for the
// annotation.
func (in *inputFlags) load(input, annotation string) (*sam.BAMArchive, features.Index, error) {
	archive, err := sam.OpenBAM(input, in.index)
	if err != nil {
		return nil, nil, err
	}
	model, err := features.Load(annotation, in.annotationType, in.idAttribute)
	if err != nil {
		return nil, nil, err
	}
	index, err := features.Build(model)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Loaded %v features on %v reference sequences from %v.", index.NumFeatures(), len(index), annotation)
	return archive, index, nil
}

// Count implements the elcount count command.
func Count() error {
	var (
		in                 inputFlags
		nrOfThreads        int
		tolerateScanErrors bool
		timed              bool
		profile            string
		logPath            string
	)

	var flags flag.FlagSet

	in.define(&flags)
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&tolerateScanErrors, "tolerate-scan-errors", false, "count zero reads for chunks that cannot be read, instead of failing")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write CPU profiles to the specified directory")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 5, CountHelp)

	input := getFilename(os.Args[2], CountHelp)
	annotation := getFilename(os.Args[3], CountHelp)
	output := getFilename(os.Args[4], CountHelp)

	setLogOutput(logPath)

	// sanity checks

	sanityChecksFailed := in.check(input, annotation)

	if !checkCreate("", output) {
		sanityChecksFailed = true
	}

	if profile != "" && !checkDir("--profile", profile) {
		sanityChecksFailed = true
	}

	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, CountHelp)
		os.Exit(1)
	}

	// building the command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " count ", input, " ", annotation, " ", output)
	in.command(&command)
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if tolerateScanErrors {
		fmt.Fprint(&command, " --tolerate-scan-errors")
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	log.Println("Executing command:\n", command.String())

	var (
		archive *sam.BAMArchive
		index   features.Index
		report  *count.Report
	)
	err := timedRun(timed, profile, "Loading annotation and BAM index.", 1, func() (err error) {
		archive, index, err = in.load(input, annotation)
		return err
	})
	if err != nil {
		return err
	}

	err = timedRun(timed, profile, "Counting reads.", 2, func() (err error) {
		report, err = count.Count(archive, index, count.Options{
			Threads:            nrOfThreads,
			ChunkSize:          in.chunkSize,
			TolerateScanErrors: tolerateScanErrors,
		})
		return err
	})
	if err != nil {
		return err
	}
	if n := len(report.Failed); n > 0 {
		log.Printf("Warning: %v of %v chunks could not be read and were counted as zero.", n, report.Chunks)
	}
	log.Println(countSummary(report))

	return timedRun(timed, profile, "Write to file.", 3, func() (err error) {
		file := internal.FileCreate(output)
		defer func() {
			if nerr := file.Close(); err == nil {
				err = nerr
			}
		}()
		return report.Counts.Write(file)
	})
}

// countSummary describes a finished count. The total is a number of
// read-to-feature assignments: a read that hits two features is
// counted for both.
func countSummary(report *count.Report) string {
	return fmt.Sprintf("Counted %v read assignments in %v chunks.", report.Counts[count.TotalKey], report.Chunks)
}
