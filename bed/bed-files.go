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

package bed

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/exascience/elcount/utils"
)

// parseTrackFields parses the key=value pairs of a track line. Values
// may be enclosed in double or single quotes, and then contain
// whitespace. An unterminated quote extends to the end of the line.
func parseTrackFields(line string) map[string]string {
	fields := make(map[string]string)
	rest := strings.TrimPrefix(line, "track")
	for {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return fields
		}
		end := strings.IndexAny(rest, "= \t")
		if end < 0 || rest[end] != '=' {
			// a bare word without value
			if end < 0 {
				return fields
			}
			rest = rest[end:]
			continue
		}
		key := rest[:end]
		rest = rest[end+1:]
		var value string
		if rest != "" && (rest[0] == '"' || rest[0] == '\'') {
			quote := rest[0]
			rest = rest[1:]
			if i := strings.IndexByte(rest, quote); i >= 0 {
				value, rest = rest[:i], rest[i+1:]
			} else {
				value, rest = rest, ""
			}
		} else if i := strings.IndexAny(rest, " \t"); i >= 0 {
			value, rest = rest[:i], rest[i:]
		} else {
			value, rest = rest, ""
		}
		if key != "" {
			fields[key] = value
		}
	}
}

// Parse parses a BED file from the given reader. Regions are sorted
// by start position per chromosome. See
// https://genome.ucsc.edu/FAQ/FAQformat.html#format1
func Parse(reader io.Reader) (*Bed, error) {
	bed := NewBed()
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" ||
			strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "browser") {
			continue
		}
		if strings.HasPrefix(line, "track") {
			bed.Tracks = append(bed.Tracks, NewTrack(parseTrackFields(line)))
			continue
		}
		data := strings.Split(line, "\t")
		if len(data) < 3 {
			return nil, fmt.Errorf("invalid BED line %v: %v", lineNo, line)
		}
		chrom := utils.Intern(data[0])
		start, err := strconv.Atoi(data[1])
		if err != nil {
			return nil, fmt.Errorf("%v, while parsing BED line %v", err, lineNo)
		}
		end, err := strconv.Atoi(data[2])
		if err != nil {
			return nil, fmt.Errorf("%v, while parsing BED line %v", err, lineNo)
		}
		region, err := NewRegion(chrom, start, end, data[3:])
		if err != nil {
			return nil, fmt.Errorf("%v, while parsing BED line %v", err, lineNo)
		}
		AddRegion(bed, region)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	// Make sure bed regions are sorted.
	sortRegions(bed)
	return bed, nil
}
