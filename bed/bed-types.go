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
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/exascience/elcount/utils"
)

// Bed is a struct for representing the contents of a BED file. See
// https://genome.ucsc.edu/FAQ/FAQformat.html#format1
type Bed struct {
	// Bed tracks defined in the file.
	Tracks []*Track
	// Maps chromosome name onto bed regions.
	RegionMap map[utils.Symbol][]*Region
	// Chromosome names in order of first appearance.
	Chroms []utils.Symbol
}

// A Track is a struct for representing BED tracks. See
// https://genome.ucsc.edu/FAQ/FAQformat.html#format1
type Track struct {
	// All track fields are optional.
	Fields map[string]string
	// The bed regions this track groups together.
	Regions []*Region
}

// A Region is a struct for representing intervals as defined in a BED
// file. See https://genome.ucsc.edu/FAQ/FAQformat.html#format1
//
// Start and End are 0-based and half-open. Optional fields that are
// absent from the file keep their zero value; NFields tells how many
// columns were present.
type Region struct {
	Chrom       utils.Symbol
	Start       int
	End         int
	Name        string
	Score       int
	Strand      utils.Symbol
	ThickStart  int
	ThickEnd    int
	ItemRgb     string
	BlockCount  int
	BlockSizes  []int
	BlockStarts []int
	NFields     int
}

// Symbols for optional strand field of a Region.
var (
	// Strand forward.
	SF = utils.Intern("+")
	// Strand reverse.
	SR = utils.Intern("-")
	// Strand unknown.
	SU = utils.Intern(".")
)

// NewRegion allocates and initializes a new Region. Optional fields
// are given in order. If a "later" field is entered, then the
// "earlier" field was entered as well. See
// https://genome.ucsc.edu/FAQ/FAQformat.html#format1
func NewRegion(chrom utils.Symbol, start, end int, fields []string) (*Region, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid region %v:%v-%v", *chrom, start, end)
	}
	region := &Region{
		Chrom:   chrom,
		Start:   start,
		End:     end,
		NFields: 3 + len(fields),
	}
	if err := initializeRegionFields(region, fields); err != nil {
		return nil, err
	}
	return region, nil
}

// Valid bed region optional fields, in column order.
const (
	brName = iota
	brScore
	brStrand
	brThickStart
	brThickEnd
	brItemRgb
	brBlockCount
	brBlockSizes
	brBlockStarts
)

func parseIntList(val string) ([]int, error) {
	val = strings.TrimSuffix(val, ",")
	if val == "" {
		return nil, nil
	}
	strs := strings.Split(val, ",")
	result := make([]int, len(strs))
	for i, str := range strs {
		n, err := strconv.Atoi(str)
		if err != nil {
			return nil, err
		}
		result[i] = n
	}
	return result, nil
}

// Fills in a Region's optional fields.
func initializeRegionFields(region *Region, fields []string) error {
	for i, val := range fields {
		switch i {
		case brName:
			region.Name = val
		case brScore:
			if val == "." {
				continue
			}
			score, err := strconv.Atoi(val)
			if err != nil || score < 0 || score > 1000 {
				return fmt.Errorf("invalid Score field: %v", val)
			}
			region.Score = score
		case brStrand:
			switch val {
			case "+", "-", ".":
				region.Strand = utils.Intern(val)
			default:
				return fmt.Errorf("invalid Strand field: %v", val)
			}
		case brThickStart:
			start, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid ThickStart field: %v", err.Error())
			}
			region.ThickStart = start
		case brThickEnd:
			end, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid ThickEnd field: %v", err.Error())
			}
			region.ThickEnd = end
		case brItemRgb:
			region.ItemRgb = val
		case brBlockCount:
			count, err := strconv.Atoi(val)
			if err != nil || count < 0 {
				return fmt.Errorf("invalid BlockCount field: %v", val)
			}
			region.BlockCount = count
		case brBlockSizes:
			sizes, err := parseIntList(val)
			if err != nil {
				return fmt.Errorf("invalid BlockSizes field: %v", err.Error())
			}
			region.BlockSizes = sizes
		case brBlockStarts:
			starts, err := parseIntList(val)
			if err != nil {
				return fmt.Errorf("invalid BlockStarts field: %v", err.Error())
			}
			region.BlockStarts = starts
		default:
			return fmt.Errorf("invalid optional field: %v out of 0-8", val)
		}
	}
	if len(fields) > brBlockStarts {
		if len(region.BlockSizes) != region.BlockCount || len(region.BlockStarts) != region.BlockCount {
			return fmt.Errorf("block count %v does not match %v block sizes and %v block starts",
				region.BlockCount, len(region.BlockSizes), len(region.BlockStarts))
		}
	} else if len(fields) > brBlockCount {
		return fmt.Errorf("incomplete block fields in BED region %v:%v-%v", *region.Chrom, region.Start, region.End)
	}
	return nil
}

// HasBlocks returns true if the region carries the BED12 block
// columns.
func (region *Region) HasBlocks() bool {
	return region.NFields >= 12
}

// Blocks returns the absolute, half-open coordinates of the region's
// blocks. A region without block columns is a single block.
func (region *Region) Blocks() (starts, ends []int) {
	if !region.HasBlocks() {
		return []int{region.Start}, []int{region.End}
	}
	starts = make([]int, region.BlockCount)
	ends = make([]int, region.BlockCount)
	for i := 0; i < region.BlockCount; i++ {
		starts[i] = region.Start + region.BlockStarts[i]
		ends[i] = starts[i] + region.BlockSizes[i]
	}
	return
}

// NewTrack allocates and initializes a new Track.
func NewTrack(fields map[string]string) *Track {
	return &Track{
		Fields: fields,
	}
}

// NewBed allocates and initializes an empty bed.
func NewBed() *Bed {
	return &Bed{
		RegionMap: make(map[utils.Symbol][]*Region),
	}
}

// AddRegion adds a region to the bed region map.
func AddRegion(bed *Bed, region *Region) {
	regions, found := bed.RegionMap[region.Chrom]
	if !found {
		bed.Chroms = append(bed.Chroms, region.Chrom)
	}
	bed.RegionMap[region.Chrom] = append(regions, region)
	if n := len(bed.Tracks); n > 0 {
		track := bed.Tracks[n-1]
		track.Regions = append(track.Regions, region)
	}
}

// A function for sorting the bed regions.
func sortRegions(bed *Bed) {
	for _, regions := range bed.RegionMap {
		sort.SliceStable(regions, func(i, j int) bool {
			return regions[i].Start < regions[j].Start
		})
	}
}
