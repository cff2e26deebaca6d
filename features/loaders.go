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

package features

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/biogo/biogo/io/featio/gff"
	"github.com/biogo/biogo/seq"

	"github.com/exascience/elcount/bed"
	"github.com/exascience/elcount/intervals"
	"github.com/exascience/elcount/utils"
)

// Defaults for extracting features from GTF files.
const (
	DefaultFeatureType = "exon"
	DefaultIDAttribute = "gene_id"
)

type gtfGene struct {
	ref    string
	strand int8
	exons  []intervals.Interval
}

// FromGTF reads a gene model from a GTF file. Only records of the
// given feature type are used, and they are grouped into features by
// the given attribute. Overlapping exons of one feature, for example
// the same exon shared by several transcripts, are merged. Features
// are ordered by first appearance per reference sequence.
func FromGTF(reader io.Reader, featureType, idAttribute string) (Model, error) {
	genes := make(map[string]*gtfGene)
	order := make(map[string][]string)
	in := gff.NewReader(reader)
	for {
		f, err := in.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%v, while reading GTF record", err)
		}
		record := f.(*gff.Feature)
		if record.Feature != featureType {
			continue
		}
		id := record.FeatAttributes.Get(idAttribute)
		if id == "" {
			return nil, fmt.Errorf("%w: %v record at %v:%v has no %v attribute",
				ErrMalformedFeature, featureType, record.SeqName, record.FeatStart+1, idAttribute)
		}
		if unquoted, err := strconv.Unquote(id); err == nil {
			id = unquoted
		}
		var strand int8
		switch record.FeatStrand {
		case seq.Plus:
			strand = 1
		case seq.Minus:
			strand = -1
		default:
			return nil, fmt.Errorf("%w %v: %v record at %v:%v has no strand",
				ErrMalformedFeature, id, featureType, record.SeqName, record.FeatStart+1)
		}
		gene, found := genes[id]
		if !found {
			gene = &gtfGene{ref: record.SeqName, strand: strand}
			genes[id] = gene
			order[record.SeqName] = append(order[record.SeqName], id)
		} else if gene.ref != record.SeqName {
			return nil, fmt.Errorf("%w %v: found on reference sequences %v and %v",
				ErrMalformedFeature, id, gene.ref, record.SeqName)
		} else if gene.strand != strand {
			return nil, fmt.Errorf("%w %v: found on both strands", ErrMalformedFeature, id)
		}
		gene.exons = append(gene.exons, intervals.Interval{Start: record.FeatStart, End: record.FeatEnd})
	}
	model := make(Model, len(order))
	for ref, ids := range order {
		features := make([]Feature, len(ids))
		for i, id := range ids {
			gene := genes[id]
			intervals.SortByStart(gene.exons)
			exons := intervals.Flatten(gene.exons)
			feature := Feature{
				ID:         id,
				Strand:     gene.strand,
				ExonStarts: make([]int, len(exons)),
				ExonEnds:   make([]int, len(exons)),
			}
			for j, exon := range exons {
				feature.ExonStarts[j] = exon.Start
				feature.ExonEnds[j] = exon.End
			}
			features[i] = feature
		}
		model[ref] = features
	}
	return model, nil
}

// FromBed converts the regions of a BED file into a gene model. Each
// region becomes one feature, named by the BED name column, with its
// blocks as exons. Regions without blocks are single-exon features.
func FromBed(b *bed.Bed) Model {
	model := make(Model, len(b.Chroms))
	for _, chrom := range b.Chroms {
		regions := b.RegionMap[chrom]
		features := make([]Feature, len(regions))
		for i, region := range regions {
			id := region.Name
			if id == "" {
				id = fmt.Sprintf("%v:%v-%v", *chrom, region.Start, region.End)
			}
			var strand int8 = 1
			if region.Strand == bed.SR {
				strand = -1
			}
			starts, ends := region.Blocks()
			features[i] = Feature{
				ID:         id,
				Strand:     strand,
				ExonStarts: starts,
				ExonEnds:   ends,
			}
		}
		model[*chrom] = features
	}
	return model
}

// Load reads a gene model from a GTF or BED file, which may be
// gzip-compressed. The featureType and idAttribute parameters only
// apply to GTF files.
func Load(filename, featureType, idAttribute string) (model Model, err error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".gz" {
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(filename, filepath.Ext(filename))))
	}
	var isBed bool
	switch ext {
	case ".gtf", ".gff", ".gff2":
	case ".bed":
		isBed = true
	default:
		return nil, fmt.Errorf("unknown gene model format %v for %v", ext, filename)
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	reader, err := utils.HandleGzip(bufio.NewReader(file))
	if err != nil {
		return nil, err
	}
	if isBed {
		b, err := bed.Parse(reader)
		if err != nil {
			return nil, err
		}
		return FromBed(b), nil
	}
	return FromGTF(reader, featureType, idAttribute)
}
