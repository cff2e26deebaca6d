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
	"github.com/biogo/hts/sam"
)

func operatorIsAlignedBlock(operator sam.CigarOpType) bool {
	switch operator {
	case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
		return true
	default:
		return false
	}
}

func operatorConsumesReferenceBases(operator sam.CigarOpType) bool {
	switch operator {
	case sam.CigarMatch, sam.CigarDeletion, sam.CigarSkipped, sam.CigarEqual, sam.CigarMismatch:
		return true
	default:
		return false
	}
}

// AppendBlocks appends the aligned blocks of an alignment starting at
// the 0-based reference position pos with the given CIGAR to blocks.
// M, = and X operations produce blocks; D and N operations advance
// the reference position without producing a block; all other
// operations leave the reference position unchanged.
func AppendBlocks(blocks []Block, pos int, cigar sam.Cigar) []Block {
	for _, op := range cigar {
		operator := op.Type()
		if !operatorConsumesReferenceBases(operator) {
			continue
		}
		length := op.Len()
		if operatorIsAlignedBlock(operator) {
			blocks = append(blocks, Block{Start: pos, End: pos + length})
		}
		pos += length
	}
	return blocks
}

// ParseBlocks computes the aligned blocks of an alignment starting at
// the 0-based reference position pos from a textual CIGAR string. The
// string "*" yields no blocks.
func ParseBlocks(pos int, cigar string) ([]Block, error) {
	if cigar == "*" || cigar == "" {
		return nil, nil
	}
	ops, err := sam.ParseCigar([]byte(cigar))
	if err != nil {
		return nil, err
	}
	return AppendBlocks(nil, pos, ops), nil
}
