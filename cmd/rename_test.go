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
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplacementsFlag(t *testing.T) {
	pairs := make(replacements)
	var flags flag.FlagSet
	flags.Var(pairs, "replace", "")
	require.NoError(t, flags.Parse([]string{"--replace", "chr1=1,chr2=2", "--replace", "chrM"}))
	assert.Equal(t, replacements{"chr1": "1", "chr2": "2", "chrM": "chrM"}, pairs)
	assert.Equal(t, "chr1=1,chr2=2,chrM=chrM", pairs.String())

	assert.NoError(t, pairs.Set("chr1=1"))
	assert.Error(t, pairs.Set("chr1=one"))
	assert.Error(t, pairs.Set("=x"))
	assert.Error(t, pairs.Set("chrX="))
}
