package vcfkit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionContainsBoundaries(t *testing.T) {
	t.Parallel()

	// BED intervals are 0-based half-open; positions are 1-based. The first
	// base inside {10,20} is position 11 and the last is position 20.
	r := Region{Chrom: "chrX", Start: 10, End: 20}

	assert.False(t, r.Contains("chrX", 10))
	assert.True(t, r.Contains("chrX", 11))
	assert.True(t, r.Contains("chrX", 20))
	assert.False(t, r.Contains("chrX", 21))
	assert.False(t, r.Contains("chrY", 15))
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseBED(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "regions.bed", `# non-diploid regions
track name=nonPAR
chrX	2781479	155701383
chrY	0	57227415

`)
	regions, err := ParseBED(path)
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, Region{Chrom: "chrX", Start: 2781479, End: 155701383}, regions[0])
	assert.Equal(t, Region{Chrom: "chrY", Start: 0, End: 57227415}, regions[1])
}

func TestParseBEDRejectsMalformedLines(t *testing.T) {
	t.Parallel()

	_, err := ParseBED(writeTempFile(t, "short.bed", "chrX\t100\n"))
	assert.Error(t, err)

	_, err = ParseBED(writeTempFile(t, "inverted.bed", "chrX\t200\t100\n"))
	assert.Error(t, err)

	_, err = ParseBED(writeTempFile(t, "nonnumeric.bed", "chrX\tstart\tend\n"))
	assert.Error(t, err)
}
