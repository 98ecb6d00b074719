package vcfkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteAnonymizesAndFixesPloidy(t *testing.T) {
	t.Parallel()

	in := writeTempFile(t, "in.vcf", strings.Join([]string{
		"##fileformat=VCFv4.2",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tHG002",
		"chr1\t100\t.\tA\tT\t30\tPASS\t.\tGT:AD\t0/1:3,7",
		"chrX\t3000000\t.\tG\tC\t40\tPASS\t.\tGT:AD\t0/1:2,9",
	}, "\n") + "\n")
	out := filepath.Join(t.TempDir(), "out.vcf")

	err := Rewrite(in, out, RewriteOptions{
		SampleNames: []string{"cohort_1"},
		Meta:        [][2]string{{"cohort_anonymized", "true"}},
		Sexes:       []string{"male"},
		Regions:     []Region{{Chrom: "chrX", Start: 2781479, End: 155701383}},
	})
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 5)

	assert.Equal(t, "##fileformat=VCFv4.2", lines[0])
	assert.Equal(t, "##cohort_anonymized=true", lines[1])
	assert.True(t, strings.HasSuffix(lines[2], "\tcohort_1"), "sample renamed in the column line")
	assert.NotContains(t, lines[2], "HG002")

	// Autosomal record untouched; chrX record converted to haploid.
	assert.Equal(t, "chr1\t100\t.\tA\tT\t30\tPASS\t.\tGT:AD\t0/1:3,7", lines[3])
	assert.Equal(t, "chrX\t3000000\t.\tG\tC\t40\tPASS\t.\tGT:AD\t1:2,9", lines[4])
}

func TestRewritePreservesOrderAcrossBatches(t *testing.T) {
	t.Parallel()

	// More records than one pipeline batch, so ordering depends on the
	// strictly ordered sink rather than worker scheduling.
	n := 3*rewriteBatchSize + 17
	var sb strings.Builder
	sb.WriteString("##fileformat=VCFv4.2\n")
	sb.WriteString("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tHG002\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "chr1\t%d\t.\tA\tT\t30\tPASS\t.\tGT:AD\t0/1:3,7\n", i)
	}
	in := writeTempFile(t, "big.vcf", sb.String())
	out := filepath.Join(t.TempDir(), "out.vcf")

	require.NoError(t, Rewrite(in, out, RewriteOptions{}))

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, n+2)
	for i := 1; i <= n; i++ {
		assert.True(t, strings.HasPrefix(lines[i+1], fmt.Sprintf("chr1\t%d\t", i)),
			"record %d out of order: %s", i, lines[i+1])
	}
}

func TestRewriteWithoutSexesLeavesRecords(t *testing.T) {
	t.Parallel()

	// Regions alone never trigger the ploidy pass; both inputs are needed.
	in := writeTempFile(t, "in.vcf", strings.Join([]string{
		"##fileformat=VCFv4.2",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tHG002",
		"chrX\t3000000\t.\tG\tC\t40\tPASS\t.\tGT:AD\t0/1:2,9",
	}, "\n") + "\n")
	out := filepath.Join(t.TempDir(), "out.vcf")

	err := Rewrite(in, out, RewriteOptions{
		Regions: []Region{{Chrom: "chrX", Start: 0, End: 155701383}},
	})
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(content), "0/1:2,9")
}

func TestRewritePropagatesRecordErrors(t *testing.T) {
	t.Parallel()

	in := writeTempFile(t, "bad.vcf", strings.Join([]string{
		"##fileformat=VCFv4.2",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tHG002",
		"chr1\t100\t.\tA",
	}, "\n") + "\n")
	out := filepath.Join(t.TempDir(), "out.vcf")

	err := Rewrite(in, out, RewriteOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestRewriteRejectsSampleCountMismatch(t *testing.T) {
	t.Parallel()

	in := writeTempFile(t, "in.vcf", strings.Join([]string{
		"##fileformat=VCFv4.2",
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tHG002\tHG003",
		"chr1\t100\t.\tA\tT\t30\tPASS\t.\tGT:AD\t0/1:3,7\t0/0:9,1",
	}, "\n") + "\n")
	out := filepath.Join(t.TempDir(), "out.vcf")

	err := Rewrite(in, out, RewriteOptions{SampleNames: []string{"cohort_1"}})
	assert.Error(t, err)
}
