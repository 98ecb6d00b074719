package vcfkit

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVCF = `##fileformat=VCFv4.2
##contig=<ID=chr1>
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	HG002	HG003
chr1	100	.	A	T	30	PASS	.	GT:AD	0/1:3,7	0/0:9,1
chr1	200	.	G	C	40	PASS	.	GT:AD	1/1:0,12	0/1:5,5
`

func writeBgzf(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bgzf.NewWriter(f, 1)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestOpenPlainVCF(t *testing.T) {
	t.Parallel()

	r, err := Open(writeTempFile(t, "plain.vcf", testVCF))
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	assert.Equal(t, []string{"HG002", "HG003"}, h.Samples)
	assert.Equal(t, 11, h.Width())
	assert.Len(t, h.Meta, 2)

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "chr1", rec.Chrom())
	pos, err := rec.Pos()
	require.NoError(t, err)
	assert.Equal(t, 100, pos)

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestOpenDetectsCompressionFromContent(t *testing.T) {
	t.Parallel()

	// The extension lies: a .vcf file holding block-compressed bytes must
	// still be read as compressed.
	path := writeBgzf(t, "mislabeled.vcf", testVCF)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"HG002", "HG003"}, r.Header().Samples)
	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "chr1", rec.Chrom())
}

func TestOpenRejectsMissingHeader(t *testing.T) {
	t.Parallel()

	_, err := Open(writeTempFile(t, "headerless.vcf", "chr1\t100\t.\tA\tT\t30\tPASS\t.\tGT\t0/1\n"))
	assert.Error(t, err)
}

func TestOpenRejectsNoSamples(t *testing.T) {
	t.Parallel()

	content := "##fileformat=VCFv4.2\n#" + strings.Join(fixedColumns, "\t") + "\n"
	_, err := Open(writeTempFile(t, "nosamples.vcf", content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no samples")
}

func TestParseRecordWidthCheck(t *testing.T) {
	t.Parallel()

	_, err := ParseRecord("chr1\t100\t.\tA\tT", 11)
	assert.Error(t, err)
}

func TestRenameSamples(t *testing.T) {
	t.Parallel()

	h := &Header{Samples: []string{"HG002", "HG003"}}
	require.NoError(t, h.RenameSamples([]string{"cohort_1", "cohort_2"}))
	assert.Equal(t, []string{"cohort_1", "cohort_2"}, h.Samples)

	assert.Error(t, h.RenameSamples([]string{"only_one"}), "count mismatch")
	assert.Error(t, h.RenameSamples([]string{"ok", "has space"}), "invalid name")
}

func TestAddMeta(t *testing.T) {
	t.Parallel()

	h := &Header{Meta: []string{"##fileformat=VCFv4.2"}}
	require.NoError(t, h.AddMeta("cohort_anonymized", "true"))
	assert.Contains(t, h.Meta, "##cohort_anonymized=true")

	// Idempotent: adding the same line twice keeps one copy.
	require.NoError(t, h.AddMeta("cohort_anonymized", "true"))
	assert.Len(t, h.Meta, 2)

	// Structural keys cannot be injected.
	assert.Error(t, h.AddMeta("FORMAT", "bogus"))
	assert.Error(t, h.AddMeta("contig", "bogus"))
}

func TestHeaderWriteTo(t *testing.T) {
	t.Parallel()

	h := &Header{
		Meta:    []string{"##fileformat=VCFv4.2"},
		Samples: []string{"s1"},
	}
	var sb strings.Builder
	require.NoError(t, h.WriteTo(&sb))

	want := "##fileformat=VCFv4.2\n#" + strings.Join(fixedColumns, "\t") + "\ts1\n"
	assert.Equal(t, want, sb.String())
}
