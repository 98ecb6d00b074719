// Package vcfkit streams VCF files for the cohort postprocessing paths:
// sample anonymization and hemizygous ploidy correction. It stays at the
// text level (records are tab fields, not decoded genotypes) because
// postprocessing rewrites a handful of FORMAT values and leaves everything
// else byte-for-byte untouched.
package vcfkit

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/pkg/errors"
)

// fixedColumns are the mandatory VCF columns preceding the sample columns.
var fixedColumns = []string{"CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT"}

// sample names are restricted so that anonymized names can never collide
// with VCF syntax.
var samplePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// metadata keys that carry structural meaning and must not be added freely.
var reservedMetaKeys = map[string]bool{
	"info": true, "filter": true, "format": true, "contig": true, "fileformat": true,
}

// scanBufferSize bounds a single VCF line; multi-sample SV records get long.
const scanBufferSize = 16 << 20

// Header is the parsed meta section and column line of a VCF file.
type Header struct {
	Meta    []string
	Samples []string
}

// Columns returns the full column line entries: the nine fixed columns
// followed by the sample names.
func (h *Header) Columns() []string {
	return append(append([]string{}, fixedColumns...), h.Samples...)
}

// Width is the expected field count of every record line.
func (h *Header) Width() int { return len(fixedColumns) + len(h.Samples) }

// AddMeta appends a "##key=value" line unless the key is reserved or the
// line is already present.
func (h *Header) AddMeta(key, value string) error {
	if reservedMetaKeys[strings.ToLower(key)] {
		return errors.Errorf("metadata key %s is reserved", key)
	}
	line := "##" + key + "=" + value
	for _, m := range h.Meta {
		if m == line {
			return nil
		}
	}
	h.Meta = append(h.Meta, line)
	return nil
}

// RenameSamples replaces the sample names in the column line. The count must
// match and every name must be a plain identifier.
func (h *Header) RenameSamples(names []string) error {
	if len(names) != len(h.Samples) {
		return errors.Errorf("number of sample names (%d) does not match number of samples (%d)",
			len(names), len(h.Samples))
	}
	for _, name := range names {
		if !samplePattern.MatchString(name) {
			return errors.Errorf("sample name %q may only contain letters, numbers and underscores", name)
		}
	}
	h.Samples = append([]string{}, names...)
	return nil
}

// WriteTo writes the meta lines and the column line.
func (h *Header) WriteTo(w io.Writer) error {
	for _, m := range h.Meta {
		if _, err := io.WriteString(w, m+"\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "#"+strings.Join(h.Columns(), "\t")+"\n")
	return err
}

// Reader streams records from a plain or block-compressed VCF file.
type Reader struct {
	header  *Header
	scanner *bufio.Scanner
	closers []io.Closer
}

// Open reads the header of the file at path. Compression is detected from
// the content (gzip magic bytes), never from the extension: an upstream
// producer may already have compressed the file regardless of its name.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening vcf")
	}

	br := bufio.NewReader(f)
	var src io.Reader = br
	closers := []io.Closer{f}

	if gzipped, err := isGzipHeader(br); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "probing %s", path)
	} else if gzipped {
		bz, err := bgzf.NewReader(br, 0)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "opening block-compressed %s", path)
		}
		src = bz
		closers = append([]io.Closer{bz}, closers...)
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64<<10), scanBufferSize)

	r := &Reader{scanner: scanner, closers: closers}
	if err := r.readHeader(path); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// isGzipHeader peeks at the magic bytes without consuming them.
func isGzipHeader(br *bufio.Reader) (bool, error) {
	magic, err := br.Peek(2)
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	return magic[0] == 0x1f && magic[1] == 0x8b, nil
}

func (r *Reader) readHeader(path string) error {
	h := &Header{}
	sawColumns := false
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r\n")
		switch {
		case strings.HasPrefix(line, "##"):
			h.Meta = append(h.Meta, line)
		case strings.HasPrefix(line, "#"):
			cols := strings.Split(line[1:], "\t")
			if len(cols) < len(fixedColumns) || !equalColumns(cols[:len(fixedColumns)]) {
				return errors.Errorf("%s: header line does not contain the expected columns", path)
			}
			h.Samples = cols[len(fixedColumns):]
			if len(h.Samples) == 0 {
				return errors.Errorf("%s: vcf contains no samples", path)
			}
			sawColumns = true
		default:
			return errors.Errorf("%s: expected header lines before records", path)
		}
		if sawColumns {
			break
		}
	}
	if err := r.scanner.Err(); err != nil {
		return errors.Wrap(err, "reading header")
	}
	if len(h.Meta) == 0 || !sawColumns {
		return errors.Errorf("%s: missing vcf header", path)
	}
	r.header = h
	return nil
}

func equalColumns(cols []string) bool {
	for i, c := range fixedColumns {
		if cols[i] != c {
			return false
		}
	}
	return true
}

// Header returns the parsed header.
func (r *Reader) Header() *Header { return r.header }

// NextLine returns the next raw record line, or io.EOF.
func (r *Reader) NextLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(r.scanner.Text(), "\r\n"), nil
}

// Next parses the next record, or returns io.EOF.
func (r *Reader) Next() (*Record, error) {
	line, err := r.NextLine()
	if err != nil {
		return nil, err
	}
	return ParseRecord(line, r.header.Width())
}

// Close releases the underlying file handles.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
