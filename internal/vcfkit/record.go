package vcfkit

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Record is one variant line, kept as raw tab fields. Only the sample
// columns are ever rewritten.
type Record struct {
	fields []string
}

// ParseRecord splits a record line and validates its width against the
// header.
func ParseRecord(line string, width int) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != width {
		return nil, errors.Errorf("malformed variant line: got %d fields, expected %d: %.80s",
			len(fields), width, line)
	}
	return &Record{fields: fields}, nil
}

// Chrom returns the CHROM field.
func (r *Record) Chrom() string { return r.fields[0] }

// Pos returns the 1-based POS field.
func (r *Record) Pos() (int, error) {
	pos, err := strconv.Atoi(r.fields[1])
	if err != nil {
		return 0, errors.Wrapf(err, "parsing POS %q", r.fields[1])
	}
	return pos, nil
}

// Ref returns the REF field.
func (r *Record) Ref() string { return r.fields[3] }

// Alts returns the ALT alleles.
func (r *Record) Alts() []string { return strings.Split(r.fields[4], ",") }

// FormatKeys returns the FORMAT field keys.
func (r *Record) FormatKeys() []string { return strings.Split(r.fields[8], ":") }

// Samples returns the sample columns.
func (r *Record) Samples() []string { return r.fields[9:] }

// String reassembles the record line.
func (r *Record) String() string { return strings.Join(r.fields, "\t") }

// FixPloidy rewrites hemizygous genotypes: inside any of the given regions,
// samples with a male sex assignment are converted from diploid to haploid
// representation. Female samples are left as-is; any other assignment is an
// error. Outside the regions the record is untouched.
func (r *Record) FixPloidy(sexes []string, regions []Region) error {
	samples := r.Samples()
	if len(sexes) != len(samples) {
		return errors.Errorf("number of sexes %d does not match number of samples %d",
			len(sexes), len(samples))
	}

	pos, err := r.Pos()
	if err != nil {
		return err
	}
	if !inRegions(r.Chrom(), pos, regions) {
		return nil
	}

	for i := range samples {
		switch strings.ToLower(sexes[i]) {
		case "m", "male", "xy":
			fixed, err := convertToHaploid(r.FormatKeys(), samples[i], len(r.Alts())+1)
			if err != nil {
				return errors.Wrapf(err, "at %s:%d sample %d", r.Chrom(), pos, i)
			}
			r.fields[9+i] = fixed
		case "f", "female", "xx":
			// already correctly diploid
		default:
			return errors.Errorf("invalid sex %q: use m, male or xy for males and f, female or xx for females", sexes[i])
		}
	}
	return nil
}
