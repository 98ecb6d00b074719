package vcfkit

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// convertToHaploid rewrites one diploid sample column to a haploid
// representation. The strategy depends on which FORMAT fields the producing
// caller emits:
//
//   - PL (DeepVariant): re-derive single-allele likelihoods from the
//     homozygous entries of the diploid PL vector, then recompute GT and GQ.
//   - AD (pbsv): pick the allele with the highest supporting depth; a tie is
//     a no-call.
//   - DR+DV (Sniffles): same as AD with the two depths coming from separate
//     fields.
func convertToHaploid(format []string, sample string, nAlleles int) (string, error) {
	values := strings.Split(sample, ":")
	if len(values) != len(format) {
		return "", errors.Errorf("sample %q has %d values for %d FORMAT keys", sample, len(values), len(format))
	}
	fields := make(map[string]string, len(format))
	for i, key := range format {
		fields[key] = values[i]
	}

	var err error
	switch {
	case fields["PL"] != "":
		err = haploidFromPL(fields, nAlleles)
	case fields["AD"] != "":
		err = haploidFromDepths(fields, strings.Split(fields["AD"], ","))
	case fields["DR"] != "" && fields["DV"] != "":
		err = haploidFromDepths(fields, []string{fields["DR"], fields["DV"]})
	default:
		err = errors.Errorf("FORMAT %s is not supported for fixing ploidy", strings.Join(format, ":"))
	}
	if err != nil {
		return "", err
	}

	out := make([]string, len(format))
	for i, key := range format {
		out[i] = fields[key]
	}
	return strings.Join(out, ":"), nil
}

// haploidFromPL converts genotype likelihoods. The diploid PL vector has one
// entry per unordered allele pair; the haploid vector keeps the homozygous
// entries, renormalized in probability space.
func haploidFromPL(fields map[string]string, nAlleles int) error {
	gt := fields["GT"]
	pls := strings.Split(fields["PL"], ",")

	// Already haploid, nothing to do. Phasers emit | as the separator, so a
	// genotype is haploid only when it carries neither separator.
	if len(gtAlleles(gt)) == 1 {
		return nil
	}
	want := nAlleles * (nAlleles + 1) / 2
	if len(pls) != want {
		return errors.Errorf("PL has %d values, expected %d for %d alleles", len(pls), want, nAlleles)
	}

	unnormalized := make([]float64, len(pls))
	for i, pl := range pls {
		v, err := strconv.ParseFloat(pl, 64)
		if err != nil {
			return errors.Wrapf(err, "parsing PL %q", pl)
		}
		unnormalized[i] = math.Pow(10, v/-10)
	}

	// Homozygous pair (i,i) lives at index i*(i+1)/2 + i of the PL vector.
	var sum float64
	homozygous := make([]float64, nAlleles)
	for i := 0; i < nAlleles; i++ {
		homozygous[i] = unnormalized[i*(i+1)/2+i]
		sum += homozygous[i]
	}

	haploidPLs := make([]int, nAlleles)
	minPL := math.MaxInt
	for i, p := range homozygous {
		haploidPLs[i] = int(-10 * math.Log10(p/sum))
		if haploidPLs[i] < minPL {
			minPL = haploidPLs[i]
		}
	}

	newGT := "."
	gq := math.MaxInt
	plStrings := make([]string, nAlleles)
	for i := range haploidPLs {
		haploidPLs[i] -= minPL
		if haploidPLs[i] == 0 {
			// A no-call stays a no-call.
			if !isNoCall(gt) {
				newGT = strconv.Itoa(i)
			}
		} else if haploidPLs[i] < gq {
			gq = haploidPLs[i]
		}
		plStrings[i] = strconv.Itoa(haploidPLs[i])
	}
	if gq == math.MaxInt {
		// Every haploid PL is 0: the alleles are equally likely and the call
		// carries no confidence.
		gq = 0
	}

	fields["PL"] = strings.Join(plStrings, ",")
	fields["GT"] = newGT
	fields["GQ"] = strconv.Itoa(gq)
	return nil
}

// gtAlleles splits a GT on both the unphased (/) and phased (|) separators.
func gtAlleles(gt string) []string {
	return strings.FieldsFunc(gt, func(r rune) bool { return r == '/' || r == '|' })
}

// isNoCall reports whether every allele of the genotype is missing.
func isNoCall(gt string) bool {
	for _, allele := range gtAlleles(gt) {
		if allele != "." {
			return false
		}
	}
	return true
}

// haploidFromDepths picks the allele with the highest supporting read depth.
// A tied maximum is a no-call.
func haploidFromDepths(fields map[string]string, depths []string) error {
	best, bestIdx, ties := -1, 0, 0
	for i, d := range depths {
		v, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil {
			return errors.Wrapf(err, "parsing depth %q", d)
		}
		switch {
		case v > best:
			best, bestIdx, ties = v, i, 1
		case v == best:
			ties++
		}
	}
	if ties != 1 {
		fields["GT"] = "."
	} else {
		fields["GT"] = strconv.Itoa(bestIdx)
	}
	return nil
}
