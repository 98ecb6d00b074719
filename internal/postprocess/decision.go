// Package postprocess finishes cohort VCFs: it selects and runs the
// finishing path that turns a caller's raw output into the final
// block-compressed, indexed artifact.
package postprocess

import "github.com/juniper-lake/CoLoRS/internal/model"

// Path is a VCF finishing path.
type Path int

const (
	// PathZipIndex compresses and indexes without rewriting any content.
	PathZipIndex Path = iota
	// PathAnonymizeFix rewrites records (anonymization and/or ploidy
	// correction) before the same compress-and-index tail.
	PathAnonymizeFix
)

func (p Path) String() string {
	if p == PathZipIndex {
		return "zip-index"
	}
	return "anonymize-fix"
}

// Decide selects the finishing path from the three postprocessing flags.
// It is a pure function: PathZipIndex exactly when no flag requests a
// transformation, PathAnonymizeFix when any flag is set.
func Decide(anonymize bool, nonDiploidRegions model.Optional[string], sampleSexes model.Optional[[]string]) Path {
	if !anonymize && !nonDiploidRegions.Present() && !sampleSexes.Present() {
		return PathZipIndex
	}
	return PathAnonymizeFix
}
