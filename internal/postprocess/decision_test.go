package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/juniper-lake/CoLoRS/internal/model"
)

func TestDecideFullTruthTable(t *testing.T) {
	t.Parallel()

	regions := func(set bool) model.Optional[string] {
		if set {
			return model.Some("regions.bed")
		}
		return model.None[string]()
	}
	sexes := func(set bool) model.Optional[[]string] {
		if set {
			return model.Some([]string{"male"})
		}
		return model.None[[]string]()
	}

	// Every combination of the three flags. The plain zip-index path is
	// taken exactly when nothing requests a rewrite.
	for _, anonymize := range []bool{false, true} {
		for _, hasRegions := range []bool{false, true} {
			for _, hasSexes := range []bool{false, true} {
				got := Decide(anonymize, regions(hasRegions), sexes(hasSexes))
				want := PathAnonymizeFix
				if !anonymize && !hasRegions && !hasSexes {
					want = PathZipIndex
				}
				assert.Equal(t, want, got,
					"anonymize=%v regions=%v sexes=%v", anonymize, hasRegions, hasSexes)
			}
		}
	}
}

func TestDecideIgnoresFlagValuesOnlyPresence(t *testing.T) {
	t.Parallel()

	// A present but empty sex list still selects the rewrite path; presence
	// is the signal, not the content.
	got := Decide(false, model.None[string](), model.Some([]string{}))
	assert.Equal(t, PathAnonymizeFix, got)
}

func TestPathString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "zip-index", PathZipIndex.String())
	assert.Equal(t, "anonymize-fix", PathAnonymizeFix.String())
}
