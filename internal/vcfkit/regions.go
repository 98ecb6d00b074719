package vcfkit

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Region is one BED interval. Start/End keep BED's 0-based half-open
// convention, so a 1-based variant position pos is inside when
// Start < pos <= End.
type Region struct {
	Chrom string
	Start int
	End   int
}

// Contains reports whether the 1-based position lies inside the region.
func (r Region) Contains(chrom string, pos int) bool {
	return chrom == r.Chrom && r.Start < pos && pos <= r.End
}

func inRegions(chrom string, pos int, regions []Region) bool {
	for _, r := range regions {
		if r.Contains(chrom, pos) {
			return true
		}
	}
	return false
}

// ParseBED reads a 3+ column BED file into regions. Track lines and comments
// are skipped.
func ParseBED(path string) ([]Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening bed")
	}
	defer f.Close()

	var regions []Region
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, errors.Errorf("%s:%d: expected at least 3 columns", path, lineNo)
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: start", path, lineNo)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: end", path, lineNo)
		}
		if end < start {
			return nil, errors.Errorf("%s:%d: end %d before start %d", path, lineNo, end, start)
		}
		regions = append(regions, Region{Chrom: fields[0], Start: start, End: end})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading bed")
	}
	return regions, nil
}
