package vcfkit

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/exascience/pargo/pipeline"
	"github.com/pkg/errors"
)

// rewriteBatchSize is the number of record lines handed to a pipeline worker
// at a time.
const rewriteBatchSize = 512

// RewriteOptions selects the transformations applied to a VCF stream.
type RewriteOptions struct {
	// SampleNames replaces the sample names in the header when non-nil.
	SampleNames []string
	// Meta lines (key, value) appended to the header metadata.
	Meta [][2]string
	// Sexes plus Regions enable the hemizygous ploidy fix. Both must be set
	// for any record to change; records outside all regions pass through.
	Sexes   []string
	Regions []Region
}

// Rewrite streams the VCF at inPath to an uncompressed VCF at outPath with
// the requested transformations applied. Record order is preserved and the
// output is fully deterministic for fixed inputs: batches are transformed in
// parallel but emitted strictly in input order.
func Rewrite(inPath, outPath string, opts RewriteOptions) error {
	r, err := Open(inPath)
	if err != nil {
		return err
	}
	defer r.Close()

	header := r.Header()
	if opts.SampleNames != nil {
		if err := header.RenameSamples(opts.SampleNames); err != nil {
			return err
		}
	}
	for _, kv := range opts.Meta {
		if err := header.AddMeta(kv[0], kv[1]); err != nil {
			return err
		}
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, "creating rewritten vcf")
	}
	defer out.Close()
	w := bufio.NewWriterSize(out, 1<<20)

	if err := header.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing header")
	}

	fixPloidy := len(opts.Sexes) > 0 && len(opts.Regions) > 0
	width := header.Width()

	var p pipeline.Pipeline
	p.Source(&lineBatchSource{r: r})
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			lines := data.([]string)
			transformed := make([]string, len(lines))
			for i, line := range lines {
				rec, err := ParseRecord(line, width)
				if err != nil {
					p.SetErr(err)
					return transformed
				}
				if fixPloidy {
					if err := rec.FixPloidy(opts.Sexes, opts.Regions); err != nil {
						p.SetErr(err)
						return transformed
					}
					transformed[i] = rec.String()
				} else {
					transformed[i] = line
				}
			}
			return transformed
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			for _, line := range data.([]string) {
				if _, err := w.WriteString(line); err != nil {
					p.SetErr(err)
					return nil
				}
				if err := w.WriteByte('\n'); err != nil {
					p.SetErr(err)
					return nil
				}
			}
			return nil
		})),
	)
	p.Run()
	if err := p.Err(); err != nil {
		return errors.Wrap(err, "rewriting records")
	}

	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flushing rewritten vcf")
	}
	return out.Close()
}

// lineBatchSource feeds batches of record lines into the pipeline,
// implementing pipeline.Source.
type lineBatchSource struct {
	r     *Reader
	err   error
	batch []string
}

// Err implements the corresponding method of pipeline.Source.
func (s *lineBatchSource) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Prepare implements the corresponding method of pipeline.Source.
func (s *lineBatchSource) Prepare(_ context.Context) int { return -1 }

// Fetch implements the corresponding method of pipeline.Source.
func (s *lineBatchSource) Fetch(_ int) int {
	if s.err != nil {
		return 0
	}
	batch := make([]string, 0, rewriteBatchSize)
	for len(batch) < rewriteBatchSize {
		line, err := s.r.NextLine()
		if err != nil {
			s.err = err
			break
		}
		batch = append(batch, line)
	}
	s.batch = batch
	if len(batch) == 0 {
		return 0
	}
	return 1
}

// Data implements the corresponding method of pipeline.Source.
func (s *lineBatchSource) Data() interface{} { return s.batch }
