package postprocess

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/juniper-lake/CoLoRS/internal/backend"
	"github.com/juniper-lake/CoLoRS/internal/ctxlog"
	"github.com/juniper-lake/CoLoRS/internal/model"
	"github.com/juniper-lake/CoLoRS/internal/vcfkit"
	"github.com/juniper-lake/CoLoRS/internal/workflow"
)

// Inputs are the parameters of one finishing run.
type Inputs struct {
	// VCF is the source file, plain or already compressed.
	VCF string
	// Base is the output basename without extensions. The final artifact is
	// Base[.anonymized].vcf.gz plus its .tbi.
	Base string
	// Anonymize replaces the sample names with anonymized ones.
	Anonymize bool
	// AnonymousNames are the replacement sample names, required when
	// Anonymize is set.
	AnonymousNames []string
	// NonDiploidRegions is an optional BED of regions excluded from the
	// standard diploid assumption.
	NonDiploidRegions model.Optional[string]
	// SampleSexes are the optional per-sample sex assignments driving the
	// ploidy fix.
	SampleSexes model.Optional[[]string]
}

// Finish runs the finishing path selected by Decide and returns the
// compressed artifact paired with its freshly built index. Compression and
// indexing are always the final two steps, in that order: the index is built
// over the compressed bytes and is never carried over from earlier content.
func Finish(ctx context.Context, tc *workflow.TaskContext, in Inputs) (model.IndexData, error) {
	logger := ctxlog.FromContext(ctx)

	path := Decide(in.Anonymize, in.NonDiploidRegions, in.SampleSexes)
	base := in.Base
	if in.Anonymize {
		base += ".anonymized"
	}
	logger.Debug("Finishing vcf.", "source", in.VCF, "path", path.String(), "base", base)

	var compressed string
	var err error
	switch path {
	case PathZipIndex:
		compressed, err = zipOnly(ctx, tc, in.VCF, base)
	case PathAnonymizeFix:
		compressed, err = anonymizeAndFix(ctx, tc, in, base)
	}
	if err != nil {
		return model.IndexData{}, err
	}

	index, err := buildIndex(ctx, tc, compressed)
	if err != nil {
		return model.IndexData{}, err
	}
	pair := model.IndexData{Data: compressed, Index: index}
	return pair, pair.Validate()
}

// zipOnly moves an already-compressed source into place, or compresses a
// plain one. No record is rewritten. Whether the source is compressed is
// determined from its content: upstream producers may compress regardless of
// what any flag claims.
func zipOnly(ctx context.Context, tc *workflow.TaskContext, src, base string) (string, error) {
	gzipped, err := isGzipFile(src)
	if err != nil {
		return "", err
	}
	if gzipped {
		// Already compressed: place it under its final name without touching
		// the bytes. The source stays where the producer left it so a retry
		// of this task still finds its input.
		target := filepath.Join(tc.WorkDir(), base+".vcf.gz")
		if err := copyFile(src, target); err != nil {
			return "", err
		}
		return target, nil
	}

	plain := filepath.Join(tc.WorkDir(), base+".vcf")
	if err := copyFile(src, plain); err != nil {
		return "", err
	}
	return compress(ctx, tc, plain)
}

// anonymizeAndFix rewrites the records, then compresses.
func anonymizeAndFix(ctx context.Context, tc *workflow.TaskContext, in Inputs, base string) (string, error) {
	opts := vcfkit.RewriteOptions{}
	if in.Anonymize {
		if len(in.AnonymousNames) == 0 {
			return "", &backend.ContractError{Tool: "postprocess", Detail: "anonymize requested without anonymous sample names"}
		}
		opts.SampleNames = in.AnonymousNames
		opts.Meta = append(opts.Meta, [2]string{"cohort_anonymized", "true"})
	}
	if sexes, ok := in.SampleSexes.Get(); ok {
		bed, ok := in.NonDiploidRegions.Get()
		if ok {
			regions, err := vcfkit.ParseBED(bed)
			if err != nil {
				return "", err
			}
			opts.Sexes = sexes
			opts.Regions = regions
		}
		// Sexes without regions leave ploidy untouched: there is nothing to
		// exempt from the diploid assumption.
	}

	plain := filepath.Join(tc.WorkDir(), base+".vcf")
	if err := vcfkit.Rewrite(in.VCF, plain, opts); err != nil {
		return "", err
	}
	return compress(ctx, tc, plain)
}

// compress block-compresses a plain VCF in the scratch directory via the
// external bgzip contract. bgzip replaces file.vcf with file.vcf.gz.
func compress(ctx context.Context, tc *workflow.TaskContext, plain string) (string, error) {
	name := filepath.Base(plain)
	result, err := tc.Backend().Run(ctx, backend.Invocation{
		Name:        "bgzip",
		Image:       toolImage(tc.Attrs(), "htslib"),
		Argv:        []string{"bgzip", "-f", name},
		InputFiles:  []string{plain},
		OutputNames: []string{name + ".gz"},
		WorkDir:     tc.WorkDir(),
		Attrs:       tc.Attrs(),
	})
	if err != nil {
		return "", err
	}
	return result.Outputs[name+".gz"], nil
}

// buildIndex builds the positional index over a compressed VCF via the
// external tabix contract.
func buildIndex(ctx context.Context, tc *workflow.TaskContext, compressed string) (string, error) {
	name := filepath.Base(compressed)
	result, err := tc.Backend().Run(ctx, backend.Invocation{
		Name:        "tabix",
		Image:       toolImage(tc.Attrs(), "htslib"),
		Argv:        []string{"tabix", "-f", "-p", "vcf", name},
		InputFiles:  []string{compressed},
		OutputNames: []string{name + ".tbi"},
		WorkDir:     tc.WorkDir(),
		Attrs:       tc.Attrs(),
	})
	if err != nil {
		return "", err
	}
	return result.Outputs[name+".tbi"], nil
}

func toolImage(attrs model.RuntimeAttributes, tool string) string {
	if attrs.ContainerRegistry == "" {
		return tool
	}
	return attrs.ContainerRegistry + "/" + tool
}

// isGzipFile checks the gzip magic bytes of the file content.
func isGzipFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrap(err, "probing compression")
	}
	defer f.Close()
	var magic [2]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return magic[0] == 0x1f && magic[1] == 0x8b, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "copying")
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "copying")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, "copying")
	}
	return out.Close()
}
