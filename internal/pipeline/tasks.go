package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/juniper-lake/CoLoRS/internal/backend"
	"github.com/juniper-lake/CoLoRS/internal/model"
	"github.com/juniper-lake/CoLoRS/internal/postprocess"
	"github.com/juniper-lake/CoLoRS/internal/workflow"
)

func (b *builder) pbsvDiscoverTask(i int, sample string) *workflow.Task {
	s := b.cfg.Samples[i]
	out := sample + ".svsig.gz"
	return &workflow.Task{
		Inputs: map[string]workflow.Binding{
			"bam": workflow.Lit(s.BAM),
		},
		Outputs: []string{"svsig"},
		Attrs:   b.attrs.WithCPU(4),
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			bam, err := tc.String("bam")
			if err != nil {
				return nil, err
			}
			return runTool(ctx, tc, "pbsv_discover", "pbsv",
				[]string{"pbsv", "discover", "--hifi", bam, out},
				[]string{bam},
				map[string]string{"svsig": out})
		},
	}
}

func (b *builder) deepVariantTask(i int, sample string) *workflow.Task {
	s := b.cfg.Samples[i]
	out := sample + ".g.vcf.gz"
	fasta := b.cfg.Reference.Fasta
	return &workflow.Task{
		Inputs: map[string]workflow.Binding{
			"bam":   workflow.Lit(s.BAM),
			"fasta": workflow.Lit(fasta),
		},
		Outputs: []string{"gvcf"},
		Attrs:   b.attrs.WithCPU(16),
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			bam, err := tc.String("bam")
			if err != nil {
				return nil, err
			}
			return runTool(ctx, tc, "deepvariant", "deepvariant",
				[]string{
					"run_deepvariant",
					"--model_type", "PACBIO",
					"--ref", fasta,
					"--reads", bam,
					"--sample_name", sample,
					"--output_gvcf", out,
					"--num_shards", fmt.Sprint(tc.Attrs().CPU),
				},
				[]string{bam, fasta, b.cfg.Reference.Index},
				map[string]string{"gvcf": out})
		},
	}
}

func (b *builder) snifflesDiscoverTask(i int, sample string) *workflow.Task {
	s := b.cfg.Samples[i]
	out := sample + ".snf"
	fasta := b.cfg.Reference.Fasta
	return &workflow.Task{
		Inputs: map[string]workflow.Binding{
			"bam":   workflow.Lit(s.BAM),
			"fasta": workflow.Lit(fasta),
		},
		Outputs: []string{"snf"},
		Attrs:   b.attrs.WithCPU(4),
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			bam, err := tc.String("bam")
			if err != nil {
				return nil, err
			}
			return runTool(ctx, tc, "sniffles_discover", "sniffles",
				[]string{"sniffles", "--input", bam, "--reference", fasta, "--snf", out},
				[]string{bam, fasta},
				map[string]string{"snf": out})
		},
	}
}

// pbsvCallTask calls one chromosome worth of structural variants from the
// cohort's signature files.
func (b *builder) pbsvCallTask(chrom string, svsigs workflow.Ref) *workflow.Task {
	out := fmt.Sprintf("%s.%s.vcf", b.cfg.Cohort.ID, chrom)
	fasta := b.cfg.Reference.Fasta
	return &workflow.Task{
		Inputs: map[string]workflow.Binding{
			"svsigs": workflow.From(svsigs.Node, svsigs.Output),
			"fasta":  workflow.Lit(fasta),
		},
		Outputs: []string{"vcf"},
		Attrs:   b.attrs.WithCPU(8),
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			sigs, err := tc.Strings("svsigs")
			if err != nil {
				return nil, err
			}
			argv := append([]string{"pbsv", "call", "--hifi", "--region", chrom, fasta}, sigs...)
			argv = append(argv, out)
			return runTool(ctx, tc, "pbsv_call."+chrom, "pbsv",
				argv,
				append([]string{fasta}, sigs...),
				map[string]string{"vcf": out})
		},
	}
}

// concatTask glues chromosome-scattered VCF chunks back into one cohort VCF.
// The gathered list arrives in chromosome declaration order and is passed
// through untouched, so the concatenation order is deterministic.
func (b *builder) concatTask(name, caller string, chunks workflow.Ref) *workflow.Task {
	out := fmt.Sprintf("%s.%s.%s.vcf", b.cfg.Cohort.ID, b.cfg.Reference.Name, caller)
	return &workflow.Task{
		Name: name,
		Inputs: map[string]workflow.Binding{
			"vcfs": workflow.From(chunks.Node, chunks.Output),
		},
		Outputs: []string{"vcf"},
		Attrs:   b.attrs,
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			vcfs, err := tc.Strings("vcfs")
			if err != nil {
				return nil, err
			}
			argv := append([]string{"bcftools", "concat", "-o", out}, vcfs...)
			return runTool(ctx, tc, name, "bcftools",
				argv,
				vcfs,
				map[string]string{"vcf": out})
		},
	}
}

// glnexusTask joint-calls the cohort's small variants from the per-sample
// gVCFs. GLnexus emits a block-compressed VCF; the finishing stage detects
// that from the bytes and skips recompression.
func (b *builder) glnexusTask(gvcfs workflow.Ref) *workflow.Task {
	out := fmt.Sprintf("%s.%s.deepvariant.glnexus.vcf.gz", b.cfg.Cohort.ID, b.cfg.Reference.Name)
	return &workflow.Task{
		Name: "glnexus",
		Inputs: map[string]workflow.Binding{
			"gvcfs": workflow.From(gvcfs.Node, gvcfs.Output),
		},
		Outputs: []string{"vcf"},
		Attrs:   b.attrs.WithCPU(8),
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			in, err := tc.Strings("gvcfs")
			if err != nil {
				return nil, err
			}
			argv := append([]string{"glnexus_cli", "--config", "DeepVariant_unfiltered", "--out", out}, in...)
			return runTool(ctx, tc, "glnexus", "glnexus",
				argv,
				in,
				map[string]string{"vcf": out})
		},
	}
}

// snifflesCallTask joint-calls SVs from the per-sample SNF files.
func (b *builder) snifflesCallTask(snfs workflow.Ref) *workflow.Task {
	out := fmt.Sprintf("%s.%s.sniffles.vcf", b.cfg.Cohort.ID, b.cfg.Reference.Name)
	fasta := b.cfg.Reference.Fasta
	return &workflow.Task{
		Name: "sniffles_call",
		Inputs: map[string]workflow.Binding{
			"snfs":  workflow.From(snfs.Node, snfs.Output),
			"fasta": workflow.Lit(fasta),
		},
		Outputs: []string{"vcf"},
		Attrs:   b.attrs.WithCPU(8),
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			in, err := tc.Strings("snfs")
			if err != nil {
				return nil, err
			}
			argv := []string{"sniffles", "--input", strings.Join(in, ","), "--reference", fasta, "--vcf", out}
			return runTool(ctx, tc, "sniffles_call", "sniffles",
				argv,
				append([]string{fasta}, in...),
				map[string]string{"vcf": out})
		},
	}
}

// trgtTask genotypes one sample's repeat loci. A sample that arrived with a
// precomputed repeat VCF passes it through without a tool run.
func (b *builder) trgtTask(i int, sample string) *workflow.Task {
	s := b.cfg.Samples[i]
	if s.TRGTVcf != nil {
		provided := *s.TRGTVcf
		return &workflow.Task{
			Inputs: map[string]workflow.Binding{
				"vcf": workflow.Lit(provided),
			},
			Outputs: []string{"vcf"},
			Attrs:   b.attrs,
			Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
				return map[string]any{"vcf": provided}, nil
			},
		}
	}

	bed := *b.cfg.Reference.TRGTBed
	fasta := b.cfg.Reference.Fasta
	out := sample + ".trgt.vcf"
	return &workflow.Task{
		Inputs: map[string]workflow.Binding{
			"bam":   workflow.Lit(s.BAM),
			"bed":   workflow.Lit(bed),
			"fasta": workflow.Lit(fasta),
		},
		Outputs: []string{"vcf"},
		Attrs:   b.attrs.WithCPU(4),
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			bam, err := tc.String("bam")
			if err != nil {
				return nil, err
			}
			return runTool(ctx, tc, "trgt."+sample, "trgt",
				[]string{
					"trgt", "genotype",
					"--genome", fasta,
					"--repeats", bed,
					"--reads", bam,
					"--output-prefix", strings.TrimSuffix(out, ".vcf"),
				},
				[]string{bam, bed, fasta},
				map[string]string{"vcf": out})
		},
	}
}

// trgtMergeTask unions the per-sample repeat VCFs without touching alleles.
func (b *builder) trgtMergeTask(vcfs workflow.Binding) *workflow.Task {
	out := fmt.Sprintf("%s.%s.trgt.vcf", b.cfg.Cohort.ID, b.cfg.Reference.Name)
	return &workflow.Task{
		Name:    "merge_trgt_vcfs",
		Inputs:  map[string]workflow.Binding{"vcfs": vcfs},
		Outputs: []string{"vcf"},
		Attrs:   b.attrs,
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			in, err := tc.Strings("vcfs")
			if err != nil {
				return nil, err
			}
			argv := append([]string{"bcftools", "merge", "--merge", "all", "-o", out}, in...)
			return runTool(ctx, tc, "merge_trgt_vcfs", "bcftools",
				argv,
				in,
				map[string]string{"vcf": out})
		},
	}
}

// trgtAggregateTask merges the per-sample repeat VCFs while reconciling the
// allele sequences observed across the cohort at each locus.
func (b *builder) trgtAggregateTask(vcfs workflow.Binding) *workflow.Task {
	out := fmt.Sprintf("%s.%s.trgt.vcf", b.cfg.Cohort.ID, b.cfg.Reference.Name)
	fasta := b.cfg.Reference.Fasta
	return &workflow.Task{
		Name: "aggregate_trgt_vcfs",
		Inputs: map[string]workflow.Binding{
			"vcfs":  vcfs,
			"fasta": workflow.Lit(fasta),
		},
		Outputs: []string{"vcf"},
		Attrs:   b.attrs,
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			in, err := tc.Strings("vcfs")
			if err != nil {
				return nil, err
			}
			argv := []string{"trgt", "merge", "--genome", fasta, "--output", out, "--vcf"}
			argv = append(argv, in...)
			return runTool(ctx, tc, "aggregate_trgt_vcfs", "trgt",
				argv,
				append([]string{fasta}, in...),
				map[string]string{"vcf": out})
		},
	}
}

// hiphaseTask phases the three cohort VCFs jointly against every sample's
// reads, producing one phased VCF per caller plus a phasing summary.
func (b *builder) hiphaseTask(callers map[string]workflow.Ref) *workflow.Task {
	fasta := b.cfg.Reference.Fasta
	bams := make([]string, len(b.cfg.Samples))
	for i, s := range b.cfg.Samples {
		bams[i] = s.BAM
	}
	order := []string{CallerSmallVariant, CallerStructural, CallerSnifflesSV}
	outs := make(map[string]string, len(order))
	for _, caller := range order {
		outs[caller] = b.baseName(caller, true) + ".vcf"
	}
	statsOut := fmt.Sprintf("%s.%s.hiphase.stats.tsv", b.cfg.Cohort.ID, b.cfg.Reference.Name)

	inputs := map[string]workflow.Binding{
		"bams":  workflow.Lit(bams),
		"fasta": workflow.Lit(fasta),
	}
	for caller, ref := range callers {
		inputs[caller] = workflow.From(ref.Node, ref.Output)
	}

	return &workflow.Task{
		Name:    "hiphase",
		Inputs:  inputs,
		Outputs: append(append([]string{}, order...), "stats"),
		Attrs:   b.attrs.WithCPU(16),
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			argv := []string{"hiphase", "--reference", fasta, "--stats-file", statsOut}
			files := []string{fasta}
			for _, bam := range bams {
				argv = append(argv, "--bam", bam)
				files = append(files, bam)
			}
			outputs := map[string]string{"stats": statsOut}
			for _, caller := range order {
				vcf, err := tc.String(caller)
				if err != nil {
					return nil, err
				}
				argv = append(argv, "--vcf", vcf, "--output-vcf", outs[caller])
				files = append(files, vcf)
				outputs[caller] = outs[caller]
			}
			return runTool(ctx, tc, "hiphase", "hiphase", argv, files, outputs)
		},
	}
}

// finishTask compresses, optionally anonymizes and ploidy-fixes, and indexes
// one cohort VCF. Its output is the data/index pair of the final artifact.
func (b *builder) finishTask(name, base string, vcf workflow.Binding) *workflow.Task {
	cohort := b.cfg.Cohort
	anonNames := anonymousSampleNames(cohort.ID, len(b.cfg.Samples))
	regions := b.cfg.NonDiploidRegions()
	sexes := b.cfg.SampleSexes()
	return &workflow.Task{
		Name:    name,
		Inputs:  map[string]workflow.Binding{"vcf": vcf},
		Outputs: []string{"vcf"},
		Attrs:   b.attrs,
		Run: func(ctx context.Context, tc *workflow.TaskContext) (map[string]any, error) {
			src, err := tc.String("vcf")
			if err != nil {
				return nil, err
			}
			pair, err := postprocess.Finish(ctx, tc, postprocess.Inputs{
				VCF:               src,
				Base:              base,
				Anonymize:         cohort.AnonymizeOutput,
				AnonymousNames:    anonNames,
				NonDiploidRegions: regions,
				SampleSexes:       sexes,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"vcf": pair}, nil
		},
	}
}

// runTool dispatches one external tool run and maps its produced files back
// onto the task's declared output names.
func runTool(ctx context.Context, tc *workflow.TaskContext, name, tool string, argv, inputFiles []string, outputs map[string]string) (map[string]any, error) {
	names := make([]string, 0, len(outputs))
	for _, file := range outputs {
		names = append(names, file)
	}
	res, err := tc.Backend().Run(ctx, backend.Invocation{
		Name:        name,
		Image:       image(tc.Attrs(), tool),
		Argv:        argv,
		InputFiles:  inputFiles,
		OutputNames: names,
		WorkDir:     tc.WorkDir(),
		Attrs:       tc.Attrs(),
	})
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(outputs))
	for key, file := range outputs {
		values[key] = res.Outputs[file]
	}
	return values, nil
}

func image(attrs model.RuntimeAttributes, tool string) string {
	if attrs.ContainerRegistry == "" {
		return tool
	}
	return attrs.ContainerRegistry + "/" + tool
}
