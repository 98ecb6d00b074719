// Package pipeline defines the cohort variant-calling workflow: per-sample
// discovery, chromosome-scattered and joint calling, optional phasing and
// repeat-VCF merging, and the finishing stage that compresses, optionally
// anonymizes, and indexes every cohort VCF.
package pipeline

import (
	"fmt"

	"github.com/juniper-lake/CoLoRS/internal/config"
	"github.com/juniper-lake/CoLoRS/internal/model"
	"github.com/juniper-lake/CoLoRS/internal/workflow"
)

// Callers are the variant classes the cohort ends up with. Each maps to one
// final compressed and indexed VCF in the run outputs.
const (
	CallerSmallVariant = "deepvariant"
	CallerStructural   = "pbsv"
	CallerSnifflesSV   = "sniffles"
	CallerRepeat       = "trgt"
)

type builder struct {
	cfg   *config.Config
	attrs model.RuntimeAttributes
	w     *workflow.Workflow
}

// Build assembles the full cohort graph from a validated configuration.
func Build(cfg *config.Config) (*workflow.Workflow, error) {
	b := &builder{
		cfg:   cfg,
		attrs: cfg.RuntimeAttributes(),
		w:     workflow.New(cfg.Cohort.ID),
	}
	if err := b.assemble(); err != nil {
		return nil, err
	}
	if err := b.w.Validate(); err != nil {
		return nil, err
	}
	return b.w, nil
}

func (b *builder) assemble() error {
	samples := b.cfg.SampleNames()

	// Per-sample discovery, one instance per cohort member. The gathers
	// produce sample-ordered collections for the joint callers.
	svsigs, err := b.w.Scatter("pbsv_discover", samples, b.pbsvDiscoverTask)
	if err != nil {
		return err
	}
	gvcfs, err := b.w.Scatter("deepvariant", samples, b.deepVariantTask)
	if err != nil {
		return err
	}
	snfs, err := b.w.Scatter("sniffles_discover", samples, b.snifflesDiscoverTask)
	if err != nil {
		return err
	}

	// Joint SV calling is scattered over the reference chromosomes and
	// reduced back into one cohort VCF in chromosome declaration order.
	pbsvChunks, err := b.w.Scatter("pbsv_call", b.cfg.Reference.Chromosomes,
		func(i int, chrom string) *workflow.Task { return b.pbsvCallTask(chrom, svsigs) })
	if err != nil {
		return err
	}
	if err := b.w.Add(b.concatTask("pbsv_concat", CallerStructural, pbsvChunks)); err != nil {
		return err
	}

	if err := b.w.Add(b.glnexusTask(gvcfs)); err != nil {
		return err
	}
	if err := b.w.Add(b.snifflesCallTask(snfs)); err != nil {
		return err
	}

	if err := b.assembleRepeatStage(); err != nil {
		return err
	}
	if err := b.assembleFinishStage(); err != nil {
		return err
	}

	b.w.Output(CallerSmallVariant, workflow.FirstOf(
		workflow.R("phasing", CallerSmallVariant), workflow.R("unphased", CallerSmallVariant)))
	b.w.Output(CallerStructural, workflow.FirstOf(
		workflow.R("phasing", CallerStructural), workflow.R("unphased", CallerStructural)))
	b.w.Output(CallerSnifflesSV, workflow.FirstOf(
		workflow.R("phasing", CallerSnifflesSV), workflow.R("unphased", CallerSnifflesSV)))
	b.w.Output(CallerRepeat, workflow.OptionalFrom("finish."+CallerRepeat, "vcf"))
	b.w.Output("phasing_stats", workflow.OptionalFrom("phasing", "stats"))
	return nil
}

// assembleRepeatStage wires the repeat-genotyping path: a per-sample
// genotyping scatter gated on the cohort having a repeat catalog (samples
// with a precomputed VCF skip the tool run), then one of two mutually
// exclusive reductions. The plain merge keeps records as they are; the
// aggregation reconciles alleles across samples. Exactly one of the two
// branches materializes, or neither when repeat genotyping is off.
func (b *builder) assembleRepeatStage() error {
	enabled := b.cfg.TRGTEnabled()
	aggregate := b.cfg.Cohort.AggregateTRGT

	err := b.w.When("trgt", enabled, []string{"vcfs"}, func(br *workflow.Branch) error {
		gathered, err := br.Scatter("trgt_genotype", b.cfg.SampleNames(), b.trgtTask)
		if err != nil {
			return err
		}
		return br.Export("vcfs", gathered)
	})
	if err != nil {
		return err
	}

	vcfs := workflow.From("trgt", "vcfs")
	err = b.w.When("trgt_merge", enabled && !aggregate, []string{"vcf"}, func(br *workflow.Branch) error {
		if err := br.Add(b.trgtMergeTask(vcfs)); err != nil {
			return err
		}
		return br.Export("vcf", workflow.R("merge_trgt_vcfs", "vcf"))
	})
	if err != nil {
		return err
	}
	err = b.w.When("trgt_aggregate", enabled && aggregate, []string{"vcf"}, func(br *workflow.Branch) error {
		if err := br.Add(b.trgtAggregateTask(vcfs)); err != nil {
			return err
		}
		return br.Export("vcf", workflow.R("aggregate_trgt_vcfs", "vcf"))
	})
	if err != nil {
		return err
	}

	// The repeat VCF is never phased; it finishes on its own, and the task
	// simply never runs when neither reduction materialized.
	return b.w.Add(b.finishTask(
		"finish."+CallerRepeat,
		b.baseName(CallerRepeat, false),
		workflow.OptionalFirstOf(workflow.R("trgt_merge", "vcf"), workflow.R("trgt_aggregate", "vcf")),
	))
}

// assembleFinishStage routes the three cohort VCFs through phased or
// unphased finishing. The two branches carry the same declared outputs, so
// downstream consumers select whichever one materialized.
func (b *builder) assembleFinishStage() error {
	callers := map[string]workflow.Ref{
		CallerSmallVariant: workflow.R("glnexus", "vcf"),
		CallerStructural:   workflow.R("pbsv_concat", "vcf"),
		CallerSnifflesSV:   workflow.R("sniffles_call", "vcf"),
	}
	declared := []string{CallerSmallVariant, CallerStructural, CallerSnifflesSV}

	phase := b.cfg.Cohort.PhaseVCFs
	err := b.w.When("phasing", phase, append(declared, "stats"), func(br *workflow.Branch) error {
		if err := br.Add(b.hiphaseTask(callers)); err != nil {
			return err
		}
		for _, caller := range declared {
			name := fmt.Sprintf("finish.%s.phased", caller)
			task := b.finishTask(name, b.baseName(caller, true), workflow.From("hiphase", caller))
			if err := br.Add(task); err != nil {
				return err
			}
			if err := br.Export(caller, workflow.R(name, "vcf")); err != nil {
				return err
			}
		}
		return br.Export("stats", workflow.R("hiphase", "stats"))
	})
	if err != nil {
		return err
	}

	return b.w.When("unphased", !phase, declared, func(br *workflow.Branch) error {
		for _, caller := range declared {
			name := "finish." + caller
			task := b.finishTask(name, b.baseName(caller, false), workflow.From(callers[caller].Node, callers[caller].Output))
			if err := br.Add(task); err != nil {
				return err
			}
			if err := br.Export(caller, workflow.R(name, "vcf")); err != nil {
				return err
			}
		}
		return nil
	})
}

// baseName is the extensionless output name of one final cohort VCF. The
// finishing stage appends .anonymized, .vcf.gz and .tbi as it goes.
func (b *builder) baseName(caller string, phased bool) string {
	base := fmt.Sprintf("%s.%s.%s", b.cfg.Cohort.ID, b.cfg.Reference.Name, caller)
	if caller == CallerSmallVariant {
		base += ".glnexus"
	}
	if phased {
		base += ".phased"
	}
	return base
}

// anonymousSampleNames are the deterministic replacement identifiers used
// when the cohort is anonymized. Position in the configuration is the only
// thing they reveal.
func anonymousSampleNames(cohortID string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", cohortID, i+1)
	}
	return names
}
