// Package config loads and validates the HCL run configuration: the cohort,
// its samples, the reference, and the shared runtime attributes.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/juniper-lake/CoLoRS/internal/model"
)

var sampleNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Config is the decoded run configuration.
type Config struct {
	Cohort    Cohort    `hcl:"cohort,block"`
	Samples   []Sample  `hcl:"sample,block"`
	Reference Reference `hcl:"reference,block"`
	Runtime   Runtime   `hcl:"runtime,block"`
}

// Cohort names the run and carries the pipeline toggles.
type Cohort struct {
	ID string `hcl:"id"`
	// AnonymizeOutput replaces the cohort's sample identifiers in every
	// final VCF.
	AnonymizeOutput bool `hcl:"anonymize_output,optional"`
	// PhaseVCFs enables the phasing branch.
	PhaseVCFs bool `hcl:"phase_vcfs,optional"`
	// AggregateTRGT selects allele-reconciling aggregation over the plain
	// union merge for the repeat-genotyping VCFs.
	AggregateTRGT bool `hcl:"aggregate_trgt,optional"`
}

// Sample is one cohort member.
type Sample struct {
	Name string `hcl:"name,label"`
	BAM  string `hcl:"bam"`
	// Sex is optional; the ploidy fix only runs when every sample has one.
	Sex *string `hcl:"sex,optional"`
	// TRGTVcf is an optional precomputed repeat-genotyping VCF. Samples
	// without one are genotyped in-pipeline against the reference repeat
	// catalog.
	TRGTVcf *string `hcl:"trgt_vcf,optional"`
}

// Reference describes the reference genome.
type Reference struct {
	Name  string `hcl:"name"`
	Fasta string `hcl:"fasta"`
	Index string `hcl:"index"`
	// Chromosomes is the ordered partition list for scattered calling.
	// Gathered results keep exactly this order.
	Chromosomes []string `hcl:"chromosomes"`
	// NonDiploidRegions is an optional BED of regions exempt from the
	// diploid assumption.
	NonDiploidRegions *string `hcl:"non_diploid_regions,optional"`
	// TRGTBed is the optional repeat catalog for repeat genotyping.
	TRGTBed *string `hcl:"trgt_bed,optional"`
}

// Runtime is the declarative resource policy shared by all tasks.
type Runtime struct {
	ContainerRegistry string   `hcl:"container_registry,optional"`
	QueueARN          string   `hcl:"queue_arn,optional"`
	Zones             []string `hcl:"zones,optional"`
	PreemptibleTries  *int     `hcl:"preemptible_tries,optional"`
	MaxRetries        *int     `hcl:"max_retries,optional"`
	CPU               *int     `hcl:"cpu,optional"`
	Memory            string   `hcl:"memory,optional"`
}

// Validate fails fast on anything that would otherwise surface mid-run.
func (c *Config) Validate() error {
	if c.Cohort.ID == "" {
		return fmt.Errorf("cohort: id is required")
	}
	if !sampleNamePattern.MatchString(c.Cohort.ID) {
		return fmt.Errorf("cohort: id %q may only contain letters, numbers and underscores", c.Cohort.ID)
	}
	if len(c.Samples) == 0 {
		return fmt.Errorf("at least one sample block is required")
	}
	seen := make(map[string]bool, len(c.Samples))
	for _, s := range c.Samples {
		if !sampleNamePattern.MatchString(s.Name) {
			return fmt.Errorf("sample %q: name may only contain letters, numbers and underscores", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate sample %q", s.Name)
		}
		seen[s.Name] = true
		if s.BAM == "" {
			return fmt.Errorf("sample %q: bam is required", s.Name)
		}
		if s.Sex != nil {
			if err := validateSex(*s.Sex); err != nil {
				return fmt.Errorf("sample %q: %w", s.Name, err)
			}
		}
	}
	if c.Reference.Name == "" || c.Reference.Fasta == "" || c.Reference.Index == "" {
		return fmt.Errorf("reference: name, fasta and index are required")
	}
	if len(c.Reference.Chromosomes) == 0 {
		return fmt.Errorf("reference: chromosomes must list at least one partition")
	}
	if c.Reference.TRGTBed == nil {
		var withVCF int
		for _, s := range c.Samples {
			if s.TRGTVcf != nil {
				withVCF++
			}
		}
		if withVCF > 0 && withVCF < len(c.Samples) {
			return fmt.Errorf("reference: trgt_bed is required to genotype the samples without a trgt_vcf")
		}
	}
	return c.RuntimeAttributes().Validate()
}

func validateSex(sex string) error {
	switch strings.ToLower(sex) {
	case "m", "male", "xy", "f", "female", "xx":
		return nil
	default:
		return fmt.Errorf("invalid sex %q: use m, male or xy for males and f, female or xx for females", sex)
	}
}

// RuntimeAttributes builds the shared immutable attributes value, applying
// defaults for anything the runtime block leaves unset.
func (c *Config) RuntimeAttributes() model.RuntimeAttributes {
	attrs := model.RuntimeAttributes{
		PreemptibleTries:  3,
		MaxRetries:        3,
		CPU:               2,
		Memory:            "8 GB",
		QueueARN:          c.Runtime.QueueARN,
		Zones:             c.Runtime.Zones,
		ContainerRegistry: c.Runtime.ContainerRegistry,
	}
	if c.Runtime.PreemptibleTries != nil {
		attrs.PreemptibleTries = *c.Runtime.PreemptibleTries
	}
	if c.Runtime.MaxRetries != nil {
		attrs.MaxRetries = *c.Runtime.MaxRetries
	}
	if c.Runtime.CPU != nil {
		attrs.CPU = *c.Runtime.CPU
	}
	if c.Runtime.Memory != "" {
		attrs.Memory = c.Runtime.Memory
	}
	return attrs
}

// SampleNames returns the sample names in configuration order.
func (c *Config) SampleNames() []string {
	names := make([]string, len(c.Samples))
	for i, s := range c.Samples {
		names[i] = s.Name
	}
	return names
}

// SampleSexes returns the per-sample sexes when every sample carries one,
// and absent otherwise. A partial assignment never drives a ploidy fix.
func (c *Config) SampleSexes() model.Optional[[]string] {
	sexes := make([]string, len(c.Samples))
	for i, s := range c.Samples {
		if s.Sex == nil {
			return model.None[[]string]()
		}
		sexes[i] = *s.Sex
	}
	return model.Some(sexes)
}

// TRGTEnabled reports whether the cohort gets repeat-genotyping VCFs at
// all: either the reference carries a repeat catalog, or every sample
// arrived with a precomputed one.
func (c *Config) TRGTEnabled() bool {
	if c.Reference.TRGTBed != nil {
		return true
	}
	for _, s := range c.Samples {
		if s.TRGTVcf == nil {
			return false
		}
	}
	return len(c.Samples) > 0
}

// NonDiploidRegions returns the optional BED path.
func (c *Config) NonDiploidRegions() model.Optional[string] {
	if c.Reference.NonDiploidRegions == nil {
		return model.None[string]()
	}
	return model.Some(*c.Reference.NonDiploidRegions)
}
