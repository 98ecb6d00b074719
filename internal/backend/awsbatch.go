package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/batch"
	"github.com/aws/aws-sdk-go/service/batch/batchiface"
	"github.com/pkg/errors"

	"github.com/juniper-lake/CoLoRS/internal/ctxlog"
)

// AWSBatch submits invocations as jobs on an AWS Batch queue and polls them
// to completion. Jobs run on a shared filesystem, so WorkDir paths are valid
// on both sides. Spot reclaims surface as PreemptedError so the executor can
// charge them to the preemptible budget instead of max_retries.
type AWSBatch struct {
	client       batchiface.BatchAPI
	pollInterval time.Duration
}

// NewAWSBatch wraps a Batch API client. pollInterval <= 0 selects a default.
func NewAWSBatch(client batchiface.BatchAPI, pollInterval time.Duration) *AWSBatch {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &AWSBatch{client: client, pollInterval: pollInterval}
}

// spot reclaim reasons as reported by Batch.
var preemptionReasons = []string{
	"Host EC2",
	"Spot Instance was terminated",
}

// Run implements Backend.
func (b *AWSBatch) Run(ctx context.Context, inv Invocation) (Result, error) {
	logger := ctxlog.FromContext(ctx).With("tool", inv.Name)

	if err := checkInputs(inv); err != nil {
		return Result{}, err
	}
	if inv.Attrs.QueueARN == "" {
		return Result{}, &ContractError{Tool: inv.Name, Detail: "runtime attributes carry no queue ARN"}
	}

	overrides := &batch.ContainerOverrides{
		Command: aws.StringSlice(inv.Argv),
		ResourceRequirements: []*batch.ResourceRequirement{
			{Type: aws.String(batch.ResourceTypeVcpu), Value: aws.String(strconv.Itoa(inv.Attrs.CPU))},
		},
	}
	if inv.Attrs.Memory != "" {
		mib, err := inv.Attrs.MemoryMiB()
		if err != nil {
			return Result{}, err
		}
		overrides.ResourceRequirements = append(overrides.ResourceRequirements, &batch.ResourceRequirement{
			Type:  aws.String(batch.ResourceTypeMemory),
			Value: aws.String(strconv.Itoa(mib)),
		})
	}

	submitted, err := b.client.SubmitJobWithContext(ctx, &batch.SubmitJobInput{
		JobName:            aws.String(jobName(inv.Name)),
		JobQueue:           aws.String(inv.Attrs.QueueARN),
		JobDefinition:      aws.String(inv.Image),
		ContainerOverrides: overrides,
	})
	if err != nil {
		return Result{}, errors.Wrapf(err, "submitting %s", inv.Name)
	}
	jobID := aws.StringValue(submitted.JobId)
	logger.Info("Submitted batch job.", "jobID", jobID, "queue", inv.Attrs.QueueARN)

	detail, err := b.poll(ctx, jobID)
	if err != nil {
		return Result{}, errors.Wrapf(err, "polling %s", inv.Name)
	}

	switch aws.StringValue(detail.Status) {
	case batch.JobStatusSucceeded:
		outputs, err := collectOutputs(inv)
		if err != nil {
			return Result{}, err
		}
		return Result{ExitCode: 0, Outputs: outputs}, nil
	case batch.JobStatusFailed:
		reason := aws.StringValue(detail.StatusReason)
		if detail.Container != nil && aws.StringValue(detail.Container.Reason) != "" {
			reason = aws.StringValue(detail.Container.Reason)
		}
		if isPreemptionReason(reason) {
			return Result{}, &PreemptedError{Tool: inv.Name, Reason: reason}
		}
		exitCode := 1
		if detail.Container != nil && detail.Container.ExitCode != nil {
			exitCode = int(aws.Int64Value(detail.Container.ExitCode))
		}
		return Result{}, &ToolError{Tool: inv.Name, ExitCode: exitCode, Stderr: reason}
	default:
		return Result{}, fmt.Errorf("job %s finished in unexpected status %s", jobID, aws.StringValue(detail.Status))
	}
}

// poll blocks until the job reaches a terminal status.
func (b *AWSBatch) poll(ctx context.Context, jobID string) (*batch.JobDetail, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		out, err := b.client.DescribeJobsWithContext(ctx, &batch.DescribeJobsInput{
			Jobs: aws.StringSlice([]string{jobID}),
		})
		if err != nil {
			return nil, err
		}
		if len(out.Jobs) == 0 {
			return nil, fmt.Errorf("job %s not found", jobID)
		}
		detail := out.Jobs[0]
		switch aws.StringValue(detail.Status) {
		case batch.JobStatusSucceeded, batch.JobStatusFailed:
			return detail, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isPreemptionReason(reason string) bool {
	for _, p := range preemptionReasons {
		if strings.Contains(reason, p) {
			return true
		}
	}
	return false
}

// jobName sanitizes a tool name into a Batch-legal job name.
func jobName(tool string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, tool)
	if len(mapped) > 128 {
		mapped = mapped[:128]
	}
	return mapped
}
