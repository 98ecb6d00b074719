package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/batch"
	"github.com/aws/aws-sdk-go/service/batch/batchiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniper-lake/CoLoRS/internal/model"
)

// fakeBatch fakes the two Batch API calls the backend uses. The embedded
// interface panics on everything else.
type fakeBatch struct {
	batchiface.BatchAPI

	submitted []*batch.SubmitJobInput
	describes int
	detail    func(describe int) *batch.JobDetail
}

func (f *fakeBatch) SubmitJobWithContext(_ aws.Context, in *batch.SubmitJobInput, _ ...request.Option) (*batch.SubmitJobOutput, error) {
	f.submitted = append(f.submitted, in)
	return &batch.SubmitJobOutput{JobId: aws.String("job-1")}, nil
}

func (f *fakeBatch) DescribeJobsWithContext(_ aws.Context, in *batch.DescribeJobsInput, _ ...request.Option) (*batch.DescribeJobsOutput, error) {
	f.describes++
	detail := f.detail(f.describes)
	detail.JobId = in.Jobs[0]
	return &batch.DescribeJobsOutput{Jobs: []*batch.JobDetail{detail}}, nil
}

func terminal(status string) func(int) *batch.JobDetail {
	return func(int) *batch.JobDetail {
		return &batch.JobDetail{Status: aws.String(status)}
	}
}

func batchAttrs() model.RuntimeAttributes {
	return model.RuntimeAttributes{CPU: 4, Memory: "8 GB", QueueARN: "arn:aws:batch:us-east-1:1:job-queue/spot"}
}

func TestAWSBatchRunSucceeded(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "out.vcf.gz"), []byte("x"), 0o644))

	fake := &fakeBatch{detail: terminal(batch.JobStatusSucceeded)}
	be := NewAWSBatch(fake, time.Millisecond)

	res, err := be.Run(context.Background(), Invocation{
		Name:        "deepvariant[0]",
		Image:       "quay.io/colors/deepvariant",
		Argv:        []string{"run_deepvariant", "--model_type", "PACBIO"},
		OutputNames: []string{"out.vcf.gz"},
		WorkDir:     workDir,
		Attrs:       batchAttrs(),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "out.vcf.gz"), res.Outputs["out.vcf.gz"])

	require.Len(t, fake.submitted, 1)
	in := fake.submitted[0]
	assert.Equal(t, "deepvariant_0_", aws.StringValue(in.JobName))
	assert.Equal(t, "quay.io/colors/deepvariant", aws.StringValue(in.JobDefinition))
	assert.Equal(t, "arn:aws:batch:us-east-1:1:job-queue/spot", aws.StringValue(in.JobQueue))
	assert.Equal(t, []string{"run_deepvariant", "--model_type", "PACBIO"}, aws.StringValueSlice(in.ContainerOverrides.Command))

	reqs := map[string]string{}
	for _, r := range in.ContainerOverrides.ResourceRequirements {
		reqs[aws.StringValue(r.Type)] = aws.StringValue(r.Value)
	}
	assert.Equal(t, "4", reqs[batch.ResourceTypeVcpu])
	assert.Equal(t, "8192", reqs[batch.ResourceTypeMemory])
}

func TestAWSBatchRunPollsUntilTerminal(t *testing.T) {
	t.Parallel()

	fake := &fakeBatch{detail: func(describe int) *batch.JobDetail {
		if describe < 3 {
			return &batch.JobDetail{Status: aws.String(batch.JobStatusRunning)}
		}
		return &batch.JobDetail{Status: aws.String(batch.JobStatusSucceeded)}
	}}
	be := NewAWSBatch(fake, time.Millisecond)

	_, err := be.Run(context.Background(), Invocation{
		Name:    "sniffles_call",
		Argv:    []string{"sniffles"},
		WorkDir: t.TempDir(),
		Attrs:   batchAttrs(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, fake.describes)
}

func TestAWSBatchRunSpotReclaimIsPreemption(t *testing.T) {
	t.Parallel()

	fake := &fakeBatch{detail: func(int) *batch.JobDetail {
		return &batch.JobDetail{
			Status:       aws.String(batch.JobStatusFailed),
			StatusReason: aws.String("Job attempt ended: Spot Instance was terminated"),
		}
	}}
	be := NewAWSBatch(fake, time.Millisecond)

	_, err := be.Run(context.Background(), Invocation{
		Name:    "pbsv_call[chr1]",
		Argv:    []string{"pbsv"},
		WorkDir: t.TempDir(),
		Attrs:   batchAttrs(),
	})
	require.Error(t, err)
	assert.True(t, IsPreempted(err))
}

func TestAWSBatchRunContainerFailureIsToolError(t *testing.T) {
	t.Parallel()

	fake := &fakeBatch{detail: func(int) *batch.JobDetail {
		return &batch.JobDetail{
			Status:       aws.String(batch.JobStatusFailed),
			StatusReason: aws.String("Essential container in task exited"),
			Container: &batch.ContainerDetail{
				Reason:   aws.String("OutOfMemoryError: Container killed"),
				ExitCode: aws.Int64(137),
			},
		}
	}}
	be := NewAWSBatch(fake, time.Millisecond)

	_, err := be.Run(context.Background(), Invocation{
		Name:    "glnexus",
		Argv:    []string{"glnexus_cli"},
		WorkDir: t.TempDir(),
		Attrs:   batchAttrs(),
	})
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, 137, toolErr.ExitCode)
	assert.Contains(t, toolErr.Stderr, "OutOfMemoryError")
	assert.False(t, IsPreempted(err))
}

func TestAWSBatchRunRequiresQueueARN(t *testing.T) {
	t.Parallel()

	fake := &fakeBatch{detail: terminal(batch.JobStatusSucceeded)}
	be := NewAWSBatch(fake, time.Millisecond)

	_, err := be.Run(context.Background(), Invocation{
		Name:    "tool",
		Argv:    []string{"true"},
		WorkDir: t.TempDir(),
		Attrs:   model.RuntimeAttributes{CPU: 1},
	})
	require.Error(t, err)
	assert.True(t, IsContractViolation(err))
	assert.Empty(t, fake.submitted)
}

func TestAWSBatchRunMissingOutput(t *testing.T) {
	t.Parallel()

	fake := &fakeBatch{detail: terminal(batch.JobStatusSucceeded)}
	be := NewAWSBatch(fake, time.Millisecond)

	_, err := be.Run(context.Background(), Invocation{
		Name:        "tool",
		Argv:        []string{"true"},
		OutputNames: []string{"missing.vcf"},
		WorkDir:     t.TempDir(),
		Attrs:       batchAttrs(),
	})
	require.Error(t, err)
	assert.True(t, IsContractViolation(err))
}

func TestJobName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "deepvariant_HG002_", jobName("deepvariant[HG002]"))
	assert.Equal(t, "finish_sniffles", jobName("finish.sniffles"))

	long := jobName(string(make([]byte, 300)))
	assert.Len(t, long, 128)
}
