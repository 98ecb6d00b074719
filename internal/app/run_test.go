package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniper-lake/CoLoRS/internal/executor"
	"github.com/juniper-lake/CoLoRS/internal/model"
)

func newTestApp(t *testing.T, out *bytes.Buffer) *App {
	t.Helper()
	config, err := NewConfig(Config{
		ConfigPath: "cohort.hcl",
		OutDir:     t.TempDir(),
		Backend:    BackendLocal,
		LogFormat:  "json",
		LogLevel:   "debug",
	})
	require.NoError(t, err)
	return NewApp(out, config)
}

func TestLogReport(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	a := newTestApp(t, &out)

	a.logReport(&executor.Report{
		Nodes: map[string]executor.NodeReport{
			"glnexus":          {Status: model.StatusSucceeded, Attempts: 1},
			"deepvariant[0]":   {Status: model.StatusFailed, Attempts: 4, Err: "deepvariant exited with code 1"},
			"finish.sniffles":  {Status: model.StatusCancelled, Attempts: 0, Err: "dependency deepvariant[0] failed"},
			"pbsv_call[chr1]":  {Status: model.StatusSucceeded, Attempts: 2},
			"sniffles_call":    {Status: model.StatusSucceeded, Attempts: 1},
			"pbsv_concat":      {Status: model.StatusSucceeded, Attempts: 1},
			"trgt_merge":       {Status: model.StatusSucceeded, Attempts: 1},
			"finish.pbsv":      {Status: model.StatusSucceeded, Attempts: 1},
			"finish.trgt":      {Status: model.StatusSucceeded, Attempts: 1},
			"hiphase":          {Status: model.StatusSucceeded, Attempts: 1},
			"pbsv_discover[0]": {Status: model.StatusSucceeded, Attempts: 1},
		},
		Outputs: map[string]any{
			"sv_vcf": model.IndexData{Data: "cohort.GRCh38.pbsv.vcf.gz", Index: "cohort.GRCh38.pbsv.vcf.gz.tbi"},
		},
		Failed: []string{"deepvariant[0]"},
	})

	logged := out.String()
	assert.Contains(t, logged, "deepvariant exited with code 1")
	assert.Contains(t, logged, "Node failed permanently.")
	assert.Contains(t, logged, "Workflow output.")
	assert.Contains(t, logged, "cohort.GRCh38.pbsv.vcf.gz")
}

func TestRunRejectsUnreadableConfig(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	a := newTestApp(t, &out)

	err := a.Run(context.Background())
	require.Error(t, err)
}
