package app

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/batch"

	"github.com/juniper-lake/CoLoRS/internal/backend"
	"github.com/juniper-lake/CoLoRS/internal/config"
	"github.com/juniper-lake/CoLoRS/internal/ctxlog"
	"github.com/juniper-lake/CoLoRS/internal/dag"
	"github.com/juniper-lake/CoLoRS/internal/executor"
	"github.com/juniper-lake/CoLoRS/internal/pipeline"
)

// Run executes the cohort pipeline described by the run configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	cfg, err := config.Load(ctx, a.config.ConfigPath)
	if err != nil {
		return err
	}

	w, err := pipeline.Build(cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble workflow: %w", err)
	}

	graph, err := dag.Build(ctx, w)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	a.logger.Debug("Dependency graph built.", "node_count", len(graph.Nodes))

	be, err := a.newBackend()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(a.config.OutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	a.logger.Info("🚀 Starting cohort run.",
		"cohort", cfg.Cohort.ID,
		"samples", len(cfg.Samples),
		"nodes", len(graph.Nodes),
		"backend", a.config.Backend,
	)
	exec := executor.New(graph, be, a.config.OutDir, executor.WithWorkers(a.config.Workers))
	report, runErr := exec.Run(ctx)
	if report != nil {
		a.logReport(report)
	}
	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	a.logger.Info("🏁 Cohort run finished.")
	return nil
}

func (a *App) newBackend() (backend.Backend, error) {
	switch a.config.Backend {
	case BackendAWSBatch:
		sess, err := session.NewSessionWithOptions(session.Options{
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AWS session: %w", err)
		}
		return backend.NewAWSBatch(batch.New(sess), 0), nil
	case BackendLocal:
		return backend.NewLocal(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", a.config.Backend)
	}
}

// logReport emits the per-node outcome and the final outputs. Only outputs
// that genuinely materialized appear; skipped branches leave no entries.
func (a *App) logReport(report *executor.Report) {
	for id, nr := range report.Nodes {
		logFn := a.logger.Debug
		if nr.Err != "" {
			logFn = a.logger.Warn
		}
		args := []any{"node", id, "status", nr.Status.String(), "attempts", nr.Attempts}
		if nr.Err != "" {
			args = append(args, "error", nr.Err)
		}
		logFn("Node finished.", args...)
	}
	for name, value := range report.Outputs {
		a.logger.Info("Workflow output.", "name", name, "value", fmt.Sprint(value))
	}
	for _, id := range report.Failed {
		a.logger.Error("Node failed permanently.", "node", id)
	}
}
