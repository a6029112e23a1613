// Command dflow runs a compiled workflow component against a host
// implementing the effect ABI, optionally retrying attempts with
// exponential backoff until the workflow commits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arclight/dflow"
	"github.com/arclight/dflow/audit/pgsink"
	"github.com/arclight/dflow/audit/sqlitesink"
	"github.com/arclight/dflow/effect/httpfx"
	"github.com/arclight/dflow/internal/config"
	"github.com/arclight/dflow/sandbox/container"
	"github.com/arclight/dflow/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dflow", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to dflow.toml (defaults to ./dflow.toml if present)")
	retryUntilSuccess := fs.Bool("retry-until-success", false, "keep calling execute() until the workflow commits")
	maxAttempts := fs.Int("max-attempts", 0, "bound the retry loop (0 = unlimited)")
	seed := fs.Int64("seed", time.Now().UnixNano(), "RNG seed for the workflow instance")
	httpBaseURL := fs.String("http-base-url", "", "base URL the HTTP effect handler prefixes every request path with")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dflow [flags] <path-to-component>")
		return 2
	}
	componentPath := fs.Arg(0)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Load(*configPath)

	binary, err := os.ReadFile(componentPath)
	if err != nil {
		logger.Error("read component", "error", err)
		return 1
	}

	audit, closeAudit, err := buildAuditSink(ctx, cfg.Audit, logger)
	if err != nil {
		logger.Error("build audit sink", "error", err)
		return 1
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	var tracer dflow.Tracer
	if cfg.Telemetry.Enabled {
		t, shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.ExporterEndpoint)
		if err != nil {
			logger.Error("init telemetry", "error", err)
			return 1
		}
		defer shutdown(ctx)
		tracer = t
	}

	performer := httpfx.New(*httpBaseURL)
	if cfg.HTTP.TimeoutSeconds > 0 {
		performer.Client = &http.Client{Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second}
	}

	handlers := &dflow.Handlers{
		HTTP:   performer,
		Logger: logger,
		Audit:  audit,
		Tracer: tracer,
	}

	engine, err := container.NewEngine(cfg.Sandbox.Image, handlers)
	if err != nil {
		logger.Error("start sandbox engine", "error", err)
		return 1
	}

	state := dflow.NewState(dflow.WithSeed(*seed))
	workflow := dflow.NewWorkflow(engine, binary, state, dflow.InstanceOptions{
		FuelLimit:     cfg.Sandbox.FuelLimit,
		YieldInterval: cfg.Sandbox.YieldInterval,
		Handlers:      handlers,
	})
	workflow.Audit = audit
	workflow.Logger = logger
	workflow.Tracer = tracer

	return driveToCompletion(ctx, workflow, logger, *retryUntilSuccess, *maxAttempts)
}

// driveToCompletion calls Workflow.Execute once, or — with
// --retry-until-success — repeatedly until AttemptCommitted, backing off
// between attempts. Only FailedWithID is worth retrying automatically:
// FailedWithoutID is a structural failure the caller must diagnose, so
// the loop stops there too and reports it.
func driveToCompletion(ctx context.Context, workflow *dflow.Workflow, logger *slog.Logger, retryUntilSuccess bool, maxAttempts int) int {
	for attempt := 0; ; attempt++ {
		result, err := workflow.Execute(ctx)
		switch result.Outcome {
		case dflow.AttemptCommitted:
			logger.Info("workflow committed", "workflow_id", workflow.State().ID, "attempts", attempt+1)
			return 0

		case dflow.AttemptFailedWithID:
			logger.Warn("attempt failed, effect targeted for retry", "error", err, "attempt", attempt+1)
			if !retryUntilSuccess || (maxAttempts > 0 && attempt+1 >= maxAttempts) {
				return 1
			}

		case dflow.AttemptFailedWithoutID:
			logger.Error("attempt failed structurally, aborting", "error", err, "attempt", attempt+1)
			return 1
		}

		select {
		case <-ctx.Done():
			return 1
		case <-time.After(dflow.Backoff(time.Second, attempt)):
		}
	}
}

func buildAuditSink(ctx context.Context, cfg config.AuditConfig, logger *slog.Logger) (dflow.AuditSink, func(), error) {
	switch cfg.Driver {
	case "":
		return nil, nil, nil

	case "sqlite":
		sink, err := sqlitesink.Open(ctx, cfg.DSN, sqlitesink.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { sink.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		sink := pgsink.New(pool, pgsink.WithLogger(logger))
		if err := sink.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return sink, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown audit driver %q", cfg.Driver)
	}
}
