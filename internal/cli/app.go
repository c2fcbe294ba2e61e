package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/roach88/civicledger/internal/config"
	"github.com/roach88/civicledger/internal/service"
	"github.com/roach88/civicledger/internal/store"
)

// app is everything a command needs to talk to the ledger.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	svc      *service.Service
	registry *prometheus.Registry
	tracing  *sdktrace.TracerProvider
	out      *OutputFormatter
}

// settings resolves the effective config: file and environment, then flags.
func (o *RootOptions) settings() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.DatabasePath = o.Database
	}
	if o.Threshold != "" {
		cfg.EscalationThreshold = o.Threshold
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid settings", err)
	}
	return cfg, nil
}

// open loads settings, opens the database and builds the service. Logs and
// trace spans go to the command's stderr so stdout stays parseable.
func (o *RootOptions) open(cmd *cobra.Command) (*app, error) {
	cfg, err := o.settings()
	if err != nil {
		return nil, err
	}
	threshold, _ := cfg.Threshold()

	a := &app{
		cfg:      cfg,
		logger:   cfg.NewLogger(cmd.ErrOrStderr()),
		registry: prometheus.NewRegistry(),
		out: &OutputFormatter{
			Format:    o.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   o.Verbose,
		},
	}

	opts := []service.Option{
		service.WithLogger(a.logger),
		service.WithThreshold(threshold),
		service.WithMetrics(service.NewMetrics(a.registry)),
	}
	if cfg.TracingStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cmd.ErrOrStderr()))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create trace exporter", err)
		}
		a.tracing = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		opts = append(opts, service.WithTracer(a.tracing.Tracer("civicledger")))
	}

	a.logger.Debug("opening database", "path", cfg.DatabasePath)
	a.store, err = store.Open(cfg.DatabasePath)
	if err != nil {
		if a.tracing != nil {
			_ = a.tracing.Shutdown(cmd.Context())
		}
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a.svc = service.New(service.SQLite(a.store), opts...)
	return a, nil
}

// Close flushes metrics and spans and closes the database.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.cfg.MetricsTextfile != "" {
		if err := service.WriteTextfile(a.cfg.MetricsTextfile, a.registry); err != nil {
			errs = append(errs, err)
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("error closing ledger", "error", err)
		return err
	}
	return nil
}

// withApp opens the ledger, runs fn and closes it. A close failure is only
// returned when fn succeeded.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(context.Context, *app) error) (err error) {
	a, err := o.open(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if closeErr := a.Close(ctx); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close ledger", closeErr)
		}
	}()
	return fn(ctx, a)
}

// rejected wraps a service error as a command error.
func rejected(op string, err error) error {
	return WrapExitError(ExitCommandError, op+" rejected", err)
}
