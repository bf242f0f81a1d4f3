package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	tracetype "go.opentelemetry.io/otel/trace"
)

// Options selects the exporters installed by Setup
type Options struct {
	// Registerer receives the Prometheus collector; defaults to the global registry
	Registerer promclient.Registerer
	// TraceWriter and LogWriter receive stdout-exporter output; nil disables the exporter
	TraceWriter io.Writer
	LogWriter   io.Writer
}

// Telemetry provides OTel setup
type Telemetry struct {
	tp *trace.TracerProvider
	mp *sdkmetric.MeterProvider
	lp *sdklog.LoggerProvider
}

// Setup initializes tracing, metrics and logging with stdout exporters
func Setup(serviceName string) (*Telemetry, error) {
	return SetupWithOptions(serviceName, Options{TraceWriter: os.Stdout, LogWriter: os.Stdout})
}

// SetupWithOptions installs global trace, meter and logger providers
func SetupWithOptions(serviceName string, opts Options) (*Telemetry, error) {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tpOpts := []trace.TracerProviderOption{trace.WithResource(res)}
	if opts.TraceWriter != nil {
		traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.TraceWriter))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, trace.WithBatcher(traceExporter))
	}
	tp := trace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	var promOpts []prometheus.Option
	if opts.Registerer != nil {
		promOpts = append(promOpts, prometheus.WithRegisterer(opts.Registerer))
	}
	metricExporter, err := prometheus.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(metricExporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	if err := GetGlobalMetrics().InitMetrics(mp.Meter(serviceName)); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	lpOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	if opts.LogWriter != nil {
		logExporter, err := stdoutlog.New(stdoutlog.WithWriter(opts.LogWriter))
		if err != nil {
			return nil, fmt.Errorf("failed to create log exporter: %w", err)
		}
		lpOpts = append(lpOpts, sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)))
	}
	lp := sdklog.NewLoggerProvider(lpOpts...)
	global.SetLoggerProvider(lp)

	return &Telemetry{tp: tp, mp: mp, lp: lp}, nil
}

// Shutdown flushes and stops the providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.tp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("trace provider shutdown failed: %w", err))
	}
	if err := t.mp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider shutdown failed: %w", err))
	}
	if err := t.lp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("log provider shutdown failed: %w", err))
	}
	return errors.Join(errs...)
}

// GetMeter returns a meter for the given name
func GetMeter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// GetTracer returns a tracer for the given name
func GetTracer(name string) tracetype.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
