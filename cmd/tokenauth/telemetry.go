package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenauth"
	otelexport "github.com/MrEthical07/tokenauth/metrics/export/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const meterName = "github.com/MrEthical07/tokenauth"

// startOTLP pushes engine metrics to an OTLP/HTTP collector. The returned func
// flushes and shuts the pipeline down.
func startOTLP(ctx context.Context, s settings, engine *tokenauth.Engine) (func(context.Context) error, error) {
	options := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(s.OTLPEndpoint),
		otlpmetrichttp.WithTimeout(10 * time.Second),
		otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
	}
	if s.OTLPInsecure {
		options = append(options, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName("tokenauth"),
		semconv.DeploymentEnvironmentName(s.Env),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	interval := s.OTLPInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)

	bound, err := otelexport.New(provider.Meter(meterName), engine)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		_ = bound.Close()
		return provider.Shutdown(ctx)
	}, nil
}
