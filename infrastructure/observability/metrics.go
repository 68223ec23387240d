package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"betdao/config"
	"betdao/models"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// MetricsProvider manages OpenTelemetry metrics for the settlement engine
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	enabled       bool
	mu            sync.RWMutex

	// Metric instruments
	betsCreatedCounter           metric.Int64Counter
	betsOpenGauge                metric.Int64UpDownCounter
	submissionsCounter           metric.Int64Counter
	transitionsCounter           metric.Int64Counter
	releasesCounter              metric.Int64Counter
	releaseDurationHist          metric.Float64Histogram
	payoutsCounter               metric.Int64Counter
	payoutFailuresCounter        metric.Int64Counter
	claimsCounter                metric.Int64Counter
	natsMessagesPublishedCounter metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdkmetric.Exporter
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
			),
		),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("betdao")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	mp.enabled = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

func (mp *MetricsProvider) createInstruments() error {
	counters := []struct {
		dst         *metric.Int64Counter
		name        string
		description string
	}{
		{&mp.betsCreatedCounter, BetsCreatedTotal, "Total number of bets created"},
		{&mp.submissionsCounter, SubmissionsTotal, "Total number of bet actions submitted"},
		{&mp.transitionsCounter, TransitionsTotal, "Total number of bet phase transitions"},
		{&mp.releasesCounter, ReleasesTotal, "Total number of released bets"},
		{&mp.payoutsCounter, PayoutsTotal, "Total number of payouts attempted at release"},
		{&mp.payoutFailuresCounter, PayoutFailuresTotal, "Total number of payouts kept as obligations"},
		{&mp.claimsCounter, ClaimsTotal, "Total number of obligation claims"},
		{&mp.natsMessagesPublishedCounter, NATSMessagesPublishedTotal, "Total number of NATS messages published"},
	}
	for _, c := range counters {
		counter, err := mp.meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit("1"),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	mp.betsOpenGauge, err = mp.meter.Int64UpDownCounter(
		BetsOpen,
		metric.WithDescription("Current number of bets not yet released"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create open bets gauge: %w", err)
	}

	mp.releaseDurationHist, err = mp.meter.Float64Histogram(
		ReleaseDuration,
		metric.WithDescription("Duration of bet releases in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create release duration histogram: %w", err)
	}

	return nil
}

// Shutdown flushes and stops the exporter
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.enabled = false
	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordBetCreated counts a new bet and the open gauge
func (mp *MetricsProvider) RecordBetCreated(ctx context.Context, chip string) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(attribute.String(LabelChip, chip))
	mp.betsCreatedCounter.Add(ctx, 1, attrs)
	mp.betsOpenGauge.Add(ctx, 1)
}

// RecordSubmission counts an action with whether it was accepted
func (mp *MetricsProvider) RecordSubmission(ctx context.Context, action models.Action, err error) {
	if !mp.isEnabled() {
		return
	}

	result := ResultAccepted
	if err != nil {
		result = ResultRejected
	}
	mp.submissionsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(LabelAction, string(action)),
			attribute.String(LabelResult, result),
		),
	)
}

// RecordTransition counts a phase change
func (mp *MetricsProvider) RecordTransition(ctx context.Context, from, to models.BetStatus) {
	if !mp.isEnabled() {
		return
	}

	mp.transitionsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(LabelFrom, string(from)),
			attribute.String(LabelTo, string(to)),
		),
	)
	if to == models.BetStatusClosed {
		mp.betsOpenGauge.Add(ctx, -1)
	}
}

// RecordRelease records a release with its payout counts and duration
func (mp *MetricsProvider) RecordRelease(ctx context.Context, outcome models.BetStatus, payouts, failures int, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(attribute.String(LabelOutcome, string(outcome)))
	mp.releasesCounter.Add(ctx, 1, attrs)
	mp.payoutsCounter.Add(ctx, int64(payouts), attrs)
	mp.payoutFailuresCounter.Add(ctx, int64(failures), attrs)
	mp.releaseDurationHist.Record(ctx, duration.Seconds(), attrs)
}

// RecordClaim counts claimed and still-failing obligations
func (mp *MetricsProvider) RecordClaim(ctx context.Context, claimed, failed int) {
	if !mp.isEnabled() {
		return
	}

	mp.claimsCounter.Add(ctx, int64(claimed), metric.WithAttributes(attribute.String(LabelResult, ResultClaimed)))
	mp.claimsCounter.Add(ctx, int64(failed), metric.WithAttributes(attribute.String(LabelResult, ResultFailed)))
}

// RecordNATSMessagePublished records a NATS message being published
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType string) {
	if !mp.isEnabled() {
		return
	}

	mp.natsMessagesPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelEventType, eventType),
		),
	)
}

// isEnabled reports whether instruments exist to record into
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.enabled
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
