package commands

import (
	"context"
	"fmt"

	"github.com/okian/skincheck/internal/adapters/analysis"
	"github.com/okian/skincheck/internal/adapters/entitlement"
	"github.com/okian/skincheck/internal/config"
	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// metricsOptions maps the metrics section of cfg onto manager options.
// cfg must already be validated.
func metricsOptions(cfg *config.Config) []metrics.Option {
	labels, _ := cfg.MetricLabels()
	return []metrics.Option{
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.MetricsBuckets),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval()),
		metrics.WithCustomLabels(labels),
	}
}

func newGate(cfg *config.Config, log logger.Logger) flow.EntitlementGate {
	if cfg.GateMode == config.GateRemote {
		return entitlement.NewHTTP(cfg.GateURL, entitlement.WithLogger(log.Named("entitlement")))
	}
	return entitlement.NewStatic(cfg.StaticEntitled)
}

func newBackend(cfg *config.Config, log logger.Logger) flow.AnalysisBackend {
	if cfg.AnalysisMode == config.AnalysisRemote {
		return analysis.NewClient(cfg.AnalysisURL,
			analysis.WithTimeout(cfg.AnalysisTimeout()),
			analysis.WithJPEGQuality(cfg.JPEGQuality),
			analysis.WithClientLogger(log.Named("analysis")),
		)
	}
	minLatency, maxLatency := cfg.SimulatedLatency()
	return analysis.NewSimulated(
		analysis.WithLatencyRange(minLatency, maxLatency),
		analysis.WithFailureRate(cfg.SimulatedFailureRate),
	)
}

// newCoordinator builds the flow with every collaborator chosen by cfg.
func (e *env) newCoordinator(ctx context.Context) (*flow.Coordinator, error) {
	coord, err := flow.New(ctx, e.flags, newGate(e.cfg, e.log), newBackend(e.cfg, e.log),
		flow.WithOnboardingSteps(e.cfg.OnboardingSteps),
		flow.WithPlacement(e.cfg.PaywallPlacement),
		flow.WithGatePolicy(flow.GatePolicy(e.cfg.GatePolicy)),
		flow.WithLogger(e.log.Named("flow")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start flow: %w", err)
	}
	return coord, nil
}
