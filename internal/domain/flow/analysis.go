package flow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// AnalysisJob is the off-owner part of an analysis: the entitlement gate and
// the backend call. It holds copies of everything it needs and never touches
// the coordinator, so Run may execute on any goroutine.
type AnalysisJob struct {
	token     uint64
	capture   PendingCapture
	gate      EntitlementGate
	backend   AnalysisBackend
	placement string
	policy    GatePolicy
	log       logger.Logger
	now       func() time.Time
}

// AnalysisResult is what Run hands back to FinishAnalysis.
type AnalysisResult struct {
	Token   uint64
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

// Token identifies the flow the job belongs to.
func (j *AnalysisJob) Token() uint64 { return j.token }

// BeginAnalysis enters Analyzing and returns the job to run. It must be
// called from the owning goroutine.
func (c *Coordinator) BeginAnalysis(ctx context.Context) (*AnalysisJob, error) {
	if err := c.check(ctx, EventStartAnalysis); err != nil {
		return nil, err
	}
	if err := c.enter(ctx, EventStartAnalysis, Analyzing); err != nil {
		return nil, err
	}

	c.lastToken++
	c.analysis = c.lastToken
	c.analysisStarted = c.now()

	return &AnalysisJob{
		token:     c.analysis,
		capture:   *c.capture,
		gate:      c.gate,
		backend:   c.backend,
		placement: c.placement,
		policy:    c.policy,
		log:       c.log,
		now:       c.now,
	}, nil
}

// Run resolves the entitlement gate and calls the backend. It imposes no
// timeout of its own; ctx and the backend decide how long it may take.
func (j *AnalysisJob) Run(ctx context.Context) AnalysisResult {
	start := j.now()
	res := AnalysisResult{Token: j.token}

	if err := j.resolveGate(ctx); err != nil {
		res.Err = NewAnalysisError(err)
		res.Elapsed = j.now().Sub(start)
		return res
	}

	outcome, err := j.backend.Analyze(ctx, j.capture.Image)
	res.Elapsed = j.now().Sub(start)
	if err != nil {
		res.Err = NewAnalysisError(err)
		return res
	}

	if outcome.ID == "" {
		outcome.ID = uuid.NewString()
	}
	if outcome.AnalyzedAt.IsZero() {
		outcome.AnalyzedAt = j.now()
	}
	if outcome.Image == nil {
		outcome.Image = j.capture.Image
	}
	res.Outcome = outcome
	return res
}

func (j *AnalysisJob) resolveGate(ctx context.Context) error {
	entitled, err := j.gate.IsEntitled(ctx)
	if err != nil {
		j.log.Warn(ctx, "entitlement check failed, presenting paywall", logger.Error(err))
		entitled = false
	}
	if entitled {
		metrics.RecordEntitlementCheck("entitled")
		return nil
	}
	metrics.RecordEntitlementCheck("not_entitled")

	shown := j.now()
	if err := j.gate.PresentGate(ctx, j.placement); err != nil {
		return &AnalysisError{Kind: ErrGateUnavailable, Err: err}
	}
	metrics.RecordPaywallPresented(j.placement, float64(j.now().Sub(shown).Milliseconds()))

	if j.policy != PolicyRequire {
		return nil
	}
	entitled, err = j.gate.IsEntitled(ctx)
	if err != nil {
		return &AnalysisError{Kind: ErrNotEntitled, Err: err}
	}
	if !entitled {
		return ErrNotEntitled
	}
	return nil
}

// FinishAnalysis applies a job's result: ShowingResults on success, Home with
// the capture discarded on failure. It returns the analysis error, if any,
// after routing Home. Results of a job from a flow that is no longer current
// are rejected with ErrStaleAnalysis.
func (c *Coordinator) FinishAnalysis(ctx context.Context, res AnalysisResult) error {
	if c.current != Analyzing || res.Token == 0 || res.Token != c.analysis {
		c.log.Warn(ctx, "dropping stale analysis result",
			logger.Any("token", res.Token),
			logger.String("screen", c.current.String()),
		)
		return ErrStaleAnalysis
	}
	c.analysis = 0
	c.analysisStarted = time.Time{}
	metrics.RecordAnalysisLatency(float64(res.Elapsed.Milliseconds()))

	if res.Err != nil {
		kind := KindOf(res.Err)
		c.capture = nil
		c.outcome = nil
		c.failure = &Failure{Kind: kind, At: c.now()}
		metrics.RecordAnalysisFailure(string(kind))
		c.log.Warn(ctx, "analysis failed, returning home",
			logger.String("kind", string(kind)),
			logger.Error(res.Err),
		)
		if err := c.enter(ctx, EventAnalysisFailed, Home); err != nil {
			return err
		}
		return res.Err
	}

	outcome := res.Outcome
	c.outcome = &outcome
	if err := c.enter(ctx, EventAnalysisSucceeded, ShowingResults); err != nil {
		c.outcome = nil
		return err
	}
	metrics.RecordAnalysisResult(outcome.RiskLevel)
	c.log.Info(ctx, "analysis complete",
		logger.String("outcome_id", outcome.ID),
		logger.String("risk_level", outcome.RiskLevel),
		logger.Duration("elapsed", res.Elapsed),
	)
	return nil
}

// StartAnalysisRequested runs the whole analysis protocol on the calling
// goroutine. Callers that must keep serving events while the gate or the
// backend are pending use BeginAnalysis, Run and FinishAnalysis instead.
func (c *Coordinator) StartAnalysisRequested(ctx context.Context) error {
	job, err := c.BeginAnalysis(ctx)
	if err != nil {
		return err
	}
	return c.FinishAnalysis(ctx, job.Run(ctx))
}

// AnalysisStartedAt returns when the in-flight analysis began, or the zero time.
func (c *Coordinator) AnalysisStartedAt() time.Time { return c.analysisStarted }
