// Package app runs a flow coordinator on a single owning goroutine and exposes
// its events as safe-for-concurrent-use methods.
package app

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/okian/skincheck/internal/adapters/mq/queue"
	"github.com/okian/skincheck/internal/domain/flow"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// command is one unit of work executed by the loop against the coordinator.
type command struct {
	ctx      context.Context
	name     string
	fn       func(ctx context.Context, c *flow.Coordinator) error
	done     chan error // nil for Post
	enqueued time.Time
}

// Runner owns a coordinator. Commands are executed one at a time, in
// submission order, on the loop goroutine; analyses run beside the loop and
// post their results back to it.
type Runner struct {
	mu sync.Mutex

	coord       *flow.Coordinator
	mailbox     *queue.Queue[command]
	mailboxSize int
	results     chan flow.AnalysisResult
	log         logger.Logger

	snapshot atomic.Pointer[flow.Snapshot]
	started  atomic.Bool
	stopped  atomic.Bool
	inflight sync.WaitGroup

	runCtx context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	done   chan struct{}
}

// New wraps coord. The coordinator must not be used directly afterwards.
func New(coord *flow.Coordinator, opts ...Option) *Runner {
	r := &Runner{
		coord:       coord,
		mailboxSize: defaultMailboxSize,
		results:     make(chan flow.AnalysisResult),
		log:         logger.Nop(),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.mailbox = queue.New[command](queue.WithCapacity(r.mailboxSize))
	r.publish()
	return r
}

// Start launches the loop. Calling it again is a no-op; a stopped runner
// cannot be restarted.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped.Load() {
		return ErrStopped
	}
	if r.started.Load() {
		return nil
	}

	r.runCtx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go r.loop()
	r.started.Store(true)

	r.log.Info(ctx, "runner started",
		logger.Int("mailbox", r.mailboxSize),
		logger.String("screen", r.Snapshot().Screen.String()),
	)
	return nil
}

// Stop ends the loop and abandons any analysis in flight; its result is
// dropped. Stop waits for the loop and the analysis goroutines until ctx ends.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if !r.started.Load() {
		r.mailbox.Close()
		close(r.done)
		return nil
	}

	r.log.Info(ctx, "stopping runner...")
	r.cancel()
	close(r.stopCh)
	r.mailbox.Close()

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	waited := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info(ctx, "runner stopped")
	return nil
}

// Snapshot returns the projection published after the last command.
func (r *Runner) Snapshot() flow.Snapshot {
	if s := r.snapshot.Load(); s != nil {
		return *s
	}
	return flow.Snapshot{}
}

// Do runs fn on the loop and waits for its result. When ctx ends before the
// loop reaches the command, the command is skipped.
func (r *Runner) Do(ctx context.Context, name string, fn func(ctx context.Context, c *flow.Coordinator) error) error {
	cmd := command{
		ctx:      ctx,
		name:     name,
		fn:       fn,
		done:     make(chan error, 1),
		enqueued: time.Now(),
	}
	if err := r.submit(ctx, cmd); err != nil {
		return err
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		select {
		case err := <-cmd.done:
			return err
		default:
			return ErrStopped
		}
	}
}

// Post queues fn without waiting. Errors are logged by the loop.
func (r *Runner) Post(ctx context.Context, name string, fn func(ctx context.Context, c *flow.Coordinator) error) error {
	ctx = context.WithoutCancel(ctx)
	return r.submit(ctx, command{ctx: ctx, name: name, fn: fn, enqueued: time.Now()})
}

func (r *Runner) submit(ctx context.Context, cmd command) error {
	if !r.started.Load() || r.stopped.Load() {
		return ErrStopped
	}
	switch err := r.mailbox.Enqueue(ctx, cmd); {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrFull):
		r.log.Warn(ctx, "mailbox full, rejecting command", logger.String("command", cmd.name))
		return ErrMailboxFull
	case errors.Is(err, queue.ErrClosed):
		return ErrStopped
	default:
		return err
	}
}

func (r *Runner) loop() {
	defer close(r.done)

	mailbox := r.mailbox.Dequeue()
	for {
		select {
		case <-r.stopCh:
			return
		case cmd, ok := <-mailbox:
			if !ok {
				return
			}
			r.exec(cmd)
		case res := <-r.results:
			r.finish(res)
		}
	}
}

func (r *Runner) exec(cmd command) {
	metrics.UpdateMailboxSize(r.mailbox.Len())
	if err := cmd.ctx.Err(); err != nil {
		r.log.Debug(cmd.ctx, "skipping cancelled command", logger.String("command", cmd.name))
		r.reply(cmd, err)
		return
	}

	err := cmd.fn(cmd.ctx, r.coord)
	metrics.RecordCommandLatency(float64(time.Since(cmd.enqueued).Milliseconds()))
	r.publish()
	r.reply(cmd, err)
}

func (r *Runner) reply(cmd command, err error) {
	if cmd.done != nil {
		cmd.done <- err
		return
	}
	if err != nil {
		r.log.Warn(cmd.ctx, "posted command failed",
			logger.String("command", cmd.name),
			logger.Error(err),
		)
	}
}

func (r *Runner) finish(res flow.AnalysisResult) {
	if r.runCtx.Err() != nil {
		r.log.Debug(r.runCtx, "analysis abandoned", logger.Any("token", res.Token))
		return
	}
	err := r.coord.FinishAnalysis(r.runCtx, res)
	r.publish()
	if err != nil && !errors.Is(err, flow.ErrStaleAnalysis) && !flow.IsAnalysisFailed(err) {
		r.log.Error(r.runCtx, "finish analysis", logger.Error(err))
	}
}

// launch runs job beside the loop. It is only called from the loop, so the
// WaitGroup is never added to after Stop starts waiting on it.
func (r *Runner) launch(job *flow.AnalysisJob) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		res := job.Run(r.runCtx)
		select {
		case r.results <- res:
		case <-r.runCtx.Done():
			r.log.Debug(r.runCtx, "analysis abandoned", logger.Any("token", res.Token))
		}
	}()
}

func (r *Runner) publish() {
	s := r.coord.Snapshot()
	r.snapshot.Store(&s)
	metrics.UpdateCurrentScreen(s.Screen.String())
}

func (r *Runner) call(ctx context.Context, event flow.Event, m func(*flow.Coordinator, context.Context) error) error {
	return r.Do(ctx, string(event), func(ctx context.Context, c *flow.Coordinator) error {
		return m(c, ctx)
	})
}

func (r *Runner) OnboardingAdvance(ctx context.Context) error {
	return r.call(ctx, flow.EventOnboardingAdvance, (*flow.Coordinator).OnboardingAdvance)
}

func (r *Runner) OnboardingBack(ctx context.Context) error {
	return r.call(ctx, flow.EventOnboardingBack, (*flow.Coordinator).OnboardingBack)
}

func (r *Runner) OnboardingSkipToEnd(ctx context.Context) error {
	return r.call(ctx, flow.EventOnboardingSkipToEnd, (*flow.Coordinator).OnboardingSkipToEnd)
}

func (r *Runner) OnboardingComplete(ctx context.Context) error {
	return r.call(ctx, flow.EventOnboardingComplete, (*flow.Coordinator).OnboardingComplete)
}

func (r *Runner) RequestImageAcquisition(ctx context.Context) error {
	return r.call(ctx, flow.EventRequestImageAcquisition, (*flow.Coordinator).RequestImageAcquisition)
}

func (r *Runner) CancelImageAcquisition(ctx context.Context) error {
	return r.call(ctx, flow.EventCancelImageAcquisition, (*flow.Coordinator).CancelImageAcquisition)
}

func (r *Runner) BeginCameraCapture(ctx context.Context) error {
	return r.call(ctx, flow.EventBeginCameraCapture, (*flow.Coordinator).BeginCameraCapture)
}

// PhotoCaptured delivers a camera image.
func (r *Runner) PhotoCaptured(ctx context.Context, img image.Image) error {
	return r.Do(ctx, string(flow.EventPhotoCaptured), func(ctx context.Context, c *flow.Coordinator) error {
		return c.PhotoCaptured(ctx, img)
	})
}

// PhotoPicked delivers a library image.
func (r *Runner) PhotoPicked(ctx context.Context, img image.Image) error {
	return r.Do(ctx, string(flow.EventPhotoPicked), func(ctx context.Context, c *flow.Coordinator) error {
		return c.PhotoPicked(ctx, img)
	})
}

func (r *Runner) RetakeRequested(ctx context.Context) error {
	return r.call(ctx, flow.EventRetakeRequested, (*flow.Coordinator).RetakeRequested)
}

func (r *Runner) ResultsAcknowledged(ctx context.Context) error {
	return r.call(ctx, flow.EventResultsAcknowledged, (*flow.Coordinator).ResultsAcknowledged)
}

func (r *Runner) ResultsSaveRequested(ctx context.Context) error {
	return r.call(ctx, flow.EventResultsSaveRequested, (*flow.Coordinator).ResultsSaveRequested)
}

// StartAnalysis enters Analyzing and returns once the analysis is running.
// The outcome arrives later and shows up in Snapshot.
func (r *Runner) StartAnalysis(ctx context.Context) error {
	return r.Do(ctx, string(flow.EventStartAnalysis), func(ctx context.Context, c *flow.Coordinator) error {
		job, err := c.BeginAnalysis(ctx)
		if err != nil {
			return err
		}
		r.launch(job)
		return nil
	})
}

// Dispatch issues an argument-less intent by event name.
func (r *Runner) Dispatch(ctx context.Context, event flow.Event) error {
	switch event {
	case flow.EventOnboardingAdvance:
		return r.OnboardingAdvance(ctx)
	case flow.EventOnboardingBack:
		return r.OnboardingBack(ctx)
	case flow.EventOnboardingSkipToEnd:
		return r.OnboardingSkipToEnd(ctx)
	case flow.EventOnboardingComplete:
		return r.OnboardingComplete(ctx)
	case flow.EventRequestImageAcquisition:
		return r.RequestImageAcquisition(ctx)
	case flow.EventCancelImageAcquisition:
		return r.CancelImageAcquisition(ctx)
	case flow.EventBeginCameraCapture:
		return r.BeginCameraCapture(ctx)
	case flow.EventRetakeRequested:
		return r.RetakeRequested(ctx)
	case flow.EventStartAnalysis:
		return r.StartAnalysis(ctx)
	case flow.EventResultsAcknowledged:
		return r.ResultsAcknowledged(ctx)
	case flow.EventResultsSaveRequested:
		return r.ResultsSaveRequested(ctx)
	default:
		return ErrUnknownIntent
	}
}
