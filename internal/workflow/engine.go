package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/panics"
)

// Status is the state of one engine run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// defaultFinalMessage is sent when a run ends without a publish result.
const defaultFinalMessage = "Workflow completed."

// Result is the outcome of Engine.Run.
type Result struct {
	State   State
	Status  Status
	Missing []string
}

// Observer is notified of step and run completion. Implementations must be
// safe for concurrent use.
type Observer interface {
	StepCompleted(step string, elapsed time.Duration, err error)
	RunCompleted(status Status)
}

// Engine walks a compiled graph. One Engine serves every session.
type Engine struct {
	graph    *Graph
	observer Observer
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithObserver attaches o to every run.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine over g.
func NewEngine(g *Graph, opts ...EngineOption) *Engine {
	e := &Engine{graph: g, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the compiled graph the engine walks.
func (e *Engine) Graph() *Graph { return e.graph }

// Run executes steps from entry until a terminal is reached. An empty entry
// starts at the graph entry. Step failures are reported through sink and do
// not fail the run: a failed step emits an error event and still produces an
// update event, with an empty patch. The returned error is non-nil only for a
// failed run.
func (e *Engine) Run(ctx context.Context, state State, sink Sink, entry string) (res Result, err error) {
	if sink == nil {
		sink = Discard
	}
	if entry == "" {
		entry = e.graph.Entry()
	}
	res = Result{State: state, Status: StatusPending}
	defer func() {
		if e.observer != nil {
			e.observer.RunCompleted(res.Status)
		}
	}()

	if err := state.Validate(); err != nil {
		res.Status = StatusFailed
		return res, err
	}
	if _, ok := e.graph.Step(entry); !ok {
		res.Status = StatusFailed
		return res, fmt.Errorf("%w: %q", ErrUnknownStep, entry)
	}

	log := e.logger.With("client_id", state.ClientID)
	log.Info("Workflow run started", "entry", entry)
	res.Status = StatusRunning

	current := entry
	for {
		switch current {
		case Pause:
			res.Status = StatusPaused
			res.Missing = append([]string{}, res.State.MissingInfo...)
			log.Info("Workflow paused for input", "missing", res.Missing)
			return res, nil
		case End:
			res.Status = StatusCompleted
			msg := defaultFinalMessage
			if res.State.PostResult != nil && res.State.PostResult.Message != "" {
				msg = res.State.PostResult.Message
			}
			e.emit(ctx, log, sink, FinalEvent(msg))
			log.Info("Workflow completed")
			return res, nil
		}

		if err := ctx.Err(); err != nil {
			res.Status = StatusFailed
			log.Info("Workflow cancelled", "before_step", current)
			return res, fmt.Errorf("run cancelled before %s: %w", current, err)
		}

		step, ok := e.graph.Step(current)
		if !ok {
			res.Status = StatusFailed
			return res, fmt.Errorf("%w: %q", ErrUnknownStep, current)
		}

		patch := e.invoke(ctx, log, sink, step, res.State)
		res.State = res.State.Apply(patch)
		e.emit(ctx, log, sink, UpdateEvent(current, patch))

		next, err := e.graph.Next(current, res.State)
		if err != nil {
			res.Status = StatusFailed
			return res, err
		}
		current = next
	}
}

// invoke runs one step, converting an error or panic into an error event
// and an empty patch.
func (e *Engine) invoke(ctx context.Context, log *slog.Logger, sink Sink, step Step, s State) Patch {
	var (
		patch Patch
		err   error
		pc    panics.Catcher
	)
	started := time.Now()
	pc.Try(func() {
		patch, err = step.Run(ctx, s.Clone())
	})
	if rec := pc.Recovered(); rec != nil {
		err = fmt.Errorf("step %s panicked: %w", step.Name(), rec.AsError())
	}
	if e.observer != nil {
		e.observer.StepCompleted(step.Name(), time.Since(started), err)
	}
	if err != nil {
		log.Error("Step failed", "step", step.Name(), "error", err)
		e.emit(ctx, log, sink, ErrorEvent(fmt.Sprintf("%s failed: %v", step.Name(), err)))
		return Patch{}
	}
	log.Debug("Step completed", "step", step.Name(), "elapsed", time.Since(started))
	return patch
}

func (e *Engine) emit(ctx context.Context, log *slog.Logger, sink Sink, ev Event) {
	if err := sink.Emit(ctx, ev); err != nil {
		log.Debug("Failed to deliver event", "type", ev.Type, "step", ev.Step, "error", err)
	}
}
