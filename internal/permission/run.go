package permission

import "context"

// State of a gated write.
type State int

const (
	StateIdle State = iota
	StateBlocked
	StatePending
)

func (s State) String() string {
	switch s {
	case StateBlocked:
		return "blocked"
	case StatePending:
		return "pending"
	}
	return "idle"
}

type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeFailed
	OutcomeBlocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeBlocked:
		return "blocked"
	}
	return "done"
}

// Result of one attempt. Err is ErrDenied when blocked and fn's error when
// failed. There is no retry; the caller triggers a new attempt.
type Result struct {
	Outcome Outcome
	Err     error
}

type RunOption func(*runConfig)

type runConfig struct {
	observe func(State)
}

// Observe receives every state the attempt enters after Idle.
func Observe(fn func(State)) RunOption {
	return func(c *runConfig) { c.observe = fn }
}

// Run performs fn only when action on module is allowed.
func (g *Gate) Run(ctx context.Context, module Module, action Action, fn func(context.Context) error, opts ...RunOption) Result {
	cfg := runConfig{observe: func(State) {}}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := g.Check(module, action); err != nil {
		cfg.observe(StateBlocked)
		return Result{Outcome: OutcomeBlocked, Err: err}
	}

	cfg.observe(StatePending)
	err := fn(ctx)
	cfg.observe(StateIdle)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	return Result{Outcome: OutcomeDone}
}
