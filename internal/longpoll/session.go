package longpoll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/checkpoint"
	"github.com/tbourn/go-social-backend/internal/domain"
)

var (
	// ErrCancelled is returned when the caller goes away before the session
	// resolves. Nothing is written in that case.
	ErrCancelled = errors.New("longpoll: session cancelled")

	// ErrFailed wraps collaborator failures (stream query or checkpoint store).
	ErrFailed = errors.New("longpoll: session failed")

	// ErrInvalidOptions reports an unusable interval, deadline or watch list.
	ErrInvalidOptions = errors.New("longpoll: invalid options")
)

// State is a session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateChecking
	StateWaiting
	StateDelivering
	StateTimedOut
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateWaiting:
		return "waiting"
	case StateDelivering:
		return "delivering"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Delivering may still be cancelled or fail while checkpoints are written;
// every other state missing from this table is terminal.
var transitions = map[State][]State{
	StateIdle:       {StateChecking, StateCancelled},
	StateChecking:   {StateDelivering, StateWaiting, StateTimedOut, StateCancelled, StateFailed},
	StateWaiting:    {StateChecking, StateTimedOut, StateCancelled},
	StateDelivering: {StateCancelled, StateFailed},
}

// session tracks the state of a single Run. It is owned by the Run goroutine.
type session struct {
	state State
}

// to moves the session to next and reports whether the move happened.
// Moves out of a resolved state are ignored, so the first resolution wins.
func (s *session) to(next State) bool {
	for _, allowed := range transitions[s.state] {
		if allowed == next {
			s.state = next
			return true
		}
	}
	return false
}

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Watch pairs a stream identity with the query producing its candidates.
type Watch struct {
	Identity domain.StreamIdentity
	Source   Source
}

// Options tunes a session.
type Options struct {
	Interval time.Duration // pause between checks
	Deadline time.Duration // hard bound on the session, measured from start
	Stream   string        // metrics/log label, e.g. "messages"
}

func (o Options) validate(watches []Watch) error {
	switch {
	case o.Interval <= 0:
		return fmt.Errorf("%w: interval must be > 0", ErrInvalidOptions)
	case o.Deadline <= 0:
		return fmt.Errorf("%w: deadline must be > 0", ErrInvalidOptions)
	case len(watches) == 0:
		return fmt.Errorf("%w: no streams to watch", ErrInvalidOptions)
	}
	for _, w := range watches {
		if w.Source == nil {
			return fmt.Errorf("%w: %s has no source", ErrInvalidOptions, w.Identity.Key())
		}
	}
	return nil
}

// Result is the terminal value of a session. Deliveries holds one entry per
// watch, in watch order; on timeout every entry has an empty ID list.
type Result struct {
	Outcome    Outcome
	Deliveries []Delivery
	Checks     int
}

// Found reports whether any stream delivered at least one ID.
func (r Result) Found() bool {
	for _, d := range r.Deliveries {
		if len(d.IDs) > 0 {
			return true
		}
	}
	return false
}

// Total is the number of IDs across all deliveries.
func (r Result) Total() int {
	n := 0
	for _, d := range r.Deliveries {
		n += len(d.IDs)
	}
	return n
}

// IDs returns the IDs delivered for kind, or an empty list.
func (r Result) IDs(kind domain.StreamKind) []string {
	for _, d := range r.Deliveries {
		if d.Identity.Kind == kind {
			return d.IDs
		}
	}
	return []string{}
}

// Controller runs long-poll sessions.
type Controller struct {
	clock     clock.Clock
	detector  *Detector
	formatter *Formatter
}

// NewController builds a Controller over store. A nil clk uses the wall clock.
func NewController(store checkpoint.Store, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Controller{
		clock:     clk,
		detector:  NewDetector(store),
		formatter: NewFormatter(store),
	}
}

type checkResult struct {
	detections []Detection
	err        error
}

// Run checks the watched streams immediately and then every opts.Interval
// until one of them has new data, opts.Deadline elapses, a check fails or ctx
// is done. It never outlives the deadline: a check still in flight when the
// deadline fires is abandoned and its result discarded.
func (c *Controller) Run(ctx context.Context, watches []Watch, opts Options) (Result, error) {
	if err := opts.validate(watches); err != nil {
		return Result{}, err
	}

	tr := otel.Tracer("longpoll")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("longpoll.stream", opts.Stream),
			attribute.Int("longpoll.watches", len(watches)),
			attribute.Int64("longpoll.deadline_ms", opts.Deadline.Milliseconds()),
		),
	)
	defer span.End()

	lg := zerolog.Ctx(ctx).With().Str("stream", opts.Stream).Logger()

	s := &session{state: StateIdle}
	res := Result{}
	start := c.clock.Now()
	deadlineAt := start.Add(opts.Deadline)

	sessionsInflight.Inc()
	defer func() {
		sessionsInflight.Dec()
		sessionsTotal.WithLabelValues(opts.Stream, string(res.Outcome)).Inc()
		sessionDuration.WithLabelValues(opts.Stream).Observe(c.clock.Now().Sub(start).Seconds())
		span.SetAttributes(
			attribute.String("longpoll.outcome", string(res.Outcome)),
			attribute.Int("longpoll.checks", res.Checks),
		)
		lg.Debug().
			Str("outcome", string(res.Outcome)).
			Int("checks", res.Checks).
			Dur("elapsed", c.clock.Now().Sub(start)).
			Msg("long-poll session finished")
	}()

	deadline := c.clock.NewTimer(opts.Deadline)
	defer deadline.Stop()

	// Checks run on their own goroutine so the deadline can pre-empt them.
	checkCtx, cancelChecks := context.WithCancel(ctx)
	defer cancelChecks()

	timedOut := func() (Result, error) {
		s.to(StateTimedOut)
		res.Outcome = OutcomeTimedOut
		res.Deliveries = emptyDeliveries(watches)
		return res, nil
	}
	cancelled := func() (Result, error) {
		s.to(StateCancelled)
		res.Outcome = OutcomeCancelled
		return res, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
	}
	failed := func(err error) (Result, error) {
		s.to(StateFailed)
		res.Outcome = OutcomeFailed
		res.Deliveries = nil
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("%w: %w", ErrFailed, err)
	}

	for {
		s.to(StateChecking)
		res.Checks++
		done := make(chan checkResult, 1)
		go func() {
			dets, err := c.checkAll(checkCtx, watches)
			done <- checkResult{detections: dets, err: err}
		}()

		var cr checkResult
		select {
		case cr = <-done:
		case <-deadline.Chan():
			lg.Debug().Int("check", res.Checks).Msg("deadline reached during check; result discarded")
			return timedOut()
		case <-ctx.Done():
			return cancelled()
		}

		if cr.err != nil {
			checksTotal.WithLabelValues(opts.Stream, "error").Inc()
			return failed(cr.err)
		}
		if anyNew(cr.detections) {
			checksTotal.WithLabelValues(opts.Stream, "new").Inc()
			s.to(StateDelivering)
			// All checkpoints move together or not at all, and a client that
			// left while the check ran gets nothing written.
			if ctx.Err() != nil {
				return cancelled()
			}
			if err := c.formatter.Commit(ctx, cr.detections); err != nil {
				if ctx.Err() != nil {
					return cancelled()
				}
				return failed(err)
			}
			deliveries := make([]Delivery, 0, len(cr.detections))
			for _, det := range cr.detections {
				deliveries = append(deliveries, c.formatter.Format(det))
			}
			res.Outcome = OutcomeDelivered
			res.Deliveries = deliveries
			return res, nil
		}
		checksTotal.WithLabelValues(opts.Stream, "none").Inc()
		lg.Debug().Int("check", res.Checks).Msg("nothing new")

		s.to(StateWaiting)
		interval := c.clock.NewTimer(opts.Interval)
		select {
		case <-interval.Chan():
			if !c.clock.Now().Before(deadlineAt) {
				return timedOut()
			}
		case <-deadline.Chan():
			interval.Stop()
			return timedOut()
		case <-ctx.Done():
			interval.Stop()
			return cancelled()
		}
	}
}

// checkAll evaluates every watch independently, in order.
func (c *Controller) checkAll(ctx context.Context, watches []Watch) ([]Detection, error) {
	out := make([]Detection, 0, len(watches))
	for _, w := range watches {
		det, err := c.detector.Check(ctx, w.Identity, w.Source)
		if err != nil {
			return nil, err
		}
		out = append(out, det)
	}
	return out, nil
}

func anyNew(dets []Detection) bool {
	for _, d := range dets {
		if d.IsNew {
			return true
		}
	}
	return false
}

func emptyDeliveries(watches []Watch) []Delivery {
	out := make([]Delivery, 0, len(watches))
	for _, w := range watches {
		out = append(out, Delivery{Identity: w.Identity, IDs: []string{}})
	}
	return out
}
