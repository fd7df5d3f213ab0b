package scenario

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/resultnav"
	"pkt.systems/resultnav/internal/bundlestore"
	"pkt.systems/resultnav/internal/clock"
	"pkt.systems/resultnav/internal/host"
	"pkt.systems/resultnav/internal/loggingutil"
	"pkt.systems/resultnav/internal/sample"
)

// Config configures Run.
type Config struct {
	Logger pslog.Logger
	// Store keeps tombstoned bundles. Nil uses process memory per run.
	Store bundlestore.Store
	// PendingMaxAge is passed to the navigator; zero disables SweepPending.
	PendingMaxAge time.Duration
	// Start is the scenario clock's initial time. Zero uses time.Now.
	Start time.Time
}

// Result is the outcome of one run.
type Result struct {
	Name       string
	Transcript []string
	Pending    []resultnav.PendingInfo
	Stats      resultnav.Stats
	// Now is the scenario clock when the run ended.
	Now time.Time
}

// StepError reports the step that failed.
type StepError struct {
	Scenario string
	Step     int
	Op       string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("scenario %s: step %d (%s): %v", e.Scenario, e.Step, e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type requester interface {
	Request(ctx context.Context, param any) error
}

type publisher interface {
	Publish(ctx context.Context) error
}

type texter interface {
	SetText(text string)
}

type fielder interface {
	Fields() map[string]string
}

type runner struct {
	host    *host.Host
	nav     *resultnav.Navigator
	clock   *clock.Manual
	logger  pslog.Logger
	aliases map[string]string
	lines   []string
}

// Run replays sc on a fresh host and navigator wired with the sample units.
// It stops at the first failing step and returns a *StepError alongside the
// partial result.
func Run(ctx context.Context, sc Scenario, cfg Config) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	start := cfg.Start
	if start.IsZero() {
		start = time.Now()
	}
	maxAge := cfg.PendingMaxAge
	if sc.PendingMaxAge > 0 {
		maxAge = time.Duration(sc.PendingMaxAge)
	}
	logger := loggingutil.WithSubsystem(cfg.Logger, "resultnav", "scenario")
	clk := clock.NewManual(start)
	h := host.New(host.Config{Store: cfg.Store, Logger: cfg.Logger})
	nav, err := resultnav.New(resultnav.Config{
		Presenter:     h,
		Logger:        cfg.Logger,
		Clock:         clk,
		PendingMaxAge: maxAge,
	})
	if err != nil {
		return nil, err
	}
	defer nav.Shutdown()
	h.Attach(nav)
	sample.Register(h)

	r := &runner{
		host:    h,
		nav:     nav,
		clock:   clk,
		logger:  logger.With("scenario", sc.Name),
		aliases: make(map[string]string),
	}
	r.logger.Info("scenario.run.start", "steps", len(sc.Steps))
	var runErr error
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		r.logger.Debug("scenario.step", "index", i+1, "op", step.Op, "unit", step.Unit)
		if err := r.apply(ctx, step); err != nil {
			runErr = &StepError{Scenario: sc.Name, Step: i + 1, Op: step.Op, Err: err}
			r.printf("! step %d %s: %v", i+1, step.Op, err)
			break
		}
	}
	result := &Result{
		Name:       sc.Name,
		Transcript: r.lines,
		Pending:    nav.Pending(),
		Stats:      nav.Stats(),
		Now:        clk.Now(),
	}
	if runErr != nil {
		r.logger.Warn("scenario.run.failed", "error", runErr)
		return result, runErr
	}
	r.logger.Info("scenario.run.passed", "pending", result.Stats.Pending, "registered", result.Stats.Registered)
	return result, nil
}

func (r *runner) printf(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *runner) apply(ctx context.Context, step Step) error {
	switch step.Op {
	case OpOpen:
		id, err := r.host.Open(ctx, step.Kind, param(step.Text))
		if err != nil {
			return err
		}
		r.aliases[step.As] = id
		r.printf("open %s as %s", step.Kind, step.As)
	case OpRequest:
		unit, err := r.live(step.Unit)
		if err != nil {
			return err
		}
		req, ok := unit.(requester)
		if !ok {
			return fmt.Errorf("%s (%T) cannot request results", step.Unit, unit)
		}
		if err := req.Request(ctx, param(step.Text)); err != nil {
			return err
		}
		top, ok := r.host.Top()
		if !ok {
			return fmt.Errorf("no frame after request")
		}
		r.aliases[step.As] = top.ID
		r.printf("%s requests %s as %s", step.Unit, top.Kind, step.As)
	case OpSet:
		unit, err := r.live(step.Unit)
		if err != nil {
			return err
		}
		t, ok := unit.(texter)
		if !ok {
			return fmt.Errorf("%s (%T) has no text", step.Unit, unit)
		}
		t.SetText(step.Text)
		r.printf("%s text = %q", step.Unit, step.Text)
	case OpReply:
		unit, err := r.live(step.Unit)
		if err != nil {
			return err
		}
		p, ok := unit.(publisher)
		if !ok {
			return fmt.Errorf("%s (%T) cannot reply", step.Unit, unit)
		}
		if err := p.Publish(ctx); err != nil {
			return err
		}
		r.printf("%s replies", step.Unit)
	case OpBack:
		info, err := r.host.Back(ctx)
		if err != nil {
			return err
		}
		r.printf("back closes %s", r.aliasOf(info.ID))
	case OpTombstone:
		id, err := r.frame(step.Unit)
		if err != nil {
			return err
		}
		if err := r.host.Tombstone(ctx, id); err != nil {
			return err
		}
		r.printf("%s tombstoned", step.Unit)
	case OpRestore:
		id, err := r.frame(step.Unit)
		if err != nil {
			return err
		}
		if _, err := r.host.Restore(ctx, id); err != nil {
			return err
		}
		r.printf("%s restored", step.Unit)
	case OpExpect:
		return r.expect(step)
	case OpExpectPending:
		if got := r.nav.Stats().Pending; got != *step.Count {
			return fmt.Errorf("expected %d pending, got %d", *step.Count, got)
		}
		r.printf("ok pending = %d", *step.Count)
	case OpExpectFrames:
		if got := len(r.host.Frames()); got != *step.Count {
			return fmt.Errorf("expected %d frames, got %d", *step.Count, got)
		}
		r.printf("ok frames = %d", *step.Count)
	case OpWait:
		r.clock.Advance(time.Duration(step.Duration))
		r.printf("wait %s", time.Duration(step.Duration))
	case OpSweep:
		evicted := r.nav.SweepPending(ctx)
		r.printf("sweep evicted %d", len(evicted))
	case OpGC:
		runtime.GC()
		purged := r.nav.SweepRegistry()
		r.printf("gc purged %d", purged)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func (r *runner) expect(step Step) error {
	unit, err := r.live(step.Unit)
	if err != nil {
		return err
	}
	// "waiting" reports whether the unit has an outstanding child transaction.
	if step.Field == "waiting" {
		req, ok := unit.(resultnav.Requester)
		if !ok {
			return fmt.Errorf("%s (%T) is not a requester", step.Unit, unit)
		}
		return r.compare(step, strconv.FormatBool(req.RequesterTransactionID() != ""))
	}
	f, ok := unit.(fielder)
	if !ok {
		return fmt.Errorf("%s (%T) exposes no fields", step.Unit, unit)
	}
	got, ok := f.Fields()[step.Field]
	if !ok {
		return fmt.Errorf("%s has no field %q", step.Unit, step.Field)
	}
	return r.compare(step, got)
}

func (r *runner) compare(step Step, got string) error {
	if got != step.Equals {
		return fmt.Errorf("expected %s.%s = %q, got %q", step.Unit, step.Field, step.Equals, got)
	}
	r.printf("ok %s.%s = %q", step.Unit, step.Field, got)
	return nil
}

func (r *runner) frame(alias string) (string, error) {
	id, ok := r.aliases[alias]
	if !ok {
		return "", fmt.Errorf("unknown unit %q", alias)
	}
	if _, ok := r.host.Find(id); !ok {
		return "", fmt.Errorf("%s is no longer on the stack", alias)
	}
	return id, nil
}

func (r *runner) live(alias string) (any, error) {
	id, err := r.frame(alias)
	if err != nil {
		return nil, err
	}
	info, _ := r.host.Find(id)
	if info.Tombstoned {
		return nil, fmt.Errorf("%s is tombstoned", alias)
	}
	return info.Unit, nil
}

func (r *runner) aliasOf(frameID string) string {
	for alias, id := range r.aliases {
		if id == frameID {
			return alias
		}
	}
	return frameID
}

func param(text string) any {
	if text == "" {
		return nil
	}
	return text
}
