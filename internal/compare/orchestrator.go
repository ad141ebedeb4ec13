package compare

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	diffimage "visual-diff/internal/diff/image"
	"visual-diff/internal/raster"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const instrumentationName = "visual-diff/internal/compare"

var ErrAlreadyRun = errors.New("orchestrator has already run")

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

type Kind string

const (
	KindNotFound   Kind = "NotFound"
	KindDecode     Kind = "DecodeError"
	KindComparison Kind = "ComparisonError"
)

// KindOf classifies a per-pair failure.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, raster.ErrNotFound):
		return KindNotFound
	case errors.Is(err, raster.ErrDecode):
		return KindDecode
	default:
		return KindComparison
	}
}

type Omission struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
}

// Entry is the outcome of one declared pair: exactly one of Result and Omission is set.
type Entry struct {
	Pair     Pair
	Result   *diffimage.Result
	Omission *Omission
}

type Outcome struct {
	Entries []Entry
}

func (o *Outcome) Succeeded() int {
	n := 0
	for _, e := range o.Entries {
		if e.Result != nil {
			n++
		}
	}
	return n
}

func (o *Outcome) Omitted() int {
	return len(o.Entries) - o.Succeeded()
}

// ExitCode is non-zero only when no pair produced a result.
func (o *Outcome) ExitCode() int {
	if o.Succeeded() == 0 {
		return 1
	}
	return 0
}

type Comparator interface {
	Compare(ctx context.Context, baseline *raster.Raster, target *raster.Raster, key string) (*diffimage.Result, error)
}

// Orchestrator runs every declared pair once. An Orchestrator is single use.
type Orchestrator struct {
	Log         logr.Logger
	Screenshots string
	Capture     string
	Pairs       []Pair
	// Workers bounds parallel pairs; zero means min(len(Pairs), GOMAXPROCS).
	Workers    int
	Comparator Comparator
	Tracer     trace.Tracer
	Meter      metric.Meter

	state atomic.Int32
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyRun
	}
	defer o.state.Store(int32(StateDone))

	instruments, err := o.instruments()
	if err != nil {
		return nil, err
	}

	ctx, span := o.tracer().Start(ctx, "compare.Run", trace.WithAttributes(
		attribute.Int("pairs", len(o.Pairs)),
	))
	defer span.End()

	// each worker writes only its own slot, so entries stay in declared order
	entries := make([]Entry, len(o.Pairs))

	var eg errgroup.Group
	eg.SetLimit(o.workers())
	for i, pair := range o.Pairs {
		eg.Go(func() error {
			entries[i] = o.process(ctx, pair, instruments)
			return nil
		})
	}
	_ = eg.Wait()

	outcome := &Outcome{Entries: entries}
	span.SetAttributes(
		attribute.Int("succeeded", outcome.Succeeded()),
		attribute.Int("omitted", outcome.Omitted()),
	)
	o.Log.Info("comparisons finished", "succeeded", outcome.Succeeded(), "omitted", outcome.Omitted())

	return outcome, nil
}

func (o *Orchestrator) process(ctx context.Context, pair Pair, instruments *instruments) Entry {
	ctx, span := o.tracer().Start(ctx, "compare.Pair", trace.WithAttributes(
		attribute.String("label", pair.Label),
		attribute.String("baseline", pair.Baseline),
		attribute.String("target", pair.Target),
	))
	defer span.End()

	log := o.Log.WithValues("pair", pair.Label)
	now := time.Now()

	result, err := o.compare(ctx, log, pair)
	elapsed := time.Since(now).Microseconds()

	if err != nil {
		kind := KindOf(err)
		log.Error(err, "comparison skipped", "kind", kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		instruments.record(ctx, elapsed, "omitted", string(kind))
		return Entry{
			Pair: pair,
			Omission: &Omission{
				Kind:   kind,
				Reason: err.Error(),
			},
		}
	}

	status := Classify(result.Percentage)
	log.Info("comparison finished",
		"differingPixels", result.DiffPixels,
		"percentage", result.Percentage,
		"status", status,
		"diff", result.DiffURL,
	)
	span.SetAttributes(attribute.Float64("percentage", result.Percentage))
	instruments.record(ctx, elapsed, "compared", string(status))

	return Entry{
		Pair:   pair,
		Result: result,
	}
}

func (o *Orchestrator) compare(ctx context.Context, log logr.Logger, pair Pair) (*diffimage.Result, error) {
	baselinePath := ScreenshotPath(o.Screenshots, pair.Baseline, o.Capture)
	targetPath := ScreenshotPath(o.Screenshots, pair.Target, o.Capture)
	log.V(1).Info("loading screenshots", "baseline", baselinePath, "target", targetPath)

	baseline, err := raster.Load(baselinePath)
	if err != nil {
		return nil, xerrors.Errorf("failed to load baseline screenshot: %w", err)
	}

	target, err := raster.Load(targetPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to load target screenshot: %w", err)
	}

	normalizer := &raster.Normalizer{Log: log}
	baseline, target, _ = normalizer.Normalize(baseline, target)

	return o.Comparator.Compare(ctx, baseline, target, pair.DiffKey())
}

func (o *Orchestrator) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	return max(1, min(len(o.Pairs), runtime.GOMAXPROCS(0)))
}

func (o *Orchestrator) tracer() trace.Tracer {
	if o.Tracer != nil {
		return o.Tracer
	}
	return otel.Tracer(instrumentationName)
}

type instruments struct {
	comparisonsTotal               metric.Int64Counter
	comparisonDurationMicroSeconds metric.Int64Histogram
}

func (o *Orchestrator) instruments() (*instruments, error) {
	meter := o.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	comparisonsTotal, err := meter.Int64Counter("comparisons_total")
	if err != nil {
		return nil, xerrors.Errorf("failed to create counter: %w", err)
	}
	comparisonDurationMicroSeconds, err := meter.Int64Histogram("comparison_duration_micro_seconds")
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}

	return &instruments{
		comparisonsTotal:               comparisonsTotal,
		comparisonDurationMicroSeconds: comparisonDurationMicroSeconds,
	}, nil
}

func (i *instruments) record(ctx context.Context, elapsedMicroSeconds int64, outcome string, status string) {
	attributes := metric.WithAttributes(
		attribute.Key("outcome").String(outcome),
		attribute.Key("status").String(status),
	)
	i.comparisonsTotal.Add(ctx, 1, attributes)
	i.comparisonDurationMicroSeconds.Record(ctx, elapsedMicroSeconds, attributes)
}
