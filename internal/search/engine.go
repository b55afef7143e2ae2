// Package search ranks pharmacies from a source intersection using a fixed
// chain of strategies: weighted shortest path, then hop count, then flat
// distance.
package search

import (
	"cmp"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/metrics"
)

const (
	// DefaultLimit is the number of results when a request sets none.
	DefaultLimit = 5
	// DefaultMaxHops bounds hop searches.
	DefaultMaxHops = 100
)

// Store is the set of path queries the engine runs.
type Store interface {
	QueryShortestWeightedPath(ctx context.Context, sourceID int64, limit int) ([]domain.RawPath, error)
	QueryShortestHopPath(ctx context.Context, sourceID int64, maxHops, limit int) ([]domain.RawPath, error)
	QueryFlatProximity(ctx context.Context, lat, lon float64, limit int) ([]domain.RawPath, error)
}

// State is a step of the search.
type State int

const (
	StateWeighted State = iota
	StateHops
	StateFlat
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWeighted:
		return "weighted_search"
	case StateHops:
		return "hop_search"
	case StateFlat:
		return "flat_proximity"
	default:
		return "done"
	}
}

func (s State) tier() domain.Tier {
	switch s {
	case StateWeighted:
		return domain.TierWeighted
	case StateHops:
		return domain.TierHops
	default:
		return domain.TierFlat
	}
}

// Request describes one search. SourceErr carries the reason the user could
// not be mapped onto the road network; when set, Source is ignored.
type Request struct {
	Source    int64
	SourceErr error
	Latitude  float64
	Longitude float64
	// HasGraph reports whether the session holds a usable road network.
	HasGraph bool
	Limit    int
}

// Attempt records how one state ended.
type Attempt struct {
	State State
	Count int
	Err   error
}

// Outcome is the ranked result of a search. Tier is empty when no state
// produced a list.
type Outcome struct {
	Tier     domain.Tier
	Paths    []domain.RawPath
	Attempts []Attempt
}

// Options configures an Engine.
type Options struct {
	MaxHops int
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracer  trace.Tracer
}

// Engine runs the search state machine against a Store.
type Engine struct {
	store   Store
	maxHops int
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// New returns an engine over store.
func New(store Store, opts Options) *Engine {
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/search")
	}
	return &Engine{
		store:   store,
		maxHops: opts.MaxHops,
		logger:  opts.Logger.With("component", "search"),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}
}

// afterWeighted picks the state following weighted search. Only a failure
// moves on; an empty list is a valid answer.
func afterWeighted(err error) State {
	if err != nil {
		return StateHops
	}
	return StateDone
}

// afterHops picks the state following hop search. Flat proximity is only
// used when the hop search failed and there is no road network at all.
func afterHops(err error, hasGraph bool) State {
	if err != nil && !hasGraph {
		return StateFlat
	}
	return StateDone
}

// Run executes the search. Only connection failures are returned as errors;
// once every applicable state has failed the outcome is an empty list.
func (e *Engine) Run(ctx context.Context, req Request) (Outcome, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	started := time.Now()
	defer func() { e.metrics.ObserveSearch(time.Since(started)) }()

	ctx, span := e.tracer.Start(ctx, "search.Run",
		trace.WithAttributes(
			attribute.Int64("search.source", req.Source),
			attribute.Bool("search.has_graph", req.HasGraph),
			attribute.Int("search.limit", req.Limit),
		),
	)
	defer span.End()

	var out Outcome
	state := StateWeighted
	for state != StateDone {
		paths, err := e.step(ctx, state, req)
		out.Attempts = append(out.Attempts, Attempt{State: state, Count: len(paths), Err: err})

		if err != nil && domain.IsConnection(err) {
			e.metrics.ObserveTier(string(state.tier()), "connection_error")
			e.logger.Error("graph store unreachable, search aborted", "state", state.String(), "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "graph store unreachable")
			return out, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			span.RecordError(err)
			return out, err
		}

		var next State
		switch state {
		case StateWeighted:
			next = afterWeighted(err)
		case StateHops:
			next = afterHops(err, req.HasGraph)
		default:
			next = StateDone
		}

		if err == nil {
			e.metrics.ObserveTier(string(state.tier()), "ok")
			out.Tier = state.tier()
			out.Paths = rank(paths, req.Limit)
		} else {
			e.metrics.ObserveTier(string(state.tier()), failureLabel(err))
			e.logger.Warn("search state failed",
				"state", state.String(),
				"next", next.String(),
				"kind", domain.KindOf(err),
				"error", err,
			)
		}
		e.logger.Debug("search transition", "from", state.String(), "to", next.String(), "results", len(paths))
		state = next
	}

	span.SetAttributes(attribute.String("search.tier", string(out.Tier)), attribute.Int("search.results", len(out.Paths)))
	if out.Paths == nil {
		out.Paths = []domain.RawPath{}
	}
	return out, nil
}

func (e *Engine) step(ctx context.Context, state State, req Request) ([]domain.RawPath, error) {
	ctx, span := e.tracer.Start(ctx, "search."+state.String())
	defer span.End()

	var (
		paths []domain.RawPath
		err   error
	)
	switch state {
	case StateWeighted:
		if req.SourceErr != nil {
			err = req.SourceErr
			break
		}
		paths, err = e.store.QueryShortestWeightedPath(ctx, req.Source, req.Limit)
	case StateHops:
		if req.SourceErr != nil {
			err = req.SourceErr
			break
		}
		paths, err = e.store.QueryShortestHopPath(ctx, req.Source, e.maxHops, req.Limit)
	case StateFlat:
		paths, err = e.store.QueryFlatProximity(ctx, req.Latitude, req.Longitude, req.Limit)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.results", len(paths)))
	return paths, nil
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrProcedureUnavailable):
		return "procedure_unavailable"
	case errors.Is(err, domain.ErrNoEdgeWeights):
		return "no_edge_weights"
	default:
		return string(domain.KindOf(err)) + "_error"
	}
}

// rank sorts paths by cost then name and truncates to limit.
func rank(paths []domain.RawPath, limit int) []domain.RawPath {
	out := slices.Clone(paths)
	slices.SortStableFunc(out, func(a, b domain.RawPath) int {
		if c := cmp.Compare(a.Cost, b.Cost); c != 0 {
			return c
		}
		return cmp.Compare(a.PointOfInterest.Name, b.PointOfInterest.Name)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
