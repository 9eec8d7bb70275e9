package dataapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maypok86/otter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/variantlab/decider/internal/engine"
	"github.com/variantlab/decider/internal/logger"
	"github.com/variantlab/decider/internal/observability"
)

// Compile-time check that API satisfies the service interface.
var _ Server = (*API)(nil)

// API serves the decider data plane over any engine.Engine. Experiment
// metadata lookups run through an L1 TTL cache: metadata only changes on
// snapshot reload, so a short TTL bounds staleness while absorbing the
// hot GetExperiment path.
type API struct {
	eng  engine.Engine
	meta otter.Cache[string, engine.Experiment]
	log  *slog.Logger
}

// NewAPI creates the data plane service. cacheCapacity and cacheTTL tune
// the metadata cache.
func NewAPI(eng engine.Engine, cacheCapacity int, cacheTTL time.Duration, log *slog.Logger) (*API, error) {
	if eng == nil {
		panic("dataapi: engine cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	meta, err := otter.MustBuilder[string, engine.Experiment](cacheCapacity).
		WithTTL(cacheTTL).
		Build()
	if err != nil {
		return nil, err
	}

	return &API{eng: eng, meta: meta, log: log}, nil
}

// Register connects this implementation to the grpc.Server engine.
func (a *API) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&ServiceDesc, a)
}

// Close releases the metadata cache's background resources.
func (a *API) Close() {
	a.meta.Close()
}

// Choose buckets one experiment for the supplied context.
func (a *API) Choose(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := logger.FromContext(ctx)

	name := asString(req.AsMap()[fieldFeatureName])
	if name == "" {
		log.Warn("bad request: missing feature_name")
		return nil, status.Error(codes.InvalidArgument, "feature_name is required")
	}

	decision, err := a.eng.Choose(name, requestContext(req))
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := decisionToStruct(decision)
	if err != nil {
		log.Error("failed to encode decision", slog.String("error", err.Error()))
		return nil, status.Error(codes.Internal, "failed to encode decision")
	}
	return out, nil
}

// ChooseAll buckets every experiment, optionally filtered by bucketing
// field. Per-experiment failures travel inline as {"error": ...} entries
// so one bad experiment never fails the batch.
func (a *API) ChooseAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := logger.FromContext(ctx)

	m := req.AsMap()
	decisions, err := a.eng.ChooseAll(requestContext(req), asString(m[fieldFilter]))
	if err != nil {
		return nil, toStatus(err)
	}

	entries := make(map[string]any, len(decisions))
	for name, d := range decisions {
		if d.Err != nil {
			entries[name] = map[string]any{fieldError: d.Err.Error()}
			continue
		}
		events := make([]any, len(d.Events))
		for i, e := range d.Events {
			events[i] = e
		}
		entries[name] = map[string]any{
			fieldVariant:        d.Variant,
			fieldFeatureID:      d.FeatureID,
			fieldFeatureVersion: d.FeatureVersion,
			fieldFeatureName:    d.FeatureName,
			fieldEvents:         events,
		}
	}

	out, err := structpb.NewStruct(map[string]any{fieldDecisions: entries})
	if err != nil {
		log.Error("failed to encode decisions", slog.String("error", err.Error()))
		return nil, status.Error(codes.Internal, "failed to encode decisions")
	}
	return out, nil
}

// GetValue evaluates one dynamic config with the requested type.
func (a *API) GetValue(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	m := req.AsMap()
	name := asString(m[fieldFeatureName])
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "feature_name is required")
	}

	reqCtx := requestContext(req)

	var (
		value any
		err   error
	)
	switch vt := asString(m[fieldValueType]); vt {
	case engine.TypeBoolean:
		value, err = a.eng.GetBool(name, reqCtx)
	case engine.TypeInteger:
		value, err = a.eng.GetInt(name, reqCtx)
	case engine.TypeFloat:
		value, err = a.eng.GetFloat(name, reqCtx)
	case engine.TypeString:
		value, err = a.eng.GetString(name, reqCtx)
	case engine.TypeMap:
		value, err = a.eng.GetMap(name, reqCtx)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown value_type %q", vt)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := structpb.NewValue(value)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode value")
	}
	return out, nil
}

// AllValues enumerates every active dynamic config. Entries that failed
// evaluation keep their type tag and carry a null value.
func (a *API) AllValues(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := logger.FromContext(ctx)

	values, err := a.eng.AllValues(requestContext(req))
	if err != nil {
		return nil, toStatus(err)
	}

	entries := make(map[string]any, len(values))
	for name, dv := range values {
		entries[name] = map[string]any{
			fieldType:  dv.Type,
			fieldValue: dv.Value,
		}
	}

	out, err := structpb.NewStruct(map[string]any{fieldValues: entries})
	if err != nil {
		log.Error("failed to encode values", slog.String("error", err.Error()))
		return nil, status.Error(codes.Internal, "failed to encode values")
	}
	return out, nil
}

// GetExperiment resolves experiment metadata through the L1 cache.
func (a *API) GetExperiment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := asString(req.AsMap()[fieldFeatureName])
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "feature_name is required")
	}

	exp, found := a.meta.Get(name)
	if found {
		observability.MetadataCacheHits.Inc()
	} else {
		observability.MetadataCacheMisses.Inc()

		var err error
		exp, err = a.eng.GetExperiment(name)
		if err != nil {
			return nil, toStatus(err)
		}
		a.meta.Set(name, exp)
	}

	out, err := experimentToStruct(exp)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode experiment")
	}
	return out, nil
}

// requestContext decodes the flat targeting context from a request.
func requestContext(req *structpb.Struct) map[string]any {
	if f, ok := req.Fields[fieldContext]; ok {
		if s := f.GetStructValue(); s != nil {
			return s.AsMap()
		}
	}
	return map[string]any{}
}

// toStatus maps the engine error taxonomy onto gRPC status codes. The
// client side reverses this mapping, so both ends see the same typed
// errors.
func toStatus(err error) error {
	var mismatch *engine.BucketMismatchError
	switch {
	case engine.IsNotFound(err):
		return status.Error(codes.NotFound, "feature not found")
	case errors.Is(err, engine.ErrTypeMismatch):
		return status.Error(codes.InvalidArgument, msgTypeMismatch)
	case errors.As(err, &mismatch):
		return status.Errorf(codes.FailedPrecondition,
			"bucket mismatch: requested=%s configured=%s", mismatch.Requested, mismatch.Configured)
	case errors.Is(err, engine.ErrUnavailable):
		return status.Error(codes.Unavailable, "engine unavailable")
	default:
		return status.Error(codes.Internal, "evaluation failed")
	}
}

// MetricsInterceptor records request durations and terminal codes for
// every data plane RPC.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observability.DataPlaneReqDuration.
			WithLabelValues(info.FullMethod, status.Code(err).String()).
			Observe(time.Since(start).Seconds())
		return resp, err
	}
}
