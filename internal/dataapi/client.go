package dataapi

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/variantlab/decider/internal/engine"
)

// Compile-time check: the remote client is a drop-in engine.
var _ engine.Engine = (*RemoteEngine)(nil)

// RemoteEngine implements engine.Engine over a data plane connection.
// Embedders that talk to a central decider service (or a node-local
// sidecar) use this instead of an in-process engine; the decider client
// cannot tell the difference.
type RemoteEngine struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// NewRemoteEngine wraps an established connection. timeout bounds each
// RPC; zero means 500ms, generous for an in-memory evaluation service.
func NewRemoteEngine(conn grpc.ClientConnInterface, timeout time.Duration) *RemoteEngine {
	if conn == nil {
		panic("dataapi: client connection cannot be nil")
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RemoteEngine{conn: conn, timeout: timeout}
}

func (r *RemoteEngine) Choose(name string, ctx map[string]any) (engine.Decision, error) {
	req, err := chooseRequest(name, ctx, "")
	if err != nil {
		return engine.Decision{}, err
	}

	out := new(structpb.Struct)
	if err := r.invoke(methodChoose, req, out); err != nil {
		return engine.Decision{}, err
	}
	return decisionFromStruct(out), nil
}

func (r *RemoteEngine) ChooseAll(ctx map[string]any, bucketingFieldFilter string) (map[string]engine.Decision, error) {
	req, err := chooseRequest("", ctx, bucketingFieldFilter)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := r.invoke(methodChooseAll, req, out); err != nil {
		return nil, err
	}

	decisions := map[string]engine.Decision{}
	entries, _ := out.AsMap()[fieldDecisions].(map[string]any)
	for name, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if msg, failed := entry[fieldError]; failed {
			decisions[name] = engine.Decision{Err: fmt.Errorf("%s", asString(msg))}
			continue
		}
		d := engine.Decision{
			Variant:        asString(entry[fieldVariant]),
			FeatureID:      asInt(entry[fieldFeatureID]),
			FeatureVersion: asString(entry[fieldFeatureVersion]),
			FeatureName:    asString(entry[fieldFeatureName]),
		}
		if events, ok := entry[fieldEvents].([]any); ok {
			for _, e := range events {
				d.Events = append(d.Events, asString(e))
			}
		}
		decisions[name] = d
	}
	return decisions, nil
}

func (r *RemoteEngine) GetBool(name string, ctx map[string]any) (bool, error) {
	v, err := r.getValue(name, ctx, engine.TypeBoolean)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, engine.ErrTypeMismatch
	}
	return b, nil
}

func (r *RemoteEngine) GetInt(name string, ctx map[string]any) (int64, error) {
	v, err := r.getValue(name, ctx, engine.TypeInteger)
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok {
		return 0, engine.ErrTypeMismatch
	}
	return int64(n), nil
}

func (r *RemoteEngine) GetFloat(name string, ctx map[string]any) (float64, error) {
	v, err := r.getValue(name, ctx, engine.TypeFloat)
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok {
		return 0, engine.ErrTypeMismatch
	}
	return n, nil
}

func (r *RemoteEngine) GetString(name string, ctx map[string]any) (string, error) {
	v, err := r.getValue(name, ctx, engine.TypeString)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", engine.ErrTypeMismatch
	}
	return s, nil
}

func (r *RemoteEngine) GetMap(name string, ctx map[string]any) (map[string]any, error) {
	v, err := r.getValue(name, ctx, engine.TypeMap)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, engine.ErrTypeMismatch
	}
	return m, nil
}

func (r *RemoteEngine) AllValues(ctx map[string]any) (map[string]engine.DynamicValue, error) {
	reqCtx, err := contextToStruct(ctx)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(nil)
	if err != nil {
		return nil, err
	}
	req.Fields[fieldContext] = structpb.NewStructValue(reqCtx)

	out := new(structpb.Struct)
	if err := r.invoke(methodAllValues, req, out); err != nil {
		return nil, err
	}

	values := map[string]engine.DynamicValue{}
	entries, _ := out.AsMap()[fieldValues].(map[string]any)
	for name, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		values[name] = engine.DynamicValue{
			Type:  asString(entry[fieldType]),
			Value: entry[fieldValue],
		}
	}
	return values, nil
}

func (r *RemoteEngine) GetExperiment(name string) (engine.Experiment, error) {
	req, err := structpb.NewStruct(map[string]any{fieldFeatureName: name})
	if err != nil {
		return engine.Experiment{}, err
	}

	out := new(structpb.Struct)
	if err := r.invoke(methodGetExperiment, req, out); err != nil {
		return engine.Experiment{}, err
	}
	return experimentFromStruct(out), nil
}

func (r *RemoteEngine) getValue(name string, ctx map[string]any, valueType string) (any, error) {
	reqCtx, err := contextToStruct(ctx)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]any{
		fieldFeatureName: name,
		fieldValueType:   valueType,
	})
	if err != nil {
		return nil, err
	}
	req.Fields[fieldContext] = structpb.NewStructValue(reqCtx)

	out := new(structpb.Value)
	if err := r.invoke(methodGetValue, req, out); err != nil {
		return nil, err
	}
	return out.AsInterface(), nil
}

func (r *RemoteEngine) invoke(method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.conn.Invoke(ctx, method, req, resp); err != nil {
		return fromStatus(err)
	}
	return nil
}

func chooseRequest(name string, ctx map[string]any, filter string) (*structpb.Struct, error) {
	reqCtx, err := contextToStruct(ctx)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if name != "" {
		fields[fieldFeatureName] = name
	}
	if filter != "" {
		fields[fieldFilter] = filter
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	req.Fields[fieldContext] = structpb.NewStructValue(reqCtx)
	return req, nil
}

// fromStatus reverses the server's toStatus mapping so remote callers see
// the same typed errors an in-process engine would produce.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return engine.ErrNotFound
	case codes.InvalidArgument:
		// Only the engine's own mismatch message maps to the sentinel;
		// request-validation failures stay visible as what they are.
		if st.Message() == msgTypeMismatch {
			return engine.ErrTypeMismatch
		}
		return fmt.Errorf("engine rpc: %s", st.Message())
	case codes.FailedPrecondition:
		return parseBucketMismatch(st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return engine.ErrUnavailable
	default:
		return fmt.Errorf("engine rpc: %s", st.Message())
	}
}

// parseBucketMismatch recovers the requested/configured fields from the
// status message emitted by toStatus.
func parseBucketMismatch(msg string) error {
	var requested, configured string
	if _, err := fmt.Sscanf(msg, "bucket mismatch: requested=%s configured=%s", &requested, &configured); err != nil {
		return &engine.BucketMismatchError{}
	}
	return &engine.BucketMismatchError{Requested: requested, Configured: configured}
}
