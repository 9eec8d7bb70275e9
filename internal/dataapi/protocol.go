// Package dataapi implements the gRPC data plane of the decider: a thin
// RPC skin over any engine.Engine, plus the matching client that
// implements engine.Engine over a connection.
//
// The protocol is deliberately schemaless: requests and responses are
// google.protobuf.Struct / Value messages, because everything that
// crosses this boundary (contexts, variants, dynamic config values) is
// already dynamically typed. The service descriptor is hand-rolled on
// grpc.ServiceDesc so the repository carries no codegen artifacts.
package dataapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/variantlab/decider/internal/engine"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "decider.v1.DeciderService"

// Method names, as they appear in FullMethod strings.
const (
	methodChoose        = "/decider.v1.DeciderService/Choose"
	methodChooseAll     = "/decider.v1.DeciderService/ChooseAll"
	methodGetValue      = "/decider.v1.DeciderService/GetValue"
	methodAllValues     = "/decider.v1.DeciderService/AllValues"
	methodGetExperiment = "/decider.v1.DeciderService/GetExperiment"
)

// Request/response field names.
const (
	fieldFeatureName    = "feature_name"
	fieldContext        = "context"
	fieldFilter         = "bucketing_field_filter"
	fieldValueType      = "value_type"
	fieldVariant        = "variant"
	fieldFeatureID      = "feature_id"
	fieldFeatureVersion = "feature_version"
	fieldEvents         = "events"
	fieldDecisions      = "decisions"
	fieldError          = "error"
	fieldValues         = "values"
	fieldType           = "type"
	fieldValue          = "value"
	fieldID             = "id"
	fieldName           = "name"
	fieldVersion        = "version"
	fieldBucketVal      = "bucket_val"
	fieldStartTs        = "start_ts"
	fieldStopTs         = "stop_ts"
	fieldOwner          = "owner"
	fieldEmitEvent      = "emit_event"
)

// msgTypeMismatch distinguishes an engine type mismatch from a plain
// request-validation failure; both travel as codes.InvalidArgument.
const msgTypeMismatch = "value type mismatch"

// Server is the service interface behind the descriptor.
type Server interface {
	Choose(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ChooseAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetValue(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
	AllValues(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetExperiment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc wires the Server interface into a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Choose", Handler: structHandler(methodChoose, Server.Choose)},
		{MethodName: "ChooseAll", Handler: structHandler(methodChooseAll, Server.ChooseAll)},
		{MethodName: "GetValue", Handler: structHandler(methodGetValue, Server.GetValue)},
		{MethodName: "AllValues", Handler: structHandler(methodAllValues, Server.AllValues)},
		{MethodName: "GetExperiment", Handler: structHandler(methodGetExperiment, Server.GetExperiment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "decider/v1/decider.proto",
}

// structHandler builds the generated-style unary handler for one method.
func structHandler[R any](fullMethod string, call func(Server, context.Context, *structpb.Struct) (R, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Server), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(Server), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ---------------------------------------------------------------------------
// Struct codecs. Contexts, decisions and experiment metadata cross the
// wire as Structs; these helpers keep both sides honest about shapes.
// ---------------------------------------------------------------------------

func contextToStruct(ctx map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(ctx)
	if err != nil {
		return nil, fmt.Errorf("dataapi: encode context: %w", err)
	}
	return s, nil
}

func decisionToStruct(d engine.Decision) (*structpb.Struct, error) {
	events := make([]any, len(d.Events))
	for i, e := range d.Events {
		events[i] = e
	}
	return structpb.NewStruct(map[string]any{
		fieldVariant:        d.Variant,
		fieldFeatureID:      d.FeatureID,
		fieldFeatureVersion: d.FeatureVersion,
		fieldFeatureName:    d.FeatureName,
		fieldEvents:         events,
	})
}

func decisionFromStruct(s *structpb.Struct) engine.Decision {
	m := s.AsMap()
	d := engine.Decision{
		Variant:        asString(m[fieldVariant]),
		FeatureID:      asInt(m[fieldFeatureID]),
		FeatureVersion: asString(m[fieldFeatureVersion]),
		FeatureName:    asString(m[fieldFeatureName]),
	}
	if events, ok := m[fieldEvents].([]any); ok {
		d.Events = make([]string, 0, len(events))
		for _, e := range events {
			d.Events = append(d.Events, asString(e))
		}
	}
	return d
}

func experimentToStruct(exp engine.Experiment) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldID:        exp.ID,
		fieldName:      exp.Name,
		fieldVersion:   exp.Version,
		fieldBucketVal: exp.BucketVal,
		fieldStartTs:   exp.StartTs,
		fieldStopTs:    exp.StopTs,
		fieldOwner:     exp.Owner,
		fieldEmitEvent: exp.EmitEvent,
	})
}

func experimentFromStruct(s *structpb.Struct) engine.Experiment {
	m := s.AsMap()
	return engine.Experiment{
		ID:        asInt(m[fieldID]),
		Name:      asString(m[fieldName]),
		Version:   asString(m[fieldVersion]),
		BucketVal: asString(m[fieldBucketVal]),
		StartTs:   asInt(m[fieldStartTs]),
		StopTs:    asInt(m[fieldStopTs]),
		Owner:     asString(m[fieldOwner]),
		EmitEvent: asBool(m[fieldEmitEvent]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asInt converts a Struct number (always float64 on the wire) back to an
// int64.
func asInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}
