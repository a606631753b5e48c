package envsvc

import (
	"context"
	"fmt"
	"strconv"

	"github.com/signalsfoundry/supplychain-env/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified method names of scenv.v1.EnvService.
const (
	ServiceName             = "scenv.v1.EnvService"
	GetLayoutFullMethodName = "/" + ServiceName + "/GetLayout"
	GetStateFullMethodName  = "/" + ServiceName + "/GetState"
	GetRewardFullMethodName = "/" + ServiceName + "/GetReward"
	StepFullMethodName      = "/" + ServiceName + "/Step"
	ResetFullMethodName     = "/" + ServiceName + "/Reset"
)

// EnvServiceServer is the server API of scenv.v1.EnvService. Payloads are
// well-known Struct messages so clients in any language can use the
// service without generated stubs.
type EnvServiceServer interface {
	GetLayout(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetReward(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// EnvServiceDesc describes scenv.v1.EnvService for grpc.Server.
var EnvServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EnvServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetLayout", Handler: emptyHandler(GetLayoutFullMethodName, EnvServiceServer.GetLayout)},
		{MethodName: "GetState", Handler: emptyHandler(GetStateFullMethodName, EnvServiceServer.GetState)},
		{MethodName: "GetReward", Handler: emptyHandler(GetRewardFullMethodName, EnvServiceServer.GetReward)},
		{MethodName: "Step", Handler: structHandler(StepFullMethodName, EnvServiceServer.Step)},
		{MethodName: "Reset", Handler: structHandler(ResetFullMethodName, EnvServiceServer.Reset)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scenv/v1/env.proto",
}

// RegisterEnvServiceServer registers srv with s.
func RegisterEnvServiceServer(s grpc.ServiceRegistrar, srv EnvServiceServer) {
	s.RegisterService(&EnvServiceDesc, srv)
}

func emptyHandler(fullMethod string, call func(EnvServiceServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EnvServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EnvServiceServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func structHandler(fullMethod string, call func(EnvServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EnvServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EnvServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Service implements EnvServiceServer over a Session.
type Service struct {
	session *Session
	log     logging.Logger
}

// NewService constructs the env service.
func NewService(session *Session, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{session: session, log: log}
}

// GetLayout describes the observation vector and the agent list.
func (s *Service) GetLayout(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	env := s.session.Env()

	fields := make([]any, 0, len(env.Layout()))
	for _, f := range env.Layout() {
		fields = append(fields, map[string]any{
			"name":      f.Name,
			"offset":    f.Offset,
			"width":     f.Width,
			"normalize": f.Normalize,
		})
	}

	agents := make([]any, 0, len(env.Agents()))
	for _, a := range env.Agents() {
		entry := map[string]any{
			"id":          a.ID,
			"facility_id": a.FacilityID,
			"agent_type":  a.AgentType,
			"is_facility": a.IsFacility,
		}
		if a.Sku != nil {
			entry["sku_id"] = a.Sku.ID
		}
		agents = append(agents, entry)
	}

	types := make([]any, 0)
	for _, t := range env.Topology().AgentTypes() {
		types = append(types, t)
	}

	return toStruct(map[string]any{
		"state_width": env.StateWidth(),
		"fields":      fields,
		"agents":      agents,
		"agent_types": types,
		"episode_id":  s.session.EpisodeID(),
	})
}

// GetState returns both role views of every agent's observation.
func (s *Service) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	tick, st, err := s.session.State(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(map[string]any{
		"tick":     tick,
		"consumer": vectorsToAny(st.Consumer),
		"producer": vectorsToAny(st.Producer),
	})
}

// GetReward returns both role views of the current tick's rewards.
func (s *Service) GetReward(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	tick, r, err := s.session.Reward(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(map[string]any{
		"tick":     tick,
		"consumer": valuesToAny(r.Consumer),
		"producer": valuesToAny(r.Producer),
	})
}

// Step applies {"actions": {"<agent id>": value}} and advances one tick.
func (s *Service) Step(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actions, err := decodeActions(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	m, err := s.session.Step(ctx, actions)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(map[string]any{
		"tick":         m.Tick,
		"step_rewards": valuesToAny(m.StepRewards),
	})
}

// Reset restarts the episode. An optional "seed" number seeds demand.
func (s *Service) Reset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var seed int64
	if v, ok := req.GetFields()["seed"]; ok {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, ToStatusError(fmt.Errorf("%w: seed must be a number", ErrInvalidRequest))
		}
		seed = int64(n.NumberValue)
	}
	id, err := s.session.Reset(ctx, seed)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(map[string]any{"tick": 0, "episode_id": id})
}

func decodeActions(req *structpb.Struct) (map[int]float64, error) {
	raw, ok := req.GetFields()["actions"]
	if !ok {
		return map[int]float64{}, nil
	}
	obj := raw.GetStructValue()
	if obj == nil {
		return nil, fmt.Errorf("%w: actions must be an object", ErrInvalidRequest)
	}
	out := make(map[int]float64, len(obj.GetFields()))
	for key, v := range obj.GetFields() {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: agent id %q", ErrInvalidRequest, key)
		}
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: action for agent %d must be a number", ErrInvalidRequest, id)
		}
		out[id] = n.NumberValue
	}
	return out, nil
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("encode response: %w", err))
	}
	return st, nil
}

func vectorsToAny(in map[int][]float64) map[string]any {
	out := make(map[string]any, len(in))
	for id, vec := range in {
		vals := make([]any, len(vec))
		for i, v := range vec {
			vals[i] = v
		}
		out[strconv.Itoa(id)] = vals
	}
	return out
}

func valuesToAny(in map[int]float64) map[string]any {
	out := make(map[string]any, len(in))
	for id, v := range in {
		out[strconv.Itoa(id)] = v
	}
	return out
}
