package envsvc

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed wrapper over scenv.v1.EnvService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Layout is the decoded GetLayout response.
type Layout struct {
	StateWidth int
	EpisodeID  string
	AgentIDs   []int
	Fields     []FieldInfo
}

// FieldInfo locates one observation field in the flat vector.
type FieldInfo struct {
	Name   string
	Offset int
	Width  int
}

// Observation is one tick of serialized state.
type Observation struct {
	Tick     int
	Consumer map[int][]float64
	Producer map[int][]float64
}

// Reward is one tick of rewards.
type Reward struct {
	Tick     int
	Consumer map[int]float64
	Producer map[int]float64
}

func (c *Client) call(ctx context.Context, method string, in any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Layout fetches the observation layout and agent list.
func (c *Client) Layout(ctx context.Context) (*Layout, error) {
	out, err := c.call(ctx, GetLayoutFullMethodName, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	l := &Layout{
		StateWidth: int(f["state_width"].GetNumberValue()),
		EpisodeID:  f["episode_id"].GetStringValue(),
	}
	for _, v := range f["agents"].GetListValue().GetValues() {
		l.AgentIDs = append(l.AgentIDs, int(v.GetStructValue().GetFields()["id"].GetNumberValue()))
	}
	for _, v := range f["fields"].GetListValue().GetValues() {
		ff := v.GetStructValue().GetFields()
		l.Fields = append(l.Fields, FieldInfo{
			Name:   ff["name"].GetStringValue(),
			Offset: int(ff["offset"].GetNumberValue()),
			Width:  int(ff["width"].GetNumberValue()),
		})
	}
	return l, nil
}

// State fetches the current observation.
func (c *Client) State(ctx context.Context) (*Observation, error) {
	out, err := c.call(ctx, GetStateFullMethodName, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	consumer, err := decodeVectors(f["consumer"].GetStructValue())
	if err != nil {
		return nil, err
	}
	producer, err := decodeVectors(f["producer"].GetStructValue())
	if err != nil {
		return nil, err
	}
	return &Observation{
		Tick:     int(f["tick"].GetNumberValue()),
		Consumer: consumer,
		Producer: producer,
	}, nil
}

// Reward fetches the current tick's rewards.
func (c *Client) Reward(ctx context.Context) (*Reward, error) {
	out, err := c.call(ctx, GetRewardFullMethodName, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	consumer, err := decodeValues(f["consumer"].GetStructValue())
	if err != nil {
		return nil, err
	}
	producer, err := decodeValues(f["producer"].GetStructValue())
	if err != nil {
		return nil, err
	}
	return &Reward{Tick: int(f["tick"].GetNumberValue()), Consumer: consumer, Producer: producer}, nil
}

// Step sends flat actions and returns the new tick.
func (c *Client) Step(ctx context.Context, actions map[int]float64) (int, error) {
	payload := make(map[string]any, len(actions))
	for id, v := range actions {
		payload[strconv.Itoa(id)] = v
	}
	in, err := structpb.NewStruct(map[string]any{"actions": payload})
	if err != nil {
		return 0, fmt.Errorf("encode actions: %w", err)
	}
	out, err := c.call(ctx, StepFullMethodName, in)
	if err != nil {
		return 0, err
	}
	return int(out.GetFields()["tick"].GetNumberValue()), nil
}

// Reset restarts the episode and returns the new episode id.
func (c *Client) Reset(ctx context.Context, seed int64) (string, error) {
	in, err := structpb.NewStruct(map[string]any{"seed": seed})
	if err != nil {
		return "", err
	}
	out, err := c.call(ctx, ResetFullMethodName, in)
	if err != nil {
		return "", err
	}
	return out.GetFields()["episode_id"].GetStringValue(), nil
}

func decodeVectors(st *structpb.Struct) (map[int][]float64, error) {
	out := make(map[int][]float64, len(st.GetFields()))
	for key, v := range st.GetFields() {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: agent id %q", ErrInvalidRequest, key)
		}
		vals := v.GetListValue().GetValues()
		vec := make([]float64, len(vals))
		for i, x := range vals {
			vec[i] = x.GetNumberValue()
		}
		out[id] = vec
	}
	return out, nil
}

func decodeValues(st *structpb.Struct) (map[int]float64, error) {
	out := make(map[int]float64, len(st.GetFields()))
	for key, v := range st.GetFields() {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: agent id %q", ErrInvalidRequest, key)
		}
		out[id] = v.GetNumberValue()
	}
	return out, nil
}
