package envsvc

import (
	"context"
	"errors"

	"github.com/signalsfoundry/supplychain-env/core"
	"github.com/signalsfoundry/supplychain-env/internal/sim/engine"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest is returned for payloads that do not decode into the
// expected shape.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps environment and engine errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, core.ErrUnknownAgent),
		errors.Is(err, engine.ErrUnknownAgent):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidAgent),
		errors.Is(err, engine.ErrInvalidAction):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrNoTickContext):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
