package envsvc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/supplychain-env/core"
	"github.com/signalsfoundry/supplychain-env/internal/sim/engine"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "unknown agent", err: fmt.Errorf("translate: %w", core.ErrUnknownAgent), code: codes.NotFound},
		{name: "engine unknown agent", err: engine.ErrUnknownAgent, code: codes.NotFound},
		{name: "invalid action", err: fmt.Errorf("%w: bad source", engine.ErrInvalidAction), code: codes.InvalidArgument},
		{name: "invalid request", err: ErrInvalidRequest, code: codes.InvalidArgument},
		{name: "no tick context", err: core.ErrNoTickContext, code: codes.FailedPrecondition},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ToStatusError(%v) = nil, want error", tc.err)
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}
