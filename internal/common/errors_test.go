package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      string
		retryable bool
	}{
		{"nil", nil, "", false},
		{"config", ConfigurationError("bad overlap"), CodeConfiguration, false},
		{"wrapped oom", fmt.Errorf("attempt 1: %w", ResourceExhaustedError("cuda", nil)), CodeResourceExhausted, true},
		{"transport", TransportError("dial", errors.New("refused")), CodeTransport, true},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), CodeTimeout, true},
		{"content", ContentError("no json", nil), CodeContent, false},
		{"isolation", IsolationUnavailableError("strict", nil), CodeIsolationUnavailable, false},
		{"not found", fmt.Errorf("lookup: %w", ErrNotFound), CodeNotFound, false},
		{"plain", errors.New("boom"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestToStatus(t *testing.T) {
	assert.Equal(t, codes.InvalidArgument, status.Code(ToStatus(ConfigurationError("x"))))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(ToStatus(TimeoutError("x", nil))))
	assert.Equal(t, codes.Unavailable, status.Code(ToStatus(TransportError("x", nil))))
	assert.Equal(t, codes.NotFound, status.Code(ToStatus(ErrNotFound)))
	assert.Equal(t, codes.Internal, status.Code(ToStatus(errors.New("x"))))
	assert.Equal(t, codes.Canceled, status.Code(ToStatus(context.Canceled)))
	assert.NoError(t, ToStatus(nil))
}

func TestStatusHelpers(t *testing.T) {
	err := InvalidArgumentErrorf("employee_id %q is empty", "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "employee_id")
	assert.Equal(t, codes.Internal, status.Code(InternalError("boom")))

	passthrough := status.Error(codes.NotFound, "no such record")
	assert.Equal(t, passthrough, ToStatus(passthrough))
	assert.True(t, errors.Is(ConfigurationError("x"), ErrInvalidInput))
}
