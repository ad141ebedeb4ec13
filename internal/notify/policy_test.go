package notify_test

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"visual-diff/internal/notify"

	"github.com/google/go-cmp/cmp"
)

type temporaryError struct {
	s string
}

func (te *temporaryError) Error() string {
	return te.s
}

func (te *temporaryError) Temporary() bool {
	return true
}

func TestParsePolicy(t *testing.T) {
	got, err := notify.ParsePolicy("gateway-error, connect-failure,429")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &notify.Policy{GatewayError: true, ConnectFailure: true, StatusCodes: []int{429}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	if _, err := notify.ParsePolicy("sometimes"); err == nil {
		t.Errorf("expected error for unknown condition")
	}
}

func TestPolicy_RetryResponse(t *testing.T) {
	tests := []struct {
		policy *notify.Policy
		code   int
		want   bool
	}{
		{notify.DefaultPolicy(), http.StatusOK, false},
		{notify.DefaultPolicy(), http.StatusInternalServerError, false},
		{notify.DefaultPolicy(), http.StatusBadGateway, true},
		{notify.DefaultPolicy(), http.StatusServiceUnavailable, true},
		{notify.DefaultPolicy(), http.StatusGatewayTimeout, true},
		{notify.DefaultPolicy(), http.StatusConflict, true},
		{notify.DefaultPolicy(), http.StatusTooManyRequests, false},
		{&notify.Policy{ServerError: true}, http.StatusInternalServerError, true},
		{&notify.Policy{StatusCodes: []int{429}}, http.StatusTooManyRequests, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%+v/%d", *tt.policy, tt.code), func(t *testing.T) {
			if got := tt.policy.RetryResponse(&http.Response{StatusCode: tt.code}); got != tt.want {
				t.Errorf("RetryResponse(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestPolicy_RetryError(t *testing.T) {
	tests := []struct {
		name   string
		policy *notify.Policy
		err    error
		want   bool
	}{
		{"temporary", notify.DefaultPolicy(), &temporaryError{"reset"}, true},
		{"eof", notify.DefaultPolicy(), fmt.Errorf("read: %w", io.EOF), true},
		{"permanent", notify.DefaultPolicy(), errors.New("no such host"), false},
		{"disabled", &notify.Policy{GatewayError: true}, &temporaryError{"reset"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.RetryError(tt.err); got != tt.want {
				t.Errorf("RetryError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
