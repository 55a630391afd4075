package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("parse failure"), false},
		{"explicit transient", NewTransientError(errors.New("upstream flake")), true},
		{"wrapped transient", fmt.Errorf("scan: %w", NewTransientError(errors.New("x"))), true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", eris.Wrap(context.DeadlineExceeded, "scanner: email_validation"), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"conn reset", syscall.ECONNRESET, true},
		{"rate limit text", errors.New("upstream replied: rate limit exceeded"), true},
		{"429 text", errors.New("HTTP 429 Too Many Requests"), true},
		{"dns text", errors.New("lookup example.com: no such host"), true},
		{"cancel is not transient", context.Canceled, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
