package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBackoff(t *testing.T) {
	t.Parallel()

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{100, 30 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, RetryBackoff(tc.retryCount), "retry %d", tc.retryCount)
	}
}
