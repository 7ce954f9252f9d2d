package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yunzhijiao/bridge/internal/config"
)

func TestSubmissionLimiterDisabledWithoutRedis(t *testing.T) {
	holder := config.NewStaticReviewConfigHolder(config.DefaultReviewConfig())

	limiter := NewSubmissionLimiter(nil, holder)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// A nil limiter behaves the same; callers never guard for it.
	var none *SubmissionLimiter
	assert.False(t, none.Enabled())
	res, err = none.Allow(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
