package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/yunzhijiao/bridge/internal/config"
)

const keySubmission = "review:submit:%s"

// SubmissionLimiter bounds how fast one applicant may file review requests.
// Disabled (always allowing) when redis is not configured.
type SubmissionLimiter struct {
	bucket *TokenBucket
	holder *config.ReviewConfigHolder
}

func NewSubmissionLimiter(bucket *TokenBucket, holder *config.ReviewConfigHolder) *SubmissionLimiter {
	return &SubmissionLimiter{
		bucket: bucket,
		holder: holder,
	}
}

func (l *SubmissionLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *SubmissionLimiter) Allow(ctx context.Context, applicantID snowflake.ID) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	policy := l.holder.Get()
	key := fmt.Sprintf(keySubmission, applicantID.String())
	return l.bucket.Allow(ctx, key, policy.SubmissionRate, policy.SubmissionBurst)
}
