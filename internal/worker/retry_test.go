package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)
	crawlErr := crawler.NewError(crawler.KindCrawl, "crawl", "u", errors.New("reset"))

	assert.True(t, policy.ShouldRetry(crawlErr, 1))
	assert.True(t, policy.ShouldRetry(fmt.Errorf("wrap: %w", crawlErr), 2))
	assert.False(t, policy.ShouldRetry(crawlErr, 3), "attempt limit")
	assert.False(t, policy.ShouldRetry(nil, 1))
	assert.False(t, policy.ShouldRetry(crawler.NewError(crawler.KindConfig, "", "", nil), 1))
	assert.False(t, policy.ShouldRetry(crawler.NewError(crawler.KindCrawl, "crawl", "u", context.Canceled), 1))
	assert.False(t, policy.ShouldRetry(errors.New("plain"), 1))
}

func TestExponentialRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(5, 100*time.Millisecond, 300*time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		d := policy.Backoff(attempt)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestNewExponentialRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(0, 0, 0)
	assert.Equal(t, 1, policy.maxAttempts)
	assert.False(t, policy.ShouldRetry(crawler.NewError(crawler.KindCrawl, "", "", nil), 1))
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	assert.NoError(t, sleepWithContext(context.Background(), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepWithContext(ctx, time.Hour), context.Canceled)
}
