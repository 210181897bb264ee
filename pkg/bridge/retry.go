package bridge

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NotCoffee418/pulse_bridge/pkg/decoder"
)

const (
	minJitter = 200 * time.Millisecond
	maxJitter = 1200 * time.Millisecond
)

// decodeAttempt drives one poll or probe cycle.
type decodeAttempt struct {
	mode       CommunicationMode
	retryCount int
	logPayload bool
}

type retryPolicy struct {
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

func newRetryPolicy() retryPolicy {
	var mu sync.Mutex
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return retryPolicy{
		sleep: sleepContext,
		jitter: func() time.Duration {
			mu.Lock()
			f := src.Float64()
			mu.Unlock()
			return minJitter + time.Duration(f*float64(maxJitter-minJitter))
		},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryable decides whether a failed attempt is refetched. Transport
// failures and impressions payloads get a single attempt.
func retryable(mode CommunicationMode, err error) bool {
	return !mode.impressions() && decoder.Retryable(err)
}

// readWithRetry fetches and decodes until success, a non retryable error or
// maxRetries refetches. The store keeps its snapshot on failure.
func (b *Bridge) readWithRetry(ctx context.Context, attempt decodeAttempt, maxRetries int) error {
	for {
		err := b.fetchAndDecode(ctx, attempt)
		if err == nil {
			return nil
		}
		if !retryable(attempt.mode, err) {
			return err
		}
		if attempt.retryCount >= maxRetries {
			return fmt.Errorf("update failed after %d attempts: %w", attempt.retryCount+1, err)
		}

		attempt.retryCount++
		b.metrics.retry(attempt.mode)
		delay := b.retry.jitter()
		b.log.Debug("retrying decode",
			zap.String("mode", attempt.mode.String()),
			zap.Int("retry", attempt.retryCount),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := b.retry.sleep(ctx, delay); err != nil {
			return err
		}
	}
}
