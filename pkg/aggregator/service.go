package aggregator

import (
	"context"
	"time"

	"github.com/NotCoffee418/pulse_bridge/pkg/esmutils"
	"github.com/NotCoffee418/pulse_bridge/pkg/meterdb"
	"go.uber.org/zap"
)

// DefaultRetention is how long raw snapshots are kept.
const DefaultRetention = 3 * 30 * 24 * time.Hour

func roundToHourStart(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Unix()
}

func roundToDayStart(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

func roundToMonthStart(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Unix()
}

// bucketBounds returns the first and last second of the bucket holding t.
func bucketBounds(t time.Time, tf Timeframe) (int64, int64) {
	switch tf {
	case Daily:
		start := roundToDayStart(t)
		return start, time.Unix(start, 0).UTC().AddDate(0, 0, 1).Unix() - 1
	case Monthly:
		start := roundToMonthStart(t)
		return start, time.Unix(start, 0).UTC().AddDate(0, 1, 0).Unix() - 1
	}
	start := roundToHourStart(t)
	return start, start + int64(time.Hour/time.Second) - 1
}

// Aggregate buckets numeric readings by timeframe, oldest bucket first.
// Readings must be ordered by time, as History returns them. Text readings are skipped.
func Aggregate(readings []meterdb.MeterDbReading, tf Timeframe, now time.Time) []Bucket {
	var out []Bucket
	var sum float64
	for _, reading := range readings {
		if reading.Value == nil {
			continue
		}
		v := esmutils.ApplyScaler(*reading.Value, reading.Scaler)
		start, end := bucketBounds(time.Unix(reading.Timestamp, 0), tf)

		if len(out) == 0 || out[len(out)-1].Start != start {
			if len(out) > 0 {
				closeBucket(&out[len(out)-1], sum)
			}
			out = append(out, Bucket{Start: start, End: end, Min: v, Max: v, First: v})
			sum = 0
		}
		b := &out[len(out)-1]
		b.Samples++
		sum += v
		b.Last = v
		b.Min = min(b.Min, v)
		b.Max = max(b.Max, v)
	}
	if len(out) > 0 {
		closeBucket(&out[len(out)-1], sum)
	}

	nowStart, _ := bucketBounds(now, tf)
	for i := range out {
		out[i].IsCurrentTimeframe = out[i].Start == nowStart
	}
	return out
}

func closeBucket(b *Bucket, sum float64) {
	b.Average = esmutils.RoundTo(sum/float64(b.Samples), 3)
}

// Pruner is the part of the recorder the cleanup needs.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Cleanup removes snapshots older than retention.
func Cleanup(ctx context.Context, db Pruner, retention time.Duration, now time.Time, logger *zap.Logger) error {
	cutoff := now.Add(-retention)
	n, err := db.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("cleaned up old snapshots",
			zap.Int64("snapshots", n),
			zap.String("before", cutoff.UTC().Format(time.RFC3339)))
	}
	return nil
}

// RunCleanup runs Cleanup now and then every interval until ctx ends.
func RunCleanup(ctx context.Context, db Pruner, retention, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := Cleanup(ctx, db, retention, time.Now(), logger); err != nil && ctx.Err() == nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
