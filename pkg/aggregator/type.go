package aggregator

import "fmt"

type Timeframe int

const (
	Hourly Timeframe = iota
	Daily
	Monthly
)

func ParseTimeframe(s string) (Timeframe, error) {
	switch s {
	case "", "hourly", "hour":
		return Hourly, nil
	case "daily", "day":
		return Daily, nil
	case "monthly", "month":
		return Monthly, nil
	}
	return Hourly, fmt.Errorf("unknown timeframe %q", s)
}

func (t Timeframe) String() string {
	switch t {
	case Daily:
		return "daily"
	case Monthly:
		return "monthly"
	}
	return "hourly"
}

// Bucket summarises the numeric readings of one code within one timeframe.
// Start and End are unix seconds, End being the last second of the bucket.
type Bucket struct {
	Start              int64   `json:"start"`
	End                int64   `json:"end"`
	Average            float64 `json:"average"`
	Min                float64 `json:"min"`
	Max                float64 `json:"max"`
	First              float64 `json:"first"`
	Last               float64 `json:"last"`
	Samples            int     `json:"samples"`
	IsCurrentTimeframe bool    `json:"is_current_timeframe"`
}
