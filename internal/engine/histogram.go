package engine

import (
	"errors"
	"sort"
)

// ErrInvalidInterval is returned when a histogram is requested with a
// non-positive bucket width.
var ErrInvalidInterval = errors.New("histogram interval must be positive")

type HistogramPoint struct {
	Time  int64 `json:"time"`
	Count int   `json:"count"`
}

// ComputeHistogram counts the documents matching filter per time bucket of
// the given width (nanoseconds). Buckets are aligned to multiples of
// interval and returned in ascending time order; empty buckets are omitted.
func (qe *QueryEngine) ComputeHistogram(filter Filter, interval int64) ([]HistogramPoint, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	// Map to store bucket counts: timestamp -> count
	buckets := make(map[int64]int)
	err := qe.scan(filter, func(doc Document) bool {
		buckets[bucketStart(doc.Timestamp, interval)]++
		return true
	})
	if err != nil {
		return nil, err
	}

	points := make([]HistogramPoint, 0, len(buckets))
	for t, c := range buckets {
		points = append(points, HistogramPoint{Time: t, Count: c})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})

	return points, nil
}

// bucketStart floors ts to a multiple of interval, also for negative ts.
func bucketStart(ts, interval int64) int64 {
	b := (ts / interval) * interval
	if ts < 0 && b != ts {
		b -= interval
	}
	return b
}
