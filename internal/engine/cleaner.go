package engine

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RunCleaner periodically removes segment files whose newest document is
// older than the retention period. It returns when ctx is done.
func (qe *QueryEngine) RunCleaner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	qe.logger.Info("cleaner started",
		zap.Duration("retention", qe.Retention),
		zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if qe.Retention <= 0 {
				continue
			}
			qe.PurgeExpired(now)
		}
	}
}

// PurgeExpired deletes the segments that expired at now and returns how many
// were removed.
func (qe *QueryEngine) PurgeExpired(now time.Time) int {
	if qe.Retention <= 0 {
		return 0
	}

	files, err := qe.findSegments()
	if err != nil {
		qe.logger.Error("cleaner failed to read data dir", zap.Error(err))
		return 0
	}

	threshold := now.Add(-qe.Retention).UnixNano()
	removed := 0
	for _, seg := range files {
		if seg.maxTs >= threshold {
			continue
		}
		name := filepath.Base(seg.path)

		// Count what the segment holds before it is gone.
		expired := NewMemTable()
		docs, err := qe.readerFunc(seg.path, Filter{})
		if err != nil {
			qe.logger.Warn("cleaner could not count expired segment", zap.String("file", name), zap.Error(err))
		}
		for _, d := range docs {
			expired.Append(d)
		}

		if err := os.Remove(seg.path); err != nil {
			qe.logger.Error("cleaner failed to delete segment", zap.String("file", name), zap.Error(err))
			continue
		}
		qe.releaseStats(expired.GetStats())
		qe.logger.Info("expired segment deleted", zap.String("file", name), zap.Int("docs", len(docs)))
		removed++
	}

	if removed > 0 {
		if err := qe.persistStats(); err != nil {
			qe.logger.Warn("stats persist failed", zap.Error(err))
		}
	}
	return removed
}

// releaseStats subtracts the counts of deleted documents from the persistent
// stats. Counters never drop below zero.
func (qe *QueryEngine) releaseStats(s MemStats) {
	qe.statsLock.Lock()
	defer qe.statsLock.Unlock()

	qe.globalStats.TotalDocs = max(0, qe.globalStats.TotalDocs-int64(s.RowCount))
	qe.globalStats.TotalBytes = max(0, qe.globalStats.TotalBytes-s.Bytes)
	for src, n := range s.SourceCounts {
		left := qe.globalStats.SourceCounts[src] - n
		if left > 0 {
			qe.globalStats.SourceCounts[src] = left
		} else {
			delete(qe.globalStats.SourceCounts, src)
		}
	}
}

// RunStatsTicker recomputes the ingestion rate every interval until ctx is
// done.
func (qe *QueryEngine) RunStatsTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := qe.ingested.Swap(0)
			rate := float64(count) / interval.Seconds()
			atomic.StoreUint64(&qe.rateBits, math.Float64bits(rate))
		}
	}
}

// IngestionRate returns the ingestion rate measured by the stats ticker
// (docs/sec).
func (qe *QueryEngine) IngestionRate() float64 {
	return math.Float64frombits(atomic.LoadUint64(&qe.rateBits))
}
