package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coffersTech/nanosearch/sdk/nanosearch"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Aggregator runs queries against several servers and merges the results.
type Aggregator struct {
	Nodes  []*nanosearch.Client
	Logger *zap.Logger
}

// NewAggregator creates an Aggregator over the given nodes.
func NewAggregator(logger *zap.Logger, nodes ...*nanosearch.Client) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{Nodes: nodes, Logger: logger}
}

// scatter calls fn once per node concurrently. Node failures are logged;
// an error is returned only when every node failed.
func (a *Aggregator) scatter(ctx context.Context, op string, fn func(ctx context.Context, c *nanosearch.Client) error) error {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		errs   error
		failed int
	)

	for _, node := range a.Nodes {
		wg.Add(1)
		go func(c *nanosearch.Client) {
			defer wg.Done()
			if err := fn(ctx, c); err != nil {
				a.Logger.Warn("node request failed",
					zap.String("op", op),
					zap.String("node", c.BaseURL),
					zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.BaseURL, err))
				failed++
				mu.Unlock()
			}
		}(node)
	}
	wg.Wait()

	if len(a.Nodes) > 0 && failed == len(a.Nodes) {
		return errs
	}
	return nil
}

// Search queries every node and returns the merged documents, newest first,
// cut to req.Limit when it is positive.
func (a *Aggregator) Search(ctx context.Context, req nanosearch.SearchRequest) ([]nanosearch.Document, error) {
	var mu sync.Mutex
	allDocs := make([]nanosearch.Document, 0)

	err := a.scatter(ctx, "search", func(ctx context.Context, c *nanosearch.Client) error {
		docs, err := c.Search(ctx, req)
		if err != nil {
			return err
		}
		mu.Lock()
		allDocs = append(allDocs, docs...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Merge-Sort by timestamp descending
	sort.SliceStable(allDocs, func(i, j int) bool {
		return allDocs[i].Timestamp > allDocs[j].Timestamp
	})

	if req.Limit > 0 && len(allDocs) > req.Limit {
		allDocs = allDocs[:req.Limit]
	}
	return allDocs, nil
}

// Histogram sums the per-bucket counts of every node.
func (a *Aggregator) Histogram(ctx context.Context, req nanosearch.SearchRequest, interval time.Duration) ([]nanosearch.HistogramPoint, error) {
	var mu sync.Mutex
	combined := make(map[int64]int)

	err := a.scatter(ctx, "histogram", func(ctx context.Context, c *nanosearch.Client) error {
		points, err := c.Histogram(ctx, req, interval)
		if err != nil {
			return err
		}
		mu.Lock()
		for _, p := range points {
			combined[p.Time] += p.Count
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]nanosearch.HistogramPoint, 0, len(combined))
	for t, c := range combined {
		result = append(result, nanosearch.HistogramPoint{Time: t, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Time < result[j].Time
	})
	return result, nil
}

// Stats sums the statistics of every node.
func (a *Aggregator) Stats(ctx context.Context) (nanosearch.Stats, error) {
	var mu sync.Mutex
	total := nanosearch.Stats{TopSources: make(map[string]int64)}

	err := a.scatter(ctx, "stats", func(ctx context.Context, c *nanosearch.Client) error {
		s, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		total.IngestionRate += s.IngestionRate
		total.TotalDocs += s.TotalDocs
		total.TotalBytes += s.TotalBytes
		total.MemTableDocs += s.MemTableDocs
		total.Segments += s.Segments
		total.DiskUsage += s.DiskUsage
		for k, v := range s.TopSources {
			total.TopSources[k] += v
		}
		mu.Unlock()
		return nil
	})
	return total, err
}
