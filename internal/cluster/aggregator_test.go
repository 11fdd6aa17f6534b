package cluster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coffersTech/nanosearch/internal/engine"
	"github.com/coffersTech/nanosearch/internal/server"
	"github.com/coffersTech/nanosearch/internal/storage"
	"github.com/coffersTech/nanosearch/sdk/nanosearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNode(t *testing.T, docs ...nanosearch.Document) *nanosearch.Client {
	t.Helper()
	w, err := storage.NewSegmentWriter()
	require.NoError(t, err)
	r, err := storage.NewSegmentReader()
	require.NoError(t, err)
	qe, err := engine.NewQueryEngine(engine.Options{DataDir: t.TempDir()}, r.ReadSnapshot, w.WriteSnapshot, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(server.New(qe, nil, nil, server.Options{}).Handler())
	t.Cleanup(func() {
		ts.Close()
		qe.Close()
		w.Close()
		r.Close()
	})

	c := nanosearch.New(ts.URL, "")
	_, err = c.Ingest(context.Background(), docs...)
	require.NoError(t, err)
	return c
}

func deadNode(t *testing.T) *nanosearch.Client {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)
	return nanosearch.New(ts.URL, "")
}

func TestAggregatorSearch(t *testing.T) {
	a := NewAggregator(nil,
		startNode(t,
			nanosearch.Document{ID: "a1", Timestamp: 1000, Source: "a", Text: "apple"},
			nanosearch.Document{ID: "a3", Timestamp: 3000, Source: "a", Text: "apple pie"},
		),
		startNode(t,
			nanosearch.Document{ID: "b2", Timestamp: 2000, Source: "b", Text: "apple juice"},
			nanosearch.Document{ID: "b4", Timestamp: 4000, Source: "b", Text: "banana"},
		),
		deadNode(t),
	)
	ctx := context.Background()

	docs, err := a.Search(ctx, nanosearch.SearchRequest{Query: "apple"})
	require.NoError(t, err)
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"a3", "b2", "a1"}, ids)

	docs, err = a.Search(ctx, nanosearch.SearchRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b4", docs[0].ID)
	assert.Equal(t, "a3", docs[1].ID)

	points, err := a.Histogram(ctx, nanosearch.SearchRequest{Start: time.Unix(0, 1), End: time.Unix(0, 5000)}, 2*time.Microsecond)
	require.NoError(t, err)
	assert.Equal(t, []nanosearch.HistogramPoint{{Time: 0, Count: 1}, {Time: 2000, Count: 2}, {Time: 4000, Count: 1}}, points)

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalDocs)
	assert.Equal(t, map[string]int64{"a": 2, "b": 2}, stats.TopSources)
}

func TestAggregatorAllNodesFail(t *testing.T) {
	a := NewAggregator(nil, deadNode(t), deadNode(t))

	_, err := a.Search(context.Background(), nanosearch.SearchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = a.Stats(context.Background())
	assert.Error(t, err)
}

func TestAggregatorNoNodes(t *testing.T) {
	docs, err := NewAggregator(nil).Search(context.Background(), nanosearch.SearchRequest{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}
