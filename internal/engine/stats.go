package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// PersistentStats holds cumulative statistics that survive restarts.
type PersistentStats struct {
	TotalDocs    int64            `json:"total_docs"`
	TotalBytes   int64            `json:"total_bytes"`
	SourceCounts map[string]int64 `json:"source_counts"` // Source name -> count
}

// SystemStats contains high-level system metrics for API response.
type SystemStats struct {
	IngestionRate float64          `json:"ingestion_rate"` // docs/sec
	TotalDocs     int64            `json:"total_docs"`     // flushed + in memory
	TotalBytes    int64            `json:"total_bytes"`    // estimated raw size
	MemTableDocs  int              `json:"memtable_docs"`  // not yet flushed
	Segments      int              `json:"segments"`
	DiskUsage     int64            `json:"disk_usage"` // bytes
	TopSources    map[string]int64 `json:"top_sources"`
}

// statsFileName is the filename for persisted stats
const statsFileName = ".nanosearch.stats"

// loadPersistentStats reads stats from disk.
func loadPersistentStats(dataDir string) PersistentStats {
	stats := PersistentStats{
		SourceCounts: make(map[string]int64),
	}

	path := filepath.Join(dataDir, statsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		// File doesn't exist or can't be read, return empty stats
		return stats
	}

	if err := json.Unmarshal(data, &stats); err != nil {
		// Corrupted file, return empty stats
		return PersistentStats{SourceCounts: make(map[string]int64)}
	}

	if stats.SourceCounts == nil {
		stats.SourceCounts = make(map[string]int64)
	}

	return stats
}

// savePersistentStats writes stats to disk atomically.
func savePersistentStats(dataDir string, stats PersistentStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dataDir, statsFileName)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpPath, path)
}

// GetStats merges the persisted counters with the documents still in memory.
func (qe *QueryEngine) GetStats() SystemStats {
	stats := SystemStats{
		IngestionRate: qe.IngestionRate(),
		TopSources:    make(map[string]int64),
	}

	// Memory and persisted counters are read under one lock so a flush in
	// progress is counted exactly once.
	qe.mu.RLock()
	tables := []*MemTable{qe.mt}
	for _, g := range qe.flushing {
		tables = append(tables, g.mt)
	}
	for _, mt := range tables {
		memStats := mt.GetStats()
		stats.MemTableDocs += memStats.RowCount
		stats.TotalBytes += memStats.Bytes
		for src, count := range memStats.SourceCounts {
			stats.TopSources[src] += count
		}
	}
	qe.statsLock.RLock()
	stats.TotalDocs = qe.globalStats.TotalDocs + int64(stats.MemTableDocs)
	stats.TotalBytes += qe.globalStats.TotalBytes
	for src, count := range qe.globalStats.SourceCounts {
		stats.TopSources[src] += count
	}
	qe.statsLock.RUnlock()
	qe.mu.RUnlock()

	// Calculate actual disk usage
	entries, err := os.ReadDir(qe.dataDir)
	if err != nil {
		return stats
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.IsDir() {
			continue
		}
		stats.DiskUsage += info.Size()
		if _, err := parseSegmentName(entry.Name()); err == nil {
			stats.Segments++
		}
	}

	return stats
}
