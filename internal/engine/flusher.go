package engine

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	segmentPrefix = "seg_"
	segmentExt    = ".nseg"
	walPrefix     = "wal_"
	walExt        = ".log"
)

// generation is a MemTable together with the WAL that backs it. Each
// generation is flushed into exactly one segment file.
type generation struct {
	seq     uint64
	mt      *MemTable
	wal     *WAL
	segment string // target segment path, set when the generation is frozen
}

// segmentFile describes a segment file found in the data directory.
type segmentFile struct {
	path  string
	minTs int64
	maxTs int64
	seq   uint64
}

// segmentName builds the file name seg_{minTs}_{maxTs}_{seq}.nseg.
func segmentName(minTs, maxTs int64, seq uint64) string {
	return fmt.Sprintf("%s%d_%d_%d%s", segmentPrefix, minTs, maxTs, seq, segmentExt)
}

// parseSegmentName extracts the time range and generation of a segment file.
func parseSegmentName(filename string) (segmentFile, error) {
	base := filepath.Base(filename)
	if !strings.HasPrefix(base, segmentPrefix) || !strings.HasSuffix(base, segmentExt) {
		return segmentFile{}, fmt.Errorf("invalid segment name %q", base)
	}
	content := strings.TrimSuffix(strings.TrimPrefix(base, segmentPrefix), segmentExt)
	parts := strings.Split(content, "_")
	if len(parts) != 3 {
		return segmentFile{}, fmt.Errorf("invalid segment name %q", base)
	}
	minTs, err1 := strconv.ParseInt(parts[0], 10, 64)
	maxTs, err2 := strconv.ParseInt(parts[1], 10, 64)
	seq, err3 := strconv.ParseUint(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return segmentFile{}, fmt.Errorf("invalid segment name %q", base)
	}
	return segmentFile{path: filename, minTs: minTs, maxTs: maxTs, seq: seq}, nil
}

func walName(seq uint64) string {
	return fmt.Sprintf("%s%d%s", walPrefix, seq, walExt)
}

func parseWALName(filename string) (uint64, bool) {
	base := filepath.Base(filename)
	if !strings.HasPrefix(base, walPrefix) || !strings.HasSuffix(base, walExt) {
		return 0, false
	}
	seq, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(base, walPrefix), walExt), 10, 64)
	return seq, err == nil
}

// findSegments returns the segment files in the data directory, newest first.
func (qe *QueryEngine) findSegments() ([]segmentFile, error) {
	entries, err := os.ReadDir(qe.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []segmentFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		seg, err := parseSegmentName(filepath.Join(qe.dataDir, entry.Name()))
		if err != nil {
			continue
		}
		files = append(files, seg)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].maxTs != files[j].maxTs {
			return files[i].maxTs > files[j].maxTs
		}
		return files[i].seq > files[j].seq
	})
	return files, nil
}

// flushGeneration writes a frozen generation to its segment file, folds its
// counts into the persistent stats and drops its WAL.
func (qe *QueryEngine) flushGeneration(g *generation) error {
	// === Step 1: Write file to disk ===
	if err := qe.writerFunc(g.segment, g.mt); err != nil {
		return fmt.Errorf("write segment %s: %w", filepath.Base(g.segment), err)
	}

	// === Step 2: Atomic stats transfer ===
	memStats := g.mt.GetStats()

	qe.mu.Lock()
	qe.statsLock.Lock()
	qe.globalStats.TotalDocs += int64(memStats.RowCount)
	qe.globalStats.TotalBytes += memStats.Bytes
	for k, v := range memStats.SourceCounts {
		qe.globalStats.SourceCounts[k] += v
	}
	qe.statsLock.Unlock()
	qe.removeFlushing(g)
	qe.mu.Unlock()

	// === Step 3: Persist stats to disk ===
	if err := qe.persistStats(); err != nil {
		qe.logger.Warn("stats persist failed", zap.Error(err))
	}

	// === Step 4: Drop the WAL (after the segment is safely written) ===
	if g.wal != nil {
		if err := g.wal.Remove(); err != nil {
			qe.logger.Warn("WAL remove failed", zap.String("file", g.wal.Path()), zap.Error(err))
		}
	}

	qe.logger.Info("flushed segment",
		zap.String("file", filepath.Base(g.segment)),
		zap.Int("docs", memStats.RowCount))
	return nil
}

// persistStats saves the current counters. Concurrent flushes are
// serialized so an older snapshot never overwrites a newer one.
func (qe *QueryEngine) persistStats() error {
	qe.persistMu.Lock()
	defer qe.persistMu.Unlock()

	qe.statsLock.RLock()
	snapshot := qe.globalStats
	snapshot.SourceCounts = maps.Clone(qe.globalStats.SourceCounts)
	qe.statsLock.RUnlock()

	return savePersistentStats(qe.dataDir, snapshot)
}

// removeFlushing drops g from the list of frozen generations.
// Callers hold qe.mu.
func (qe *QueryEngine) removeFlushing(g *generation) {
	for i, f := range qe.flushing {
		if f == g {
			qe.flushing = append(qe.flushing[:i], qe.flushing[i+1:]...)
			return
		}
	}
}
