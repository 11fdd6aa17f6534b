package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxTableSize is the MemTable size that triggers a background flush.
const DefaultMaxTableSize = 64 * 1024 * 1024

// SnapshotReaderFunc reads the documents of a segment file accepted by the
// filter's time range and source. The query is evaluated by the engine.
type SnapshotReaderFunc func(filename string, filter Filter) ([]Document, error)

// SnapshotWriterFunc writes a MemTable to a segment file.
type SnapshotWriterFunc func(path string, mt *MemTable) error

// Options configures a QueryEngine.
type Options struct {
	DataDir      string
	Retention    time.Duration
	MaxTableSize int64
}

// QueryEngine handles ingestion, query execution and data lifecycle across
// in-memory and persisted documents.
type QueryEngine struct {
	dataDir    string
	readerFunc SnapshotReaderFunc
	writerFunc SnapshotWriterFunc
	logger     *zap.Logger
	Retention  time.Duration

	// Configuration
	MaxTableSize int64

	// mu protects the active generation and the flushing list
	mu       sync.RWMutex
	mt       *MemTable
	wal      *WAL
	seq      uint64
	flushing []*generation // frozen generations, oldest first

	flushes sync.WaitGroup

	// Persistent Stats
	globalStats PersistentStats
	statsLock   sync.RWMutex // Protects globalStats
	persistMu   sync.Mutex

	ingested atomic.Int64
	rateBits uint64
}

// NewQueryEngine opens the data directory, recovers documents left in WAL
// files by a previous run and starts a fresh generation.
func NewQueryEngine(opts Options, readerFunc SnapshotReaderFunc, writerFunc SnapshotWriterFunc, logger *zap.Logger) (*QueryEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxTableSize <= 0 {
		opts.MaxTableSize = DefaultMaxTableSize
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	qe := &QueryEngine{
		dataDir:      opts.DataDir,
		readerFunc:   readerFunc,
		writerFunc:   writerFunc,
		logger:       logger,
		Retention:    opts.Retention,
		MaxTableSize: opts.MaxTableSize,
		globalStats:  loadPersistentStats(opts.DataDir),
	}

	walSeqs, lastSeq, err := qe.scanDataDir()
	if err != nil {
		return nil, err
	}

	// Crash Recovery: flush every WAL left behind into its own segment
	for _, seq := range walSeqs {
		if err := qe.recover(seq); err != nil {
			return nil, err
		}
	}

	qe.seq = lastSeq + 1
	wal, err := OpenWAL(filepath.Join(qe.dataDir, walName(qe.seq)))
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}
	qe.wal = wal
	qe.mt = NewMemTable()

	return qe, nil
}

// scanDataDir lists the WAL generations to recover and the highest
// generation number in use by WAL or segment files.
func (qe *QueryEngine) scanDataDir() ([]uint64, uint64, error) {
	entries, err := os.ReadDir(qe.dataDir)
	if err != nil {
		return nil, 0, fmt.Errorf("read data dir: %w", err)
	}

	var walSeqs []uint64
	var last uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if seq, ok := parseWALName(entry.Name()); ok {
			walSeqs = append(walSeqs, seq)
			last = max(last, seq)
			continue
		}
		if seg, err := parseSegmentName(entry.Name()); err == nil {
			last = max(last, seg.seq)
		}
	}
	sort.Slice(walSeqs, func(i, j int) bool { return walSeqs[i] < walSeqs[j] })
	return walSeqs, last, nil
}

func (qe *QueryEngine) recover(seq uint64) error {
	wal, err := OpenWAL(filepath.Join(qe.dataDir, walName(seq)))
	if err != nil {
		return fmt.Errorf("open WAL: %w", err)
	}

	docs, err := wal.Replay()
	if err != nil {
		qe.logger.Warn("WAL replay stopped early", zap.String("file", walName(seq)), zap.Error(err))
	}
	if len(docs) == 0 {
		return wal.Remove()
	}

	qe.logger.Info("crash recovery: replaying WAL",
		zap.String("file", walName(seq)),
		zap.Int("docs", len(docs)))

	g := &generation{seq: seq, mt: NewMemTable(), wal: wal}
	for _, doc := range docs {
		g.mt.Append(doc)
	}
	g.segment = qe.segmentPath(g)
	return qe.flushGeneration(g)
}

func (qe *QueryEngine) segmentPath(g *generation) string {
	return filepath.Join(qe.dataDir, segmentName(g.mt.MinTimestamp(), g.mt.MaxTimestamp(), g.seq))
}

// Ingest records a document in the WAL and the MemTable, triggering a
// background flush once the MemTable reaches MaxTableSize. A missing ID is
// generated and a zero timestamp is set to the current time.
func (qe *QueryEngine) Ingest(doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Timestamp == 0 {
		doc.Timestamp = time.Now().UnixNano()
	}

	qe.mu.RLock()
	// 1. Write to WAL first for durability
	if err := qe.wal.Write(doc); err != nil {
		qe.mu.RUnlock()
		return doc, fmt.Errorf("WAL write: %w", err)
	}
	// 2. Append to MemTable
	qe.mt.Append(doc)
	full := qe.mt.GetSize() >= qe.MaxTableSize
	qe.mu.RUnlock()

	qe.ingested.Add(1)

	if full {
		g, err := qe.freeze(false)
		if err != nil {
			qe.logger.Error("MemTable swap failed", zap.Error(err))
			return doc, nil
		}
		if g != nil {
			qe.logger.Info("MemTable reached threshold, swapping for async flush",
				zap.Int64("max_table_size", qe.MaxTableSize))
			qe.flushes.Add(1)
			go func() {
				defer qe.flushes.Done()
				if err := qe.flushGeneration(g); err != nil {
					qe.logger.Error("background flush failed", zap.Error(err))
				}
			}()
		}
	}
	return doc, nil
}

// freeze swaps the active generation for an empty one and returns the old
// generation, or nil when there is nothing to flush. Unless force is set the
// swap only happens while the MemTable is over MaxTableSize.
func (qe *QueryEngine) freeze(force bool) (*generation, error) {
	qe.mu.Lock()
	defer qe.mu.Unlock()

	// Double check size under lock
	if qe.mt.Len() == 0 || (!force && qe.mt.GetSize() < qe.MaxTableSize) {
		return nil, nil
	}

	next := qe.seq + 1
	wal, err := OpenWAL(filepath.Join(qe.dataDir, walName(next)))
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}

	g := &generation{seq: qe.seq, mt: qe.mt, wal: qe.wal}
	g.segment = qe.segmentPath(g)
	qe.flushing = append(qe.flushing, g)

	qe.seq = next
	qe.mt = NewMemTable()
	qe.wal = wal
	return g, nil
}

// Flush writes the current MemTable to a segment file and starts a new one.
func (qe *QueryEngine) Flush() error {
	g, err := qe.freeze(true)
	if err != nil || g == nil {
		return err
	}
	return qe.flushGeneration(g)
}

// SyncWAL flushes the active WAL file to disk.
func (qe *QueryEngine) SyncWAL() error {
	qe.mu.RLock()
	defer qe.mu.RUnlock()
	return qe.wal.Sync()
}

// Close flushes the MemTable, waits for background flushes and closes the
// WAL. The engine must not be used afterwards.
func (qe *QueryEngine) Close() error {
	err := qe.Flush()
	qe.flushes.Wait()

	qe.mu.Lock()
	defer qe.mu.Unlock()
	if qe.mt.Len() == 0 {
		if rmErr := qe.wal.Remove(); rmErr != nil && err == nil {
			err = rmErr
		}
		return err
	}
	if closeErr := qe.wal.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// ExecuteScan returns up to limit documents matching the filter, newest
// first: the MemTable, then generations being flushed, then segment files.
// A limit <= 0 means no limit.
func (qe *QueryEngine) ExecuteScan(filter Filter, limit int) ([]Document, error) {
	result := make([]Document, 0)
	err := qe.scan(filter, func(doc Document) bool {
		result = append(result, doc)
		return limit <= 0 || len(result) < limit
	})
	return result, err
}

// scan visits the documents matching filter, newest source first, until
// visit returns false.
func (qe *QueryEngine) scan(filter Filter, visit func(Document) bool) error {
	query := CompileQuery(filter.Query)

	// 1. Snapshot the in-memory tables and the segment list together so that
	// a generation finishing its flush is seen exactly once.
	qe.mu.RLock()
	tables := make([]*MemTable, 0, len(qe.flushing)+1)
	tables = append(tables, qe.mt)
	inMemory := make(map[string]bool, len(qe.flushing))
	for i := len(qe.flushing) - 1; i >= 0; i-- {
		tables = append(tables, qe.flushing[i].mt)
		inMemory[qe.flushing[i].segment] = true
	}
	files, err := qe.findSegments()
	qe.mu.RUnlock()
	if err != nil {
		return err
	}

	// 2. Search memory
	for _, mt := range tables {
		if !mt.Scan(filter, query, visit) {
			return nil
		}
	}

	// 3. Search persisted files
	for _, seg := range files {
		if inMemory[seg.path] || !filter.Overlaps(seg.minTs, seg.maxTs) {
			continue
		}

		docs, err := qe.readerFunc(seg.path, filter)
		if err != nil {
			qe.logger.Warn("segment read failed", zap.String("file", filepath.Base(seg.path)), zap.Error(err))
			continue
		}

		// Segments keep insertion order; walk backwards for newest first.
		for i := len(docs) - 1; i >= 0; i-- {
			if !query.Match(docs[i].Text) {
				continue
			}
			if !visit(docs[i]) {
				return nil
			}
		}
	}

	return nil
}
