package engine

import (
	"sync"
	"sync/atomic"
)

// docOverhead is the estimated fixed size of a row besides its strings.
const docOverhead = 8

// MemTable stores documents in columnar format.
// Columns are exported for access by storage package.
type MemTable struct {
	mu sync.RWMutex

	// Exported Columns
	IDCol   []string // Document ID
	TsCol   []int64  // Timestamp
	SrcCol  []string // Source name
	TextCol []string // Searchable text

	// Metadata
	SizeBytes int64 // Estimated memory usage in bytes

	minTs int64
	maxTs int64
}

// MemStats summarizes the rows currently held by a MemTable.
type MemStats struct {
	RowCount     int
	Bytes        int64
	SourceCounts map[string]int64
}

// NewMemTable initializes MemTable with pre-allocated capacity.
func NewMemTable() *MemTable {
	cap := 4096
	return &MemTable{
		IDCol:   make([]string, 0, cap),
		TsCol:   make([]int64, 0, cap),
		SrcCol:  make([]string, 0, cap),
		TextCol: make([]string, 0, cap),
	}
}

// Append adds a document.
func (mt *MemTable) Append(doc Document) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if len(mt.TsCol) == 0 || doc.Timestamp < mt.minTs {
		mt.minTs = doc.Timestamp
	}
	if len(mt.TsCol) == 0 || doc.Timestamp > mt.maxTs {
		mt.maxTs = doc.Timestamp
	}

	mt.IDCol = append(mt.IDCol, doc.ID)
	mt.TsCol = append(mt.TsCol, doc.Timestamp)
	mt.SrcCol = append(mt.SrcCol, doc.Source)
	mt.TextCol = append(mt.TextCol, doc.Text)

	atomic.AddInt64(&mt.SizeBytes, docSize(doc.ID, doc.Source, doc.Text))
}

// GetSize returns the estimated memory usage in bytes.
func (mt *MemTable) GetSize() int64 {
	return atomic.LoadInt64(&mt.SizeBytes)
}

// Len returns the number of rows.
func (mt *MemTable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.TsCol)
}

// MinTimestamp returns the smallest timestamp held, or 0 when empty.
func (mt *MemTable) MinTimestamp() int64 {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.minTs
}

// MaxTimestamp returns the largest timestamp held, or 0 when empty.
func (mt *MemTable) MaxTimestamp() int64 {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.maxTs
}

// Scan calls visit for each matching document, newest first, until visit
// returns false. It reports whether the scan ran to completion.
func (mt *MemTable) Scan(filter Filter, query Query, visit func(Document) bool) bool {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	if len(mt.TsCol) == 0 || !filter.Overlaps(mt.minTs, mt.maxTs) {
		return true
	}

	// Scan backwards (newest first)
	for i := len(mt.TsCol) - 1; i >= 0; i-- {
		ts := mt.TsCol[i]
		src := mt.SrcCol[i]
		if !filter.Accepts(ts, src) {
			continue
		}

		text := mt.TextCol[i]
		if !query.Match(text) {
			continue
		}

		if !visit(Document{ID: mt.IDCol[i], Timestamp: ts, Source: src, Text: text}) {
			return false
		}
	}
	return true
}

// GetStats summarizes the table contents.
func (mt *MemTable) GetStats() MemStats {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	stats := MemStats{
		RowCount:     len(mt.TsCol),
		SourceCounts: make(map[string]int64),
	}
	for i := range mt.TsCol {
		stats.SourceCounts[mt.SrcCol[i]]++
		stats.Bytes += docSize(mt.IDCol[i], mt.SrcCol[i], mt.TextCol[i])
	}
	return stats
}

func docSize(id, source, text string) int64 {
	return int64(len(id) + len(source) + len(text) + docOverhead)
}
