package engine

// Document is a single searchable record (row-oriented view).
// Used when reading data from disk or returning query results.
type Document struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // unix nanoseconds
	Source    string `json:"source"`
	Text      string `json:"text"`
}

// Filter defines criteria for document retrieval.
type Filter struct {
	MinTime int64  `json:"min_time"`
	MaxTime int64  `json:"max_time"`
	Source  string `json:"source"`
	Query   string `json:"q"` // search query matched against Text
}

// Accepts reports whether a document passes the time range and source
// criteria. The query is not evaluated here; see CompileQuery.
func (f Filter) Accepts(ts int64, source string) bool {
	if f.MinTime > 0 && ts < f.MinTime {
		return false
	}
	if f.MaxTime > 0 && ts > f.MaxTime {
		return false
	}
	if f.Source != "" && source != f.Source {
		return false
	}
	return true
}

// Overlaps reports whether the closed range [minTs, maxTs] may hold
// documents inside the filter's time range.
func (f Filter) Overlaps(minTs, maxTs int64) bool {
	if f.MinTime > 0 && maxTs < f.MinTime {
		return false
	}
	if f.MaxTime > 0 && minTs > f.MaxTime {
		return false
	}
	return true
}
