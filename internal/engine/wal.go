package engine

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// WAL handles write-ahead logging to prevent data loss during crashes.
type WAL struct {
	file *os.File
	path string
	mu   sync.Mutex
}

// OpenWAL opens or creates a WAL file at the specified path.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &WAL{
		file: f,
		path: path,
	}, nil
}

// Path returns the file path of the WAL.
func (w *WAL) Path() string {
	return w.path
}

// Write records a document to the WAL.
func (w *WAL) Write(doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	// Format: [Len uint32][JSON Bytes]
	rec := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint32(rec, uint32(len(data)))
	rec = append(rec, data...)

	w.mu.Lock()
	defer w.mu.Unlock()

	_, err = w.file.Write(rec)
	return err
}

// Sync flushes the WAL file buffers to disk.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	return w.file.Close()
}

// Remove closes the WAL file and deletes it.
func (w *WAL) Remove() error {
	if err := w.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return os.Remove(w.path)
}

// Replay reads the WAL and returns all documents.
// A record cut short by a crash ends the replay; the documents read before
// it are returned together with the error.
func (w *WAL) Replay() ([]Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	// O_APPEND writes always go to the end, so the read offset can be left here.

	var docs []Document
	lenBuf := make([]byte, 4)
	for {
		_, err := io.ReadFull(w.file, lenBuf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return docs, fmt.Errorf("WAL replay error (len): %w", err)
		}

		length := binary.LittleEndian.Uint32(lenBuf)
		data := make([]byte, length)
		if _, err := io.ReadFull(w.file, data); err != nil {
			return docs, fmt.Errorf("WAL replay error (data): %w", err)
		}

		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return docs, fmt.Errorf("WAL replay error (unmarshal): %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}
