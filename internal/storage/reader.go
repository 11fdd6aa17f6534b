package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/coffersTech/nanosearch/internal/engine"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrInvalidHeader = errors.New("invalid segment file header")
	ErrCorrupted     = errors.New("corrupted segment file")
)

// DocumentIterator provides a row-by-row view of a segment.
type DocumentIterator interface {
	Next() bool
	Document() engine.Document
	Close() error
}

// Footer is the fixed-size trailer of a segment file.
type Footer struct {
	RowCount int
	MinTs    int64
	MaxTs    int64
}

type SegmentReader struct {
	decoder *zstd.Decoder
}

func NewSegmentReader() (*SegmentReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &SegmentReader{decoder: dec}, nil
}

// Close releases the decoder resources.
func (sr *SegmentReader) Close() {
	sr.decoder.Close()
}

// NewIterator creates an iterator over the documents of a segment file that
// pass the filter's time range and source criteria.
func (sr *SegmentReader) NewIterator(filename string, filter engine.Filter) (DocumentIterator, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	it := &FileIterator{
		reader: sr,
		file:   f,
		filter: filter,
	}

	if err := it.init(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	return it, nil
}

type FileIterator struct {
	reader *SegmentReader
	file   *os.File
	filter engine.Filter

	// Columns data
	ids        []string
	timestamps []int64
	sources    []string
	texts      []string

	rowCount int
	cursor   int
	curr     engine.Document
}

func readFooter(f *os.File) (Footer, error) {
	// 1. Validate Header
	header := make([]byte, len(MagicHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		return Footer{}, ErrInvalidHeader
	}
	if !bytes.Equal(header, MagicHeader) {
		return Footer{}, ErrInvalidHeader
	}

	// 2. Read Footer (at end of file)
	info, err := f.Stat()
	if err != nil {
		return Footer{}, err
	}
	if info.Size() < int64(len(MagicHeader)+footerSize) {
		return Footer{}, fmt.Errorf("%w: file too small", ErrCorrupted)
	}

	footer := make([]byte, footerSize)
	if _, err := f.ReadAt(footer, info.Size()-footerSize); err != nil {
		return Footer{}, err
	}

	return Footer{
		RowCount: int(binary.LittleEndian.Uint32(footer[0:4])),
		MinTs:    int64(binary.LittleEndian.Uint64(footer[4:12])),
		MaxTs:    int64(binary.LittleEndian.Uint64(footer[12:20])),
	}, nil
}

func (it *FileIterator) init() error {
	footer, err := readFooter(it.file)
	if err != nil {
		return err
	}

	it.cursor = -1

	// File-level filtering based on MinTs/MaxTs
	if footer.RowCount == 0 || !it.filter.Overlaps(footer.MinTs, footer.MaxTs) {
		return nil
	}
	it.rowCount = footer.RowCount

	// 3. Read and decompress all columns. Each column is a single
	// compressed block, so a segment is decoded whole.
	idData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.ids = bytesToStringSlice(idData)

	tsData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.timestamps = bytesToInt64Slice(tsData)

	srcData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.sources = bytesToStringSlice(srcData)

	textData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.texts = bytesToStringSlice(textData)

	if it.rowCount != len(it.ids) || it.rowCount != len(it.timestamps) ||
		it.rowCount != len(it.sources) || it.rowCount != len(it.texts) {
		return fmt.Errorf("%w: column length mismatch", ErrCorrupted)
	}

	return nil
}

func (it *FileIterator) Next() bool {
	for {
		it.cursor++
		if it.cursor >= it.rowCount {
			return false
		}

		ts := it.timestamps[it.cursor]
		src := it.sources[it.cursor]
		if !it.filter.Accepts(ts, src) {
			continue
		}

		it.curr = engine.Document{
			ID:        it.ids[it.cursor],
			Timestamp: ts,
			Source:    src,
			Text:      it.texts[it.cursor],
		}
		return true
	}
}

func (it *FileIterator) Document() engine.Document {
	return it.curr
}

func (it *FileIterator) Close() error {
	return it.file.Close()
}

// ReadSnapshot reads a segment file and returns the documents accepted by
// the filter's time range and source, in insertion order.
func (sr *SegmentReader) ReadSnapshot(filename string, filter engine.Filter) ([]engine.Document, error) {
	it, err := sr.NewIterator(filename, filter)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var docs []engine.Document
	for it.Next() {
		docs = append(docs, it.Document())
	}
	return docs, nil
}

// readAndDecompress reads a compressed block (size + data) and decompresses it.
func (sr *SegmentReader) readAndDecompress(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	decompressed, err := sr.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	return decompressed, nil
}

// bytesToInt64Slice converts a byte slice to []int64 (LittleEndian).
func bytesToInt64Slice(data []byte) []int64 {
	result := make([]int64, len(data)/8)
	for i := range result {
		result[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return result
}

// bytesToStringSlice converts a byte slice to []string.
// Format: [Len uint32][Bytes]...
func bytesToStringSlice(data []byte) []string {
	var result []string
	for len(data) >= 4 {
		length := binary.LittleEndian.Uint32(data)
		data = data[4:]
		if uint64(length) > uint64(len(data)) {
			break
		}
		result = append(result, string(data[:length]))
		data = data[length:]
	}
	return result
}
