package storage

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/coffersTech/nanosearch/internal/engine"
	"github.com/klauspost/compress/zstd"
)

// NanoSearch segment header
var MagicHeader = []byte("NSEARCH1")

// footerSize is RowCount(4) + MinTs(8) + MaxTs(8).
const footerSize = 20

// SegmentWriter serializes MemTables into compressed columnar segment files.
//
// Layout:
//
//	[magic 8][ids][timestamps][sources][texts][footer 20]
//
// Each column is stored as [compressed size uint32][zstd block].
type SegmentWriter struct {
	encoder *zstd.Encoder
}

func NewSegmentWriter() (*SegmentWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &SegmentWriter{encoder: enc}, nil
}

// WriteSnapshot writes the MemTable to a segment file. The file is written
// under a temporary name and renamed into place once complete.
func (sw *SegmentWriter) WriteSnapshot(filename string, mt *engine.MemTable) error {
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := sw.write(f, mt); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filename)
}

// Close releases the encoder resources.
func (sw *SegmentWriter) Close() error {
	return sw.encoder.Close()
}

func (sw *SegmentWriter) write(f *os.File, mt *engine.MemTable) error {
	// 1. Write Header
	if _, err := f.Write(MagicHeader); err != nil {
		return err
	}

	rowCount := uint32(len(mt.TsCol))
	if rowCount == 0 {
		return sw.writeFooter(f, 0, 0, 0)
	}

	// 2. Compress and Write Columns
	if err := sw.writeStringCol(f, mt.IDCol); err != nil {
		return err
	}
	if err := sw.writeInt64Col(f, mt.TsCol); err != nil {
		return err
	}
	if err := sw.writeStringCol(f, mt.SrcCol); err != nil {
		return err
	}
	if err := sw.writeStringCol(f, mt.TextCol); err != nil {
		return err
	}

	// 3. Footer
	return sw.writeFooter(f, rowCount, mt.MinTimestamp(), mt.MaxTimestamp())
}

func (sw *SegmentWriter) writeInt64Col(f *os.File, data []int64) error {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return sw.compressAndWrite(f, buf)
}

func (sw *SegmentWriter) writeStringCol(f *os.File, data []string) error {
	buf := new(bytes.Buffer)
	// Serialize: [Len uint32][Bytes]...
	var lenBuf [4]byte
	for _, s := range data {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf.Write(lenBuf[:])
		buf.WriteString(s)
	}
	return sw.compressAndWrite(f, buf.Bytes())
}

func (sw *SegmentWriter) compressAndWrite(f *os.File, raw []byte) error {
	compressed := sw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	// Write Compressed Size (uint32)
	if err := binary.Write(f, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}

	_, err := f.Write(compressed)
	return err
}

func (sw *SegmentWriter) writeFooter(f *os.File, rowCount uint32, minTs, maxTs int64) error {
	footer := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(footer[0:4], rowCount)
	binary.LittleEndian.PutUint64(footer[4:12], uint64(minTs))
	binary.LittleEndian.PutUint64(footer[12:20], uint64(maxTs))
	_, err := f.Write(footer)
	return err
}
