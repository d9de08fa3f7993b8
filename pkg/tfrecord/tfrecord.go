// Package tfrecord reads and writes the TFRecord container format.
//
// Each record is framed as:
//
//	uint64 length (little endian)
//	uint32 masked crc32c of the length bytes
//	byte   data[length]
//	uint32 masked crc32c of the data
package tfrecord

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"iter"
	"os"
)

const (
	headerSize = 8 + 4
	footerSize = 4
	maskDelta  = 0xa282ead8

	// Records larger than this are treated as corruption rather than
	// attempting a huge allocation.
	maxRecordSize = 1 << 30
)

// ErrCorrupt is returned when a record fails its checksum.
var ErrCorrupt = errors.New("tfrecord: corrupt record")

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC(b []byte) uint32 {
	c := crc32.Checksum(b, crcTable)
	return ((c >> 15) | (c << 17)) + maskDelta
}

// Writer appends framed records to an underlying stream.
type Writer struct {
	w      *bufio.Writer
	file   *os.File // nil unless created via Create
	header [headerSize]byte
	footer [footerSize]byte
	count  int64
}

// NewWriter returns a Writer that frames records onto w. Close flushes but
// does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<20)}
}

// Create truncates or creates the file at path and returns a Writer for it.
// Close flushes, syncs and closes the file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating record file: %w", err)
	}
	w := NewWriter(f)
	w.file = f
	return w, nil
}

// Write appends a single record.
func (w *Writer) Write(data []byte) error {
	binary.LittleEndian.PutUint64(w.header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(w.header[8:], maskedCRC(w.header[:8]))
	binary.LittleEndian.PutUint32(w.footer[:], maskedCRC(data))

	if _, err := w.w.Write(w.header[:]); err != nil {
		return fmt.Errorf("writing record header: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("writing record data: %w", err)
	}
	if _, err := w.w.Write(w.footer[:]); err != nil {
		return fmt.Errorf("writing record footer: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int64 {
	return w.count
}

// Close flushes buffered records. If the Writer owns a file, the file is
// synced to stable storage and closed.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		if w.file != nil {
			return errors.Join(fmt.Errorf("flushing records: %w", err), w.file.Close())
		}
		return fmt.Errorf("flushing records: %w", err)
	}
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return errors.Join(fmt.Errorf("syncing record file: %w", err), w.file.Close())
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing record file: %w", err)
	}
	return nil
}

// Reader reads framed records from an underlying stream.
type Reader struct {
	r      *bufio.Reader
	header [headerSize]byte
	footer [footerSize]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 1<<20)}
}

// Next returns the next record. It returns io.EOF when the stream ends
// cleanly between records and io.ErrUnexpectedEOF when it ends mid-record.
func (r *Reader) Next() ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading record header: %w", err)
	}
	if maskedCRC(r.header[:8]) != binary.LittleEndian.Uint32(r.header[8:]) {
		return nil, fmt.Errorf("record length checksum mismatch: %w", ErrCorrupt)
	}
	n := binary.LittleEndian.Uint64(r.header[:8])
	if n > maxRecordSize {
		return nil, fmt.Errorf("record length %d exceeds limit: %w", n, ErrCorrupt)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, fmt.Errorf("reading record data: %w", noEOF(err))
	}
	if _, err := io.ReadFull(r.r, r.footer[:]); err != nil {
		return nil, fmt.Errorf("reading record footer: %w", noEOF(err))
	}
	if maskedCRC(data) != binary.LittleEndian.Uint32(r.footer[:]) {
		return nil, fmt.Errorf("record data checksum mismatch: %w", ErrCorrupt)
	}
	return data, nil
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Records iterates over every record in r, stopping at the first error.
func Records(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		rr := NewReader(r)
		for {
			rec, err := rr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// ReadFile reads every record in the file at path.
func ReadFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening record file: %w", err)
	}
	defer f.Close()

	var records [][]byte
	for rec, err := range Records(f) {
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// CountFile counts the records in the file at path, validating checksums.
func CountFile(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening record file: %w", err)
	}
	defer f.Close()

	var n int64
	for _, err := range Records(f) {
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", path, err)
		}
		n++
	}
	return n, nil
}
