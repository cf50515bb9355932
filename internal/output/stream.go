package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// StreamWriter appends records as JSON lines. Paths ending in .gz are
// written as one gzip member per open; readers concatenate members.
type StreamWriter struct {
	mu   sync.Mutex
	file *os.File
	gz   *gzip.Writer
	buf  *bufio.Writer
	enc  *json.Encoder
}

func OpenStream(path string) (*StreamWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open record stream: %w", err)
	}

	w := &StreamWriter{file: f}
	var out io.Writer = f
	if isGzip(path) {
		w.gz = gzip.NewWriter(f)
		out = w.gz
	}
	w.buf = bufio.NewWriter(out)
	w.enc = json.NewEncoder(w.buf)
	return w, nil
}

// Write encodes rec and flushes it, so a crash loses at most the record in
// flight.
func (w *StreamWriter) Write(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.gz != nil {
		return w.gz.Flush()
	}
	return nil
}

func (w *StreamWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	errs := []error{w.buf.Flush()}
	if w.gz != nil {
		errs = append(errs, w.gz.Close())
	}
	errs = append(errs, w.file.Close())
	return errors.Join(errs...)
}

// ReadStream decodes records from r until EOF. A truncated final record,
// left by an interrupted writer, ends the stream without error.
func ReadStream(r io.Reader, fn func(*Record) error) error {
	dec := json.NewDecoder(r)
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
}

// ReadFile reads a record stream from path, decompressing .gz files.
func ReadFile(path string, fn func(*Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if isGzip(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return ReadStream(r, fn)
}

func isGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}
