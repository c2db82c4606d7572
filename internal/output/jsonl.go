// Package output writes enriched chunks as JSON Lines and Markdown and reads
// JSON Lines back.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dgallion1/legichunk/internal/doctree"
)

// maxLine bounds a single JSONL record when reading.
const maxLine = 8 * 1024 * 1024

// JSONLWriter writes one chunk per line. Output is UTF-8 with no HTML
// escaping, so accented text stays readable.
type JSONLWriter struct {
	bw    *bufio.Writer
	enc   *json.Encoder
	count int
}

// NewJSONLWriter wraps w. Call Flush when done.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{bw: bw, enc: enc}
}

// Write appends one record.
func (w *JSONLWriter) Write(c doctree.Chunk) error {
	if c.HierarchyPath == nil {
		c.HierarchyPath = []string{}
	}
	if err := w.enc.Encode(c); err != nil {
		return fmt.Errorf("encode chunk %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// WriteAll appends every chunk in order.
func (w *JSONLWriter) WriteAll(chunks []doctree.Chunk) error {
	for _, c := range chunks {
		if err := w.Write(c); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of records written.
func (w *JSONLWriter) Count() int { return w.count }

// Flush writes buffered data to the underlying writer.
func (w *JSONLWriter) Flush() error { return w.bw.Flush() }

// WriteFile fills path through a temporary file in the same
// directory, so readers never see a partial file.
func WriteFile(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// WriteJSONLFile writes chunks to a .jsonl file at path.
func WriteJSONLFile(path string, chunks []doctree.Chunk) error {
	return WriteFile(path, func(f io.Writer) error {
		w := NewJSONLWriter(f)
		if err := w.WriteAll(chunks); err != nil {
			return err
		}
		return w.Flush()
	})
}

// ReadJSONL streams records from r. fn receives the 1-based line number and
// either the decoded chunk or the decode error for that line; returning an
// error from fn stops the scan. Blank lines are skipped.
func ReadJSONL(r io.Reader, fn func(line int, c doctree.Chunk, err error) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var c doctree.Chunk
		decodeErr := json.Unmarshal(b, &c)
		if err := fn(line, c, decodeErr); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read line %d: %w", line+1, err)
	}
	return nil
}

// ReadJSONLFile loads every valid record of a file, failing on the first
// malformed line.
func ReadJSONLFile(path string) ([]doctree.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []doctree.Chunk
	err = ReadJSONL(f, func(line int, c doctree.Chunk, err error) error {
		if err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		out = append(out, c)
		return nil
	})
	return out, err
}
