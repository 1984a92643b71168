package driver

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// lineBufferSize is the output writer's buffer size (spec §4.6: "a buffered
// writer (1 GiB buffer)").
const lineBufferSize = 1 << 30

// progressInterval is how often the writer logs how many lines it has
// flushed (spec §4.6: "Every 100 000 lines the writer logs progress").
const progressInterval = 100000

// ndjsonWriter appends one JSON object per line to a file, flushing a large
// buffer only at Close. Grounded on markduplicates.generateBAM's buffered
// output-stream setup, generalized from a BAM/bgzf stream to newline-
// delimited JSON.
type ndjsonWriter struct {
	name string
	f    *os.File
	bw   *bufio.Writer
	n    int
}

func newNDJSONWriter(path, name string) (*ndjsonWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "driver: create %s", path)
	}
	return &ndjsonWriter{
		name: name,
		f:    f,
		bw:   bufio.NewWriterSize(f, lineBufferSize),
	}, nil
}

func (w *ndjsonWriter) WriteValue(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "driver: marshal %s record", w.name)
	}
	if _, err := w.bw.Write(b); err != nil {
		return errors.Wrapf(err, "driver: write %s", w.name)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return errors.Wrapf(err, "driver: write %s", w.name)
	}
	w.n++
	if w.n%progressInterval == 0 {
		vlog.Infof("%s: wrote %d lines", w.name, w.n)
	}
	return nil
}

// Count returns the number of records written so far.
func (w *ndjsonWriter) Count() int { return w.n }

func (w *ndjsonWriter) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return errors.Wrapf(err, "driver: flush %s", w.name)
	}
	vlog.Infof("%s: done, %d lines total", w.name, w.n)
	return w.f.Close()
}
