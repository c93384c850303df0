// Package output provides adapters for writing application output.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// Writer writes the reference build id to stdout and the resolution trail
// to stderr. In JSON mode the whole outcome is written to stdout instead.
type Writer struct {
	out  io.Writer
	err  io.Writer
	json bool
}

var _ domain.OutputWriter = (*Writer)(nil)

// NewWriter creates a new Writer that writes to stdout and stderr.
func NewWriter() *Writer {
	return &Writer{out: os.Stdout, err: os.Stderr}
}

// NewWriterWithOutput creates a new Writer with custom output destinations.
// This is useful for testing.
func NewWriterWithOutput(out, errOut io.Writer) *Writer {
	return &Writer{out: out, err: errOut}
}

// JSON switches the writer to emit the reference build as a JSON document.
func (w *Writer) JSON() *Writer {
	return &Writer{out: w.out, err: w.err, json: true}
}

// WriteReference writes the reference build id, or "-" when none was found,
// as a single line without any prefix or formatting.
func (w *Writer) WriteReference(ref domain.ReferenceBuild) error {
	if w.json {
		enc := json.NewEncoder(w.out)
		return enc.Encode(ref)
	}
	_, err := fmt.Fprintln(w.out, ref.ReferenceBuildIDOrPlaceholder())
	return err
}

// WriteTrail writes every message of the resolution trail on its own line.
// The trail is part of the JSON document in JSON mode.
func (w *Writer) WriteTrail(ref domain.ReferenceBuild) error {
	if w.json {
		return nil
	}
	for _, msg := range ref.Messages {
		if _, err := fmt.Fprintln(w.err, msg); err != nil {
			return err
		}
	}
	return nil
}
