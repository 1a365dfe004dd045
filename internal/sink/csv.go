package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/next-exp/tpx3pipe/internal/extract"
)

// CSVSink writes neutrons as comma-separated rows, one header line followed
// by one line per neutron.
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
	wrote  bool
}

var csvHeader = []string{"x", "y", "tof", "tot", "n_hits", "chip_id"}

// NewCSVSink creates (truncating) filename and writes the CSV header.
func NewCSVSink(filename string) (*CSVSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: writing csv header: %w", err)
	}
	return &CSVSink{file: f, writer: w}, nil
}

func (s *CSVSink) WriteBatch(batch []extract.Neutron) error {
	for _, n := range batch {
		row := []string{
			strconv.FormatFloat(n.X, 'f', -1, 64),
			strconv.FormatFloat(n.Y, 'f', -1, 64),
			strconv.FormatUint(uint64(n.ToF), 10),
			strconv.FormatUint(uint64(n.ToT), 10),
			strconv.FormatUint(uint64(n.NHits), 10),
			strconv.FormatUint(uint64(n.ChipID), 10),
		}
		if err := s.writer.Write(row); err != nil {
			return fmt.Errorf("sink: writing csv row: %w", err)
		}
	}
	s.wrote = true
	return nil
}

func (s *CSVSink) Close() error {
	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	return errors.Join(flushErr, closeErr)
}

// ErrOpenFile mirrors the teacher's named-error-struct idiom.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}
