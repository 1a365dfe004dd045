package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/next-exp/tpx3pipe/internal/extract"
)

// NDJSONSink writes one JSON object per neutron per line.
type NDJSONSink struct {
	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

type neutronRecord struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	ToF    uint32  `json:"tof"`
	ToT    uint16  `json:"tot"`
	NHits  uint16  `json:"n_hits"`
	ChipID uint8   `json:"chip_id"`
}

// NewNDJSONSink creates (truncating) filename for newline-delimited JSON output.
func NewNDJSONSink(filename string) (*NDJSONSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	w := bufio.NewWriter(f)
	return &NDJSONSink{file: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (s *NDJSONSink) WriteBatch(batch []extract.Neutron) error {
	for _, n := range batch {
		rec := neutronRecord{X: n.X, Y: n.Y, ToF: n.ToF, ToT: n.ToT, NHits: n.NHits, ChipID: n.ChipID}
		if err := s.enc.Encode(rec); err != nil {
			return fmt.Errorf("sink: writing ndjson record: %w", err)
		}
	}
	return nil
}

func (s *NDJSONSink) Close() error {
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	return errors.Join(flushErr, closeErr)
}
