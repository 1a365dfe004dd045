// Package sink provides batch-oriented neutron writers: CSV, newline
// delimited JSON, and SQLite. Each is a consumer of extract.NeutronIterator
// batches, mirroring the teacher's Writer/Close contract without owning the
// HDF5 output format (out of scope per spec.md).
package sink

import "github.com/next-exp/tpx3pipe/internal/extract"

// NeutronSink accepts successive batches of neutrons and is closed once at
// the end of a run, the way the teacher's *Writer is used in main.go.
type NeutronSink interface {
	WriteBatch(batch []extract.Neutron) error
	Close() error
}
