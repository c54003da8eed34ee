// Package metrics wires github.com/VictoriaMetrics/metrics counters and
// histograms around the operations that are interesting to observe from
// outside: how often inserts succeed or find their shard full, how often a
// slot's generation wraps, and how much work each EBR reclamation pass does.
package metrics

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Set groups every counter and histogram for one Idr instance under its own
// metrics.Set, so that a process hosting several Idrs can expose them
// separately rather than colliding on global metric names.
type Set struct {
	set *metrics.Set

	Inserts            *metrics.Counter
	InsertCapacityFull *metrics.Counter
	Removes            *metrics.Counter
	RemoveMisses       *metrics.Counter
	Gets               *metrics.Counter
	GetMisses          *metrics.Counter
	GenerationWraps    *metrics.Counter
	ReclaimBatchSize   *metrics.Histogram
}

// New creates a Set whose metrics carry the given name as an idr label, e.g.
// `idr_inserts_total{idr="<name>"}`.
func New(name string) *Set {
	set := metrics.NewSet()
	s := &Set{
		set:                set,
		Inserts:            set.NewCounter(`idr_inserts_total{idr="` + name + `"}`),
		InsertCapacityFull: set.NewCounter(`idr_insert_capacity_full_total{idr="` + name + `"}`),
		Removes:            set.NewCounter(`idr_removes_total{idr="` + name + `"}`),
		RemoveMisses:       set.NewCounter(`idr_remove_misses_total{idr="` + name + `"}`),
		Gets:               set.NewCounter(`idr_gets_total{idr="` + name + `"}`),
		GetMisses:          set.NewCounter(`idr_get_misses_total{idr="` + name + `"}`),
		GenerationWraps:    set.NewCounter(`idr_generation_wraps_total{idr="` + name + `"}`),
		ReclaimBatchSize:   set.NewHistogram(`idr_reclaim_batch_size{idr="` + name + `"}`),
	}
	return s
}

// WritePrometheus appends this Set's metrics in Prometheus exposition
// format, for use by a caller that exports /metrics itself.
func (s *Set) WritePrometheus(w io.Writer) {
	s.set.WritePrometheus(w)
}
