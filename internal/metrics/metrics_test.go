package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/hsplines/pkg/bspline"
	"github.com/nainya/hsplines/pkg/hbasis"
)

// sampleCount sums the observation counts of the named histogram family
func sampleCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var n uint64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			n += m.GetHistogram().GetSampleCount()
		}
	}
	return n
}

func TestObserverReceivesRebuilds(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	tb, err := bspline.NewTensorBasis(bspline.MustBasis(bspline.Clamped(0, 1, 3, 1), 1))
	require.NoError(t, err)
	b := hbasis.New(tb, hbasis.WithMode(hbasis.Truncated), hbasis.WithObserver(m))
	snap := b.Snapshot()
	b.RefineElements(hbasis.IndexBox{Level: 1, Lower: []int{0}, Upper: []int{2}})
	b.TransferFor(snap)

	// construction and refinement each rebuild once
	assert.Equal(t, uint64(2), sampleCount(t, reg, "hsplines_rebuild_duration_seconds"))
	assert.Equal(t, uint64(2), sampleCount(t, reg, "hsplines_basis_size_functions"))
	assert.Equal(t, uint64(1), sampleCount(t, reg, "hsplines_transfer_duration_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TransferNonZeros))
}

func TestRecordCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordGrpcRequest("/hsplines.HBasis/Info", "OK", time.Millisecond)
	m.RecordGrpcRequest("/hsplines.HBasis/Info", "OK", time.Millisecond)
	m.RecordRefinement("refine", hbasis.Hierarchical)
	m.RecordJournalEntry("REFINE", nil)
	m.RecordJournalEntry("REFINE", assert.AnError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GrpcRequestsTotal.WithLabelValues("/hsplines.HBasis/Info", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefinementsTotal.WithLabelValues("refine", "HBSplineBasis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JournalEntriesTotal.WithLabelValues("REFINE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JournalErrorsTotal))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.ServerUptimeSeconds), 0.0)
}

func TestSeparateRegistries(t *testing.T) {
	// registering twice on distinct registries must not panic
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
