package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotEmptyBeforeAnyTrade(t *testing.T) {
	tr := NewTracker()
	snap := tr.Snapshot("AAPL")
	assert.Equal(t, 0, snap.SampleSz)
	assert.Zero(t, snap.SMA)
}

func TestSnapshotComputesMeanAndStdDev(t *testing.T) {
	tr := NewTracker()
	for _, p := range []float64{100, 102, 98, 101, 99} {
		tr.OnTrade("AAPL", p)
	}
	snap := tr.Snapshot("AAPL")
	assert.Equal(t, 5, snap.SampleSz)
	assert.InDelta(t, 100, snap.Mean, 0.5)
	assert.InDelta(t, 1.5811, snap.StdDev, 0.001)
}

func TestSnapshotSMARequiresFullPeriod(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 10; i++ {
		tr.OnTrade("AAPL", 100)
	}
	snap := tr.Snapshot("AAPL")
	assert.Zero(t, snap.SMA, "fewer than smaPeriod samples yields no SMA yet")

	for i := 0; i < 10; i++ {
		tr.OnTrade("AAPL", 100)
	}
	snap = tr.Snapshot("AAPL")
	assert.InDelta(t, 100, snap.SMA, 0.01)
}

func TestWindowIsBounded(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < windowSize+20; i++ {
		tr.OnTrade("AAPL", float64(i))
	}
	snap := tr.Snapshot("AAPL")
	assert.Equal(t, windowSize, snap.SampleSz)
}
