package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range opsPerGoroutine {
				c.AddEntries(1)
				c.AddFiles(1)
				c.AddDirs(1)
				c.AddHardlinks(1)
				c.AddClones(1)
				c.AddSkipped(1)
				c.AddPayloadBytes(256)
				c.AddArchiveBytes(64)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.Entries)
	assert.Equal(t, expected, s.Files)
	assert.Equal(t, expected, s.Dirs)
	assert.Equal(t, expected, s.Hardlinks)
	assert.Equal(t, expected, s.Clones)
	assert.Equal(t, expected, s.Skipped)
	assert.Equal(t, expected*256, s.PayloadBytes)
	assert.Equal(t, expected*64, s.ArchiveBytes)
	assert.InDelta(t, 0.25, s.Ratio(), 0.0001)
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		Entries:      10,
		Files:        6,
		Dirs:         2,
		Symlinks:     1,
		Hardlinks:    1,
		Skipped:      1,
		PayloadBytes: 4096,
		ArchiveBytes: 1024,
	}
	expected := "entries=10 files=6 dirs=2 symlinks=1 hardlinks=1 clones=0 skipped=1 failed=0 payload=4096 archive=1024"
	assert.Equal(t, expected, s.String())
}

func TestRatioNoPayload(t *testing.T) {
	assert.Zero(t, Snapshot{ArchiveBytes: 10}.Ratio())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatBytes(tt.input))
		})
	}
}

func TestTickAndRollingSpeed(t *testing.T) {
	c := NewCollector()
	for range 5 {
		c.AddPayloadBytes(1000)
		c.Tick()
	}
	assert.InDelta(t, 1000.0, c.RollingSpeed(5), 0.01)
	// Asking for more samples than recorded averages what exists.
	assert.InDelta(t, 1000.0, c.RollingSpeed(30), 0.01)
}

func TestRollingSpeedNoSamples(t *testing.T) {
	c := NewCollector()
	assert.Zero(t, c.RollingSpeed(5))
}

func TestRingWraparound(t *testing.T) {
	c := NewCollector()
	for range ringSize + 10 {
		c.AddPayloadBytes(10)
		c.Tick()
	}
	assert.InDelta(t, 10.0, c.RollingSpeed(ringSize), 0.01)
}

func TestSnapshotIncludesElapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, c.Snapshot().Elapsed, time.Duration(0))
}

func TestThroughputOrder(t *testing.T) {
	c := NewCollector()
	for _, n := range []int64{10, 20, 30} {
		c.AddPayloadBytes(n)
		c.Tick()
	}
	assert.Equal(t, []int64{10, 20, 30}, c.Throughput(5))
	assert.Equal(t, []int64{20, 30}, c.Throughput(2))
	assert.Empty(t, NewCollector().Throughput(4))
}
