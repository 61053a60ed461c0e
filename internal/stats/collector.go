package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks archive statistics using lock-free atomic counters.
// One collector may be shared by concurrent compress/decompress calls.
type Collector struct {
	startTime time.Time

	entries       atomic.Int64
	files         atomic.Int64
	dirs          atomic.Int64
	symlinks      atomic.Int64
	hardlinks     atomic.Int64
	clones        atomic.Int64
	skipped       atomic.Int64
	failed        atomic.Int64
	metaFailures  atomic.Int64
	bytesPayload  atomic.Int64
	bytesArchive  atomic.Int64
	archivesDone  atomic.Int64
	checksumsDone atomic.Int64

	// Ring buffer, written only by the presenter's Tick.
	mu         sync.Mutex
	throughput [ringSize]int64
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Entries          int64
	Files            int64
	Dirs             int64
	Symlinks         int64
	Hardlinks        int64
	Clones           int64
	Skipped          int64
	Failed           int64
	MetadataFailures int64
	PayloadBytes     int64
	ArchiveBytes     int64
	Archives         int64
	ChecksumsChecked int64
	Elapsed          time.Duration
}

// AddEntries counts archived or extracted entries of any type.
func (c *Collector) AddEntries(n int64)          { c.entries.Add(n) }
func (c *Collector) AddFiles(n int64)            { c.files.Add(n) }
func (c *Collector) AddDirs(n int64)             { c.dirs.Add(n) }
func (c *Collector) AddSymlinks(n int64)         { c.symlinks.Add(n) }
func (c *Collector) AddHardlinks(n int64)        { c.hardlinks.Add(n) }
func (c *Collector) AddClones(n int64)           { c.clones.Add(n) }
func (c *Collector) AddSkipped(n int64)          { c.skipped.Add(n) }
func (c *Collector) AddFailed(n int64)           { c.failed.Add(n) }
func (c *Collector) AddMetadataFailures(n int64) { c.metaFailures.Add(n) }
func (c *Collector) AddChecksums(n int64)        { c.checksumsDone.Add(n) }
func (c *Collector) AddArchives(n int64)         { c.archivesDone.Add(n) }

// AddPayloadBytes counts uncompressed file content moved through the engine.
func (c *Collector) AddPayloadBytes(n int64) { c.bytesPayload.Add(n) }

// AddArchiveBytes counts compressed bytes written to or read from archives.
func (c *Collector) AddArchiveBytes(n int64) { c.bytesArchive.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Entries:          c.entries.Load(),
		Files:            c.files.Load(),
		Dirs:             c.dirs.Load(),
		Symlinks:         c.symlinks.Load(),
		Hardlinks:        c.hardlinks.Load(),
		Clones:           c.clones.Load(),
		Skipped:          c.skipped.Load(),
		Failed:           c.failed.Load(),
		MetadataFailures: c.metaFailures.Load(),
		PayloadBytes:     c.bytesPayload.Load(),
		ArchiveBytes:     c.bytesArchive.Load(),
		Archives:         c.archivesDone.Load(),
		ChecksumsChecked: c.checksumsDone.Load(),
		Elapsed:          c.Elapsed(),
	}
}

// Tick records the payload byte delta into the ring buffer. Called once per
// second by the presenter.
func (c *Collector) Tick() {
	current := c.bytesPayload.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average payload bytes/sec over the last n samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// Throughput returns up to n per-second payload samples, oldest first.
func (c *Collector) Throughput(n int) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	out := make([]int64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		out[i] = c.throughput[idx]
	}
	return out
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// Ratio returns archive bytes per payload byte, or 0 before any payload.
func (s Snapshot) Ratio() float64 {
	if s.PayloadBytes == 0 {
		return 0
	}
	return float64(s.ArchiveBytes) / float64(s.PayloadBytes)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"entries=%d files=%d dirs=%d symlinks=%d hardlinks=%d clones=%d skipped=%d failed=%d payload=%d archive=%d",
		s.Entries, s.Files, s.Dirs, s.Symlinks, s.Hardlinks, s.Clones,
		s.Skipped, s.Failed, s.PayloadBytes, s.ArchiveBytes,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
