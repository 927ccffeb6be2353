package upload

import (
	"context"
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"

	"github.com/dmitrijs2005/uploadq/internal/logging"
)

// Monitor keeps upload stats. A nil *Monitor ignores every call.
type Monitor struct {
	sync.Mutex
	log        logging.Logger
	uploadDur  *movingaverage.MovingAverage
	throughput *movingaverage.MovingAverage
	uploaded   int
	failed     int
	canceled   int
	bytes      int64
}

// Stats is a point-in-time copy of the Monitor counters.
type Stats struct {
	Uploaded int
	Failed   int
	Canceled int
	Bytes    int64
	// AvgDuration is the moving average upload duration in milliseconds.
	AvgDuration float64
	// AvgThroughput is the moving average throughput in KiB/s.
	AvgThroughput float64
}

// NewMonitor averages over the last window uploads.
func NewMonitor(window int, log logging.Logger) *Monitor {
	if window <= 0 {
		window = 5
	}
	return &Monitor{
		log:        logging.OrNop(log),
		uploadDur:  movingaverage.New(window),
		throughput: movingaverage.New(window),
	}
}

func (m *Monitor) UploadCompleted(size int64, dur time.Duration) {
	if m == nil {
		return
	}
	m.Lock()
	defer m.Unlock()

	m.uploaded++
	m.bytes += size
	m.uploadDur.Add(float64(dur/time.Microsecond) / 1000.0)
	if secs := dur.Seconds(); secs > 0 {
		m.throughput.Add(float64(size) / 1024.0 / secs)
	}
}

func (m *Monitor) UploadFailed() {
	if m == nil {
		return
	}
	m.Lock()
	defer m.Unlock()
	m.failed++
}

func (m *Monitor) UploadCanceled() {
	if m == nil {
		return
	}
	m.Lock()
	defer m.Unlock()
	m.canceled++
}

func (m *Monitor) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	m.Lock()
	defer m.Unlock()
	return Stats{
		Uploaded:      m.uploaded,
		Failed:        m.failed,
		Canceled:      m.canceled,
		Bytes:         m.bytes,
		AvgDuration:   m.uploadDur.Avg(),
		AvgThroughput: m.throughput.Avg(),
	}
}

// Run logs the stats every period until ctx is done.
func (m *Monitor) Run(ctx context.Context, period time.Duration) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Stats()
			m.log.Info(ctx, "upload stats",
				"uploaded", s.Uploaded,
				"failed", s.Failed,
				"canceled", s.Canceled,
				"bytes", s.Bytes,
				"avg_duration_ms", s.AvgDuration,
				"avg_throughput_kibs", s.AvgThroughput,
			)
		}
	}
}
