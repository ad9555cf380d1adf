package main

import (
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/tearncolour/SharkRadio/modem"
)

// PrometheusMetrics holds all Prometheus metric collectors for the
// demodulation pipeline and process resources. A nil *PrometheusMetrics
// is valid and records nothing, so tests can run without a registry.
type PrometheusMetrics struct {
	// Pipeline metrics (all with 'channel' label)
	framesTotal       *prometheus.CounterVec // Decoded frames (by channel, type, valid)
	blocksProcessed   *prometheus.CounterVec // IQ blocks demodulated
	blocksDropped     *prometheus.CounterVec // IQ blocks evicted from a full queue
	queueDepth        *prometheus.GaugeVec   // Current block queue depth
	workerPanics      *prometheus.CounterVec // Recovered worker panics
	demodTimingResets *prometheus.GaugeVec   // Cumulative symbol timing re-searches
	demodTimingMSE    *prometheus.GaugeVec   // Decision MSE of the last block
	parserResyncDrops *prometheus.GaugeVec   // Cumulative parser resync drops

	// Transmit metrics
	txBurstsTotal  *prometheus.CounterVec // Transmitted bursts (by signal type)
	txBurstSamples *prometheus.GaugeVec   // Samples in the last burst (by signal type)

	// Resource metrics
	goroutineCount   prometheus.Gauge // Current number of goroutines
	memoryAllocBytes prometheus.Gauge // Current memory allocated in bytes
	memoryHeapBytes  prometheus.Gauge // Current heap memory in bytes
	gcPauseSeconds   prometheus.Gauge // Last GC pause duration in seconds
	cpuPercent       prometheus.Gauge // System CPU utilization percentage
}

// NewPrometheusMetrics creates and registers all metric collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		framesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharkradio_frames_total",
				Help: "Total decoded frames by channel, command type and validity",
			},
			[]string{"channel", "type", "valid"},
		),
		blocksProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharkradio_blocks_processed_total",
				Help: "Total IQ blocks demodulated per channel",
			},
			[]string{"channel"},
		),
		blocksDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharkradio_blocks_dropped_total",
				Help: "Total IQ blocks evicted from a full queue per channel",
			},
			[]string{"channel"},
		),
		queueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharkradio_queue_depth",
				Help: "Current IQ block queue depth per channel",
			},
			[]string{"channel"},
		),
		workerPanics: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharkradio_worker_panics_total",
				Help: "Recovered demodulation worker panics per channel",
			},
			[]string{"channel"},
		),
		demodTimingResets: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharkradio_demod_timing_resets",
				Help: "Cumulative symbol timing offset re-searches per channel",
			},
			[]string{"channel"},
		),
		demodTimingMSE: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharkradio_demod_timing_mse",
				Help: "Symbol decision mean squared error of the last block",
			},
			[]string{"channel"},
		),
		parserResyncDrops: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharkradio_parser_resync_drops",
				Help: "Cumulative bytes or symbols dropped during frame resync per channel",
			},
			[]string{"channel"},
		),
		txBurstsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharkradio_tx_bursts_total",
				Help: "Total transmitted bursts by signal type",
			},
			[]string{"signal_type"},
		),
		txBurstSamples: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sharkradio_tx_burst_samples",
				Help: "Sample count of the last transmitted burst by signal type",
			},
			[]string{"signal_type"},
		),
		goroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharkradio_goroutines",
				Help: "Current number of goroutines",
			},
		),
		memoryAllocBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharkradio_memory_alloc_bytes",
				Help: "Current memory allocated in bytes",
			},
		),
		memoryHeapBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharkradio_memory_heap_bytes",
				Help: "Current heap memory in bytes",
			},
		),
		gcPauseSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharkradio_gc_pause_seconds",
				Help: "Last GC pause duration in seconds",
			},
		),
		cpuPercent: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharkradio_cpu_percent",
				Help: "System CPU utilization percentage",
			},
		),
	}
}

// FrameDecoded records one decoded frame
func (pm *PrometheusMetrics) FrameDecoded(channel, frameType string, valid bool) {
	if pm == nil {
		return
	}
	pm.framesTotal.WithLabelValues(channel, frameType, strconv.FormatBool(valid)).Inc()
}

// BlockProcessed records one demodulated IQ block
func (pm *PrometheusMetrics) BlockProcessed(channel string) {
	if pm == nil {
		return
	}
	pm.blocksProcessed.WithLabelValues(channel).Inc()
}

// BlockDropped records one IQ block evicted from a full queue
func (pm *PrometheusMetrics) BlockDropped(channel string) {
	if pm == nil {
		return
	}
	pm.blocksDropped.WithLabelValues(channel).Inc()
}

// QueueDepth records the current queue depth
func (pm *PrometheusMetrics) QueueDepth(channel string, depth int) {
	if pm == nil {
		return
	}
	pm.queueDepth.WithLabelValues(channel).Set(float64(depth))
}

// WorkerPanic records one recovered worker panic
func (pm *PrometheusMetrics) WorkerPanic(channel string) {
	if pm == nil {
		return
	}
	pm.workerPanics.WithLabelValues(channel).Inc()
}

// DemodTiming records the demodulator's timing recovery state
func (pm *PrometheusMetrics) DemodTiming(channel string, stats modem.Stats) {
	if pm == nil {
		return
	}
	pm.demodTimingResets.WithLabelValues(channel).Set(float64(stats.TimingResets))
	pm.demodTimingMSE.WithLabelValues(channel).Set(stats.LastMSE)
}

// ParserDrops records the parser's cumulative resync drop count
func (pm *PrometheusMetrics) ParserDrops(channel string, drops uint64) {
	if pm == nil {
		return
	}
	pm.parserResyncDrops.WithLabelValues(channel).Set(float64(drops))
}

// TXBurst records one transmitted burst
func (pm *PrometheusMetrics) TXBurst(signalType string, samples int) {
	if pm == nil {
		return
	}
	pm.txBurstsTotal.WithLabelValues(signalType).Inc()
	pm.txBurstSamples.WithLabelValues(signalType).Set(float64(samples))
}

// UpdateResourceMetrics refreshes goroutine and memory gauges
func (pm *PrometheusMetrics) UpdateResourceMetrics() {
	if pm == nil {
		return
	}
	pm.goroutineCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	pm.memoryAllocBytes.Set(float64(memStats.Alloc))
	pm.memoryHeapBytes.Set(float64(memStats.HeapAlloc))
	pm.gcPauseSeconds.Set(float64(memStats.PauseNs[(memStats.NumGC+255)%256]) / 1e9)

	// Interval 0 measures since the previous call.
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		pm.cpuPercent.Set(percentages[0])
	}
}

// StartResourceMetricsUpdater refreshes resource gauges periodically
// until the stop channel closes
func (pm *PrometheusMetrics) StartResourceMetricsUpdater(stopChan chan struct{}) {
	if pm == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stopChan:
				return
			case <-ticker.C:
				pm.UpdateResourceMetrics()
			}
		}
	}()
}

// MetricsHandler wraps the promhttp handler with the allowed-hosts
// check from the prometheus config
func MetricsHandler(cfg *PrometheusConfig) http.Handler {
	handler := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil || !cfg.IsIPAllowed(host) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
