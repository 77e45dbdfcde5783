package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// HostMetrics is a scraped snapshot of the machine hosting the editor fleet.
// Editors are memory-hungry; the scraper lets the session distinguish host
// saturation from genuine test failures.
type HostMetrics struct {
	CPUPercent float64
	MemUsed    int64
	MemTotal   int64
	MemPercent float64
	Load1      float64

	LastUpdate time.Time
	Healthy    bool
	Error      string
}

// HostScraper polls a node_exporter endpoint. Uses atomic.Value for
// lock-free metric reads.
type HostScraper struct {
	url        string
	interval   time.Duration
	logger     *slog.Logger
	httpClient *http.Client

	metrics atomic.Value // *HostMetrics
}

// NewHostScraper creates a host metrics scraper. Returns nil if url is empty
// (feature disabled); callers may invoke methods on the nil scraper.
func NewHostScraper(url string, interval time.Duration, logger *slog.Logger) *HostScraper {
	if url == "" {
		return nil
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	s := &HostScraper{
		url:      url,
		interval: interval,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
	s.metrics.Store(&HostMetrics{
		Healthy: false,
		Error:   "not yet scraped",
	})
	return s
}

// Run polls until ctx is cancelled.
func (s *HostScraper) Run(ctx context.Context) {
	if s == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scrape()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scrape()
		}
	}
}

// Metrics returns the latest snapshot (thread-safe, lock-free).
func (s *HostScraper) Metrics() *HostMetrics {
	if s == nil {
		return nil
	}
	m := s.metrics.Load().(*HostMetrics)
	out := *m
	return &out
}

func (s *HostScraper) scrape() {
	m := &HostMetrics{LastUpdate: time.Now()}

	families, err := s.fetch()
	if err != nil {
		prev := s.metrics.Load().(*HostMetrics)
		m.CPUPercent = prev.CPUPercent
		m.MemUsed = prev.MemUsed
		m.MemTotal = prev.MemTotal
		m.MemPercent = prev.MemPercent
		m.Load1 = prev.Load1
		m.Healthy = false
		m.Error = err.Error()
		s.metrics.Store(m)
		s.logger.Debug("host_scrape_error", "url", s.url, "error", err)
		return
	}

	m.CPUPercent = extractCPUUsage(families)
	m.MemUsed, m.MemTotal, m.MemPercent = extractMemory(families)
	m.Load1 = extractGaugeValue(families, "node_load1")
	m.Healthy = true
	s.metrics.Store(m)
}

func (s *HostScraper) fetch() (map[string]*dto.MetricFamily, error) {
	resp, err := s.httpClient.Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	decoder := expfmt.NewDecoder(resp.Body, expfmt.NewFormat(expfmt.TypeTextPlain))
	families := make(map[string]*dto.MetricFamily)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}
	return families, nil
}

// extractCPUUsage computes (1 - idle/total) * 100 from node_cpu_seconds_total.
func extractCPUUsage(families map[string]*dto.MetricFamily) float64 {
	mf, ok := families["node_cpu_seconds_total"]
	if !ok {
		return 0
	}

	var totalCPU, idleCPU float64
	for _, metric := range mf.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "mode" {
				value := metric.GetCounter().GetValue()
				if label.GetValue() == "idle" {
					idleCPU += value
				}
				totalCPU += value
			}
		}
	}
	if totalCPU == 0 {
		return 0
	}
	return (1 - idleCPU/totalCPU) * 100
}

func extractMemory(families map[string]*dto.MetricFamily) (used, total int64, percent float64) {
	totalMF, ok := families["node_memory_MemTotal_bytes"]
	if !ok {
		return 0, 0, 0
	}
	availMF, ok := families["node_memory_MemAvailable_bytes"]
	if !ok {
		availMF, ok = families["node_memory_MemFree_bytes"]
		if !ok {
			return 0, 0, 0
		}
	}

	var totalBytes, availBytes float64
	if m := totalMF.GetMetric(); len(m) > 0 {
		totalBytes = m[0].GetGauge().GetValue()
	}
	if m := availMF.GetMetric(); len(m) > 0 {
		availBytes = m[0].GetGauge().GetValue()
	}

	total = int64(totalBytes)
	used = int64(totalBytes - availBytes)
	if total > 0 {
		percent = float64(used) / float64(total) * 100
	}
	return used, total, percent
}

func extractGaugeValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok {
		return 0
	}
	if m := mf.GetMetric(); len(m) > 0 {
		return m[0].GetGauge().GetValue()
	}
	return 0
}
