package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/platform/envutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

const namespace = "curator"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec

	passItems    *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	verdicts     *prometheus.CounterVec
	slots        *prometheus.CounterVec
	healthAlerts *prometheus.CounterVec
	readyItems   *prometheus.GaugeVec
	itemStates   *prometheus.GaugeVec
	runwayDays   prometheus.Gauge

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool { return envutil.Bool("METRICS_ENABLED", false) }

// Current returns the process metrics, or nil when disabled. Every method is
// nil-safe.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total",
			Help: "Executed job runs by type and final status.",
		}, []string{"job_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_run_duration_seconds",
			Help:    "Job run wall time by type.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"job_type"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_queue_depth",
			Help: "Job runs by status.",
		}, []string{"status"}),
		passItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pass_items_total",
			Help: "Items counted by batch pass summaries, by pass and outcome.",
		}, []string{"pass", "outcome"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pass_duration_seconds",
			Help:    "Batch pass wall time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pass"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dedup_verdicts_total",
			Help: "Duplicate detector verdicts by reason.",
		}, []string{"reason"}),
		slots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "schedule_slots_total",
			Help: "Scheduler slot outcomes.",
		}, []string{"status"}),
		healthAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "health_alerts_total",
			Help: "Queue health alerts raised, by severity and code.",
		}, []string{"severity", "code"}),
		readyItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ready_items",
			Help: "Approved, unscheduled, unpublished items per platform.",
		}, []string{"platform"}),
		itemStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "items",
			Help: "Items by approval state.",
		}, []string{"state"}),
		runwayDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "runway_days",
			Help: "Estimated days of ready content at the configured slots per day.",
		}),
		pgStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_pool",
			Help: "database/sql pool stats.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_up",
			Help: "1 when the alert bus redis answers PING.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_ping_seconds",
			Help: "Last redis PING latency.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.jobRuns, m.jobDuration, m.queueDepth,
		m.passItems, m.passDuration, m.verdicts, m.slots, m.healthAlerts,
		m.readyItems, m.itemStates, m.runwayDays,
		m.pgStats, m.redisUp, m.redisPing,
	)
	return m
}

// Handler serves the exposition format; 503 when metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.jobRuns.WithLabelValues(jobType, status).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(dur.Seconds())
}

// ObservePass records one pass summary; zero counts are skipped.
func (m *Metrics) ObservePass(pass string, counts map[string]int, dur time.Duration) {
	if m == nil {
		return
	}
	for outcome, n := range counts {
		if n > 0 {
			m.passItems.WithLabelValues(pass, outcome).Add(float64(n))
		}
	}
	m.passDuration.WithLabelValues(pass).Observe(dur.Seconds())
}

func (m *Metrics) IncVerdict(reason string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSlot(status string) {
	if m == nil {
		return
	}
	m.slots.WithLabelValues(status).Inc()
}

func (m *Metrics) IncHealthAlert(severity, code string) {
	if m == nil {
		return
	}
	m.healthAlerts.WithLabelValues(severity, code).Inc()
}

func (m *Metrics) SetRunway(days float64) {
	if m == nil {
		return
	}
	m.runwayDays.Set(days)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
				m.pgStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartQueueCollector samples job_run depth by status and the item pool by
// state and ready platform.
func (m *Metrics) StartQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.CollectQueue(ctx, db); err != nil && log != nil {
					log.Warn("metrics: queue collection failed", "error", err)
				}
			}
		}
	}()
}

type groupCount struct {
	Name  string
	Count int64
}

func (m *Metrics) CollectQueue(ctx context.Context, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	var jobs []groupCount
	if err := db.WithContext(ctx).Model(&types.JobRun{}).
		Select("status AS name, count(*) AS count").Group("status").Scan(&jobs).Error; err != nil {
		return err
	}
	m.queueDepth.Reset()
	for _, row := range jobs {
		m.queueDepth.WithLabelValues(row.Name).Set(float64(row.Count))
	}

	var states []groupCount
	if err := db.WithContext(ctx).Model(&types.ContentItem{}).
		Select("state AS name, count(*) AS count").Group("state").Scan(&states).Error; err != nil {
		return err
	}
	m.itemStates.Reset()
	for _, row := range states {
		m.itemStates.WithLabelValues(row.Name).Set(float64(row.Count))
	}

	var ready []groupCount
	if err := db.WithContext(ctx).Model(&types.ContentItem{}).
		Select("platform AS name, count(*) AS count").
		Where("state = ? AND slot_id IS NULL AND published_at IS NULL", types.StateApproved).
		Group("platform").Scan(&ready).Error; err != nil {
		return err
	}
	m.readyItems.Reset()
	for _, row := range ready {
		m.readyItems.WithLabelValues(row.Name).Set(float64(row.Count))
	}
	return nil
}
