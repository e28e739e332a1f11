package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标。所有 Record* 方法对 nil 接收者安全，
// 便于在测试中省略指标装配。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮箱分配指标
	AllocationsTotal    prometheus.Counter
	AllocationsFailed   prometheus.Counter
	AllocationAttempts  prometheus.Histogram
	AllocationExhausted prometheus.Counter

	// 邮件指标
	MessagesIngested  prometheus.Counter
	MessagesRejected  prometheus.Counter
	IngestionDuration prometheus.Histogram

	// 过期回收指标
	RecordsSwept        prometheus.Counter
	ReconcileFailures   *prometheus.CounterVec
	ReconcileNotifies   prometheus.Counter
	RegistryRevocations prometheus.Counter
	BodyBlobDeletions   prometheus.Counter

	// SMTP 指标
	SMTPConnections      prometheus.Counter
	SMTPRecipientsDenied prometheus.Counter
	SMTPMessagesAccepted prometheus.Counter

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标。
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driftmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		AllocationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_allocations_total",
				Help: "Total number of successful address allocations",
			},
		),

		AllocationsFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_allocations_failed_total",
				Help: "Total number of failed address allocations",
			},
		),

		AllocationAttempts: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "driftmail_allocation_attempts",
				Help:    "Number of attempts per successful allocation",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),

		AllocationExhausted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_allocations_exhausted_total",
				Help: "Total number of allocations that ran out of attempts",
			},
		),

		MessagesIngested: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_messages_ingested_total",
				Help: "Total number of messages ingested",
			},
		),

		MessagesRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_messages_rejected_total",
				Help: "Total number of inbound messages rejected",
			},
		),

		IngestionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "driftmail_ingestion_duration_seconds",
				Help:    "Message ingestion duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		RecordsSwept: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_records_swept_total",
				Help: "Total number of expired records removed by the janitor",
			},
		),

		ReconcileFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftmail_reconcile_failures_total",
				Help: "Total number of reconciliation failures",
			},
			[]string{"kind"},
		),

		ReconcileNotifies: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_reconcile_notifications_total",
				Help: "Total number of removal notifications processed",
			},
		),

		RegistryRevocations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_registry_revocations_total",
				Help: "Total number of addresses revoked from the recipient registry",
			},
		),

		BodyBlobDeletions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_body_blob_deletions_total",
				Help: "Total number of body blobs deleted",
			},
		),

		SMTPConnections: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_smtp_connections_total",
				Help: "Total number of SMTP connections accepted",
			},
		),

		SMTPRecipientsDenied: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_smtp_recipients_denied_total",
				Help: "Total number of recipients rejected at RCPT",
			},
		),

		SMTPMessagesAccepted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_smtp_messages_accepted_total",
				Help: "Total number of messages accepted over SMTP",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftmail_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "driftmail_panics_total",
				Help: "Total number of panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标。
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAllocation 记录一次成功分配及其消耗的尝试次数。
func (m *Metrics) RecordAllocation(attempts int) {
	if m == nil {
		return
	}
	m.AllocationsTotal.Inc()
	m.AllocationAttempts.Observe(float64(attempts))
}

// RecordAllocationFailed 记录一次分配失败。
func (m *Metrics) RecordAllocationFailed(exhausted bool) {
	if m == nil {
		return
	}
	m.AllocationsFailed.Inc()
	if exhausted {
		m.AllocationExhausted.Inc()
	}
}

// RecordMessageIngested 记录一封邮件入库。
func (m *Metrics) RecordMessageIngested(duration time.Duration) {
	if m == nil {
		return
	}
	m.MessagesIngested.Inc()
	m.IngestionDuration.Observe(duration.Seconds())
}

// RecordMessageRejected 记录一封入站邮件被拒。
func (m *Metrics) RecordMessageRejected() {
	if m == nil {
		return
	}
	m.MessagesRejected.Inc()
}

// RecordSweep 记录清扫删除的记录数。
func (m *Metrics) RecordSweep(removed int) {
	if m == nil {
		return
	}
	m.RecordsSwept.Add(float64(removed))
}

// RecordReconcileNotification 记录一条回收通知被处理。
func (m *Metrics) RecordReconcileNotification() {
	if m == nil {
		return
	}
	m.ReconcileNotifies.Inc()
}

// RecordReconcileFailure 记录一次回收处理失败。
func (m *Metrics) RecordReconcileFailure(kind string) {
	if m == nil {
		return
	}
	m.ReconcileFailures.WithLabelValues(kind).Inc()
}

// RecordRegistryRevocation 记录一次收件人吊销。
func (m *Metrics) RecordRegistryRevocation() {
	if m == nil {
		return
	}
	m.RegistryRevocations.Inc()
}

// RecordBodyBlobDeletion 记录一次正文对象删除。
func (m *Metrics) RecordBodyBlobDeletion() {
	if m == nil {
		return
	}
	m.BodyBlobDeletions.Inc()
}

// RecordSMTPConnection 记录一次 SMTP 连接。
func (m *Metrics) RecordSMTPConnection() {
	if m == nil {
		return
	}
	m.SMTPConnections.Inc()
}

// RecordSMTPRecipientDenied 记录一次 RCPT 拒收。
func (m *Metrics) RecordSMTPRecipientDenied() {
	if m == nil {
		return
	}
	m.SMTPRecipientsDenied.Inc()
}

// RecordSMTPMessageAccepted 记录一封 SMTP 邮件被接收。
func (m *Metrics) RecordSMTPMessageAccepted() {
	if m == nil {
		return
	}
	m.SMTPMessagesAccepted.Inc()
}

// RecordError 记录错误。
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic。
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器。
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
