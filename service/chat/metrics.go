package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 同步器指标。所有方法对 nil 接收者安全。
type Metrics struct {
	sessionsOpened prometheus.Counter
	reconnects     prometheus.Counter
	reconciled     *prometheus.CounterVec
	sends          *prometheus.CounterVec
	droppedFrames  prometheus.Counter
	connected      prometheus.Gauge
}

// NewMetrics 注册到 reg；reg 为 nil 时使用默认注册表。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskchat", Name: "sessions_opened_total",
			Help: "Push sessions opened.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskchat", Name: "reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a non-intentional close or error.",
		}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskchat", Name: "messages_reconciled_total",
			Help: "Inbound messages by reconcile outcome.",
		}, []string{"outcome"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskchat", Name: "sends_total",
			Help: "Outbound sends by delivery path.",
		}, []string{"path"}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskchat", Name: "frames_dropped_total",
			Help: "Malformed or unrecognised push frames.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deskchat", Name: "connected",
			Help: "1 while the active session is connected.",
		}),
	}
	reg.MustRegister(m.sessionsOpened, m.reconnects, m.reconciled, m.sends, m.droppedFrames, m.connected)
	return m
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessionsOpened.Inc()
	}
}

func (m *Metrics) ReconnectScheduled() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) Reconciled(outcome string) {
	if m != nil {
		m.reconciled.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Sent(path string) {
	if m != nil {
		m.sends.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.droppedFrames.Inc()
	}
}

func (m *Metrics) SetConnected(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
