package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry so several servers (tests) can live in one process.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	logins    *prometheus.CounterVec
	decisions *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_logins_total",
			Help: "Login attempts by outcome and dashboard route.",
		}, []string{"outcome", "route"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_role_decisions_total",
			Help: "Role request decisions by requested role and outcome.",
		}, []string{"role", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.logins, m.decisions,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			// handle the error here so the status code is final
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}
			code := strconv.Itoa(ctx.Response().Status)
			m.requests.WithLabelValues(ctx.Request().Method, ctx.Path(), code).Inc()
			return nil
		}
	}
}

func (m *Metrics) loginDone(outcome, route string) {
	m.logins.WithLabelValues(outcome, route).Inc()
}

func (m *Metrics) decisionDone(role, outcome string) {
	m.decisions.WithLabelValues(role, outcome).Inc()
}
