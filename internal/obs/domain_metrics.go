package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PurchaseTotal counts purchase resolution outcomes (created, cached, unconfigured, error).
	PurchaseTotal *prometheus.CounterVec
	// NotificationTotal counts inbound notification outcomes by action.
	NotificationTotal *prometheus.CounterVec
	// StatusProjectionTotal counts order status projections.
	StatusProjectionTotal *prometheus.CounterVec
	// ReconcileTotal counts reconciliation task outcomes.
	ReconcileTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PurchaseTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chipin_purchase_total",
			Help:      "Count of checkout redirect resolutions by outcome.",
		}, []string{"result"})
		NotificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chipin_notification_total",
			Help:      "Count of inbound Chip In notifications by action and outcome.",
		}, []string{"action", "result"})
		StatusProjectionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chipin_status_projection_total",
			Help:      "Count of order status projections by target status and outcome.",
		}, []string{"status", "result"})
		ReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chipin_reconcile_total",
			Help:      "Count of purchase reconciliation runs by outcome.",
		}, []string{"result"})

		for _, vec := range []**prometheus.CounterVec{&PurchaseTotal, &NotificationTotal, &StatusProjectionTotal, &ReconcileTotal} {
			target := vec
			mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*target = v
				}
			})
		}
	})
}

// IncPurchase records a purchase outcome when domain metrics are registered.
func IncPurchase(result string) {
	incVec(PurchaseTotal, result)
}

// IncNotification records an inbound notification outcome.
func IncNotification(action, result string) {
	incVec(NotificationTotal, action, result)
}

// IncStatusProjection records a status projection outcome.
func IncStatusProjection(status, result string) {
	incVec(StatusProjectionTotal, status, result)
}

// IncReconcile records a reconciliation outcome.
func IncReconcile(result string) {
	incVec(ReconcileTotal, result)
}

func incVec(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("obs: register collector: %w", err))
	}
}
