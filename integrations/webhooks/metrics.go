package webhooks

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "salechain/webhooks"

type deliveryMetrics struct {
	delivered metric.Int64Counter
	abandoned metric.Int64Counter
	retries   metric.Int64Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *deliveryMetrics
)

func webhookMetrics() *deliveryMetrics {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(meterName)
		fallback := noop.NewMeterProvider().Meter(meterName)
		counter := func(name, desc string) metric.Int64Counter {
			c, err := meter.Int64Counter(name, metric.WithDescription(desc))
			if err != nil {
				c, _ = fallback.Int64Counter(name)
			}
			return c
		}
		sharedMetrics = &deliveryMetrics{
			delivered: counter("sale.webhooks.delivered", "Webhook deliveries acknowledged by the endpoint."),
			abandoned: counter("sale.webhooks.abandoned", "Webhook deliveries dropped after the final attempt."),
			retries:   counter("sale.webhooks.retries", "Webhook delivery attempts that were retried."),
		}
	})
	return sharedMetrics
}

func (m *deliveryMetrics) record(c metric.Int64Counter, eventType string) {
	if m == nil || c == nil {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", eventType)))
}
