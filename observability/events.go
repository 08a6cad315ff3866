package observability

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"salechain/core/events"
	"salechain/core/types"
	"salechain/native/crowdsale"
)

// SaleMetrics counts committed crowdsale activity.
type SaleMetrics struct {
	events      *prometheus.CounterVec
	created     prometheus.Counter
	purchases   prometheus.Counter
	tokensSold  prometheus.Counter
	raised      prometheus.Counter
	withdrawals prometheus.Counter
	withdrawn   prometheus.Counter
	closed      prometheus.Counter
}

var (
	saleMetricsOnce sync.Once
	saleRegistry    *SaleMetrics
)

// Sales returns the registry tracking committed sale events.
func Sales() *SaleMetrics {
	saleMetricsOnce.Do(func() {
		counter := func(name, help string) prometheus.Counter {
			return prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "crowdsale",
				Name:      name,
				Help:      help,
			})
		}
		saleRegistry = &SaleMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Committed ledger events segmented by type.",
			}, []string{"type"}),
			created:     counter("created_total", "Sales created."),
			purchases:   counter("purchases_total", "Settled purchases."),
			tokensSold:  counter("tokens_sold_total", "Tokens released to buyers."),
			raised:      counter("lamports_raised_total", "Lamports paid by buyers."),
			withdrawals: counter("withdrawals_total", "Proceeds withdrawals."),
			withdrawn:   counter("lamports_withdrawn_total", "Lamports swept to sale owners."),
			closed:      counter("closed_total", "Sales closed."),
		}
		prometheus.MustRegister(
			saleRegistry.events,
			saleRegistry.created,
			saleRegistry.purchases,
			saleRegistry.tokensSold,
			saleRegistry.raised,
			saleRegistry.withdrawals,
			saleRegistry.withdrawn,
			saleRegistry.closed,
		)
	})
	return saleRegistry
}

// Record updates the counters for one committed event.
func (m *SaleMetrics) Record(evt types.Event) {
	if m == nil {
		return
	}
	eventType := strings.TrimSpace(evt.Type)
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
	switch evt.Type {
	case crowdsale.EventTypeSaleCreated:
		m.created.Inc()
	case crowdsale.EventTypePurchase:
		purchase, ok := crowdsale.PurchaseFromEvent(evt)
		if !ok {
			return
		}
		m.purchases.Inc()
		m.tokensSold.Add(float64(purchase.Amount))
		m.raised.Add(float64(purchase.Total))
	case crowdsale.EventTypeWithdrawal:
		m.withdrawals.Inc()
		if amount, err := strconv.ParseUint(evt.Attributes["amount"], 10, 64); err == nil {
			m.withdrawn.Add(float64(amount))
		}
	case crowdsale.EventTypeSaleClosed:
		m.closed.Inc()
	}
}

// WatchBus feeds every event published on bus into the sale metrics until ctx
// ends.
func WatchBus(ctx context.Context, bus *events.Bus) {
	if bus == nil {
		return
	}
	metrics := Sales()
	cursor := strconv.FormatUint(bus.Sequence(), 10)
	go bus.Follow(ctx, cursor, func(env events.Envelope) error {
		metrics.Record(env.Event)
		return nil
	})
}
