package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"salechain/core/events"
	"salechain/core/types"
)

const (
	SignatureHeader = "X-Sale-Signature"
	EventHeader     = "X-Sale-Event"
	DeliveryHeader  = "X-Sale-Delivery"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// Payload is the body posted for one committed event.
type Payload struct {
	DeliveryID string            `json:"deliveryId"`
	EventID    string            `json:"eventId"`
	Type       string            `json:"type"`
	TxHash     string            `json:"txHash"`
	Slot       uint64            `json:"slot"`
	Cursor     string            `json:"cursor"`
	Attributes map[string]string `json:"attributes"`
	SentAt     time.Time         `json:"sentAt"`
}

// Dispatcher posts committed ledger events to an HTTP endpoint, signing each
// body with HMAC-SHA256 and retrying with exponential backoff.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	prefixes    []string
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	id        string
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithEventPrefixes restricts deliveries to event types with one of the
// given prefixes, such as "crowdsale.".
func WithEventPrefixes(prefixes ...string) Option {
	return func(d *Dispatcher) {
		d.prefixes = append([]string(nil), prefixes...)
	}
}

// WithLogger sets the logger used for failed deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and starts its worker.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan delivery, 256),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(1)
	go d.worker()
	return d, nil
}

// Close stops the dispatcher and waits for the inflight delivery.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) wants(eventType string) bool {
	if len(d.prefixes) == 0 {
		return true
	}
	for _, prefix := range d.prefixes {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}

// Enqueue schedules delivery of one committed event. Filtered events are
// dropped silently.
func (d *Dispatcher) Enqueue(env events.Envelope) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	if !d.wants(env.Event.Type) {
		return nil
	}
	payload := Payload{
		DeliveryID: uuid.NewString(),
		EventID:    EventID(env.TxHash, env.Event),
		Type:       env.Event.Type,
		TxHash:     env.TxHash,
		Slot:       env.Slot,
		Cursor:     env.Cursor,
		Attributes: env.Event.Attributes,
		SentAt:     time.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case d.queue <- delivery{id: payload.DeliveryID, eventType: payload.Type, body: data}:
		return nil
	case <-d.ctx.Done():
		return errors.New("webhook: dispatcher closed")
	}
}

// EventID derives a stable identifier from the transaction hash and event
// content. Replays of the same event carry the same id so receivers can
// deduplicate.
func EventID(txHash string, evt types.Event) string {
	h := blake3.New(32, nil)
	h.Write([]byte(txHash))
	h.Write([]byte{0})
	h.Write([]byte(evt.Type))
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(evt.Attributes[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Forward enqueues every event published on bus until ctx ends.
func (d *Dispatcher) Forward(ctx context.Context, bus *events.Bus) {
	cursor := strconv.FormatUint(bus.Sequence(), 10)
	go bus.Follow(ctx, cursor, d.Enqueue)
}

// Publish delivers a single event outside of the bus, for example when
// replaying history.
func (d *Dispatcher) Publish(txHash string, slot uint64, evt types.Event) error {
	return d.Enqueue(events.Envelope{TxHash: txHash, Slot: slot, Event: evt})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	m := webhookMetrics()
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			m.record(m.delivered, job.eventType)
			return
		}
		if attempt >= d.maxAttempts {
			m.record(m.abandoned, job.eventType)
			d.logger.Warn("webhook delivery abandoned",
				slog.String("delivery_id", job.id),
				slog.String("type", job.eventType),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()))
			return
		}
		m.record(m.retries, job.eventType)
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, job.eventType)
	req.Header.Set(DeliveryHeader, job.id)
	req.Header.Set(SignatureHeader, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header produced by Sign.
func Verify(secret, body []byte, header string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next < current {
		return max
	}
	return next
}
