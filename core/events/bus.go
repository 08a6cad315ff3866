package events

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"salechain/core/types"
)

const busHistoryLimit = 2048

// Envelope is a committed event as delivered to bus subscribers.
type Envelope struct {
	Sequence uint64      `json:"sequence"`
	Cursor   string      `json:"cursor"`
	TxHash   string      `json:"txHash"`
	Slot     uint64      `json:"slot"`
	Event    types.Event `json:"event"`
}

func cloneEnvelope(env Envelope) Envelope {
	cloned := env
	if evt := env.Event.Clone(); evt != nil {
		cloned.Event = *evt
	}
	return cloned
}

// Bus fans committed events out to subscribers. A subscriber whose buffer is
// full is disconnected rather than blocking publication; it resumes from its
// last cursor using the bounded history (see Follow).
type Bus struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan Envelope
	history []Envelope
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Envelope)}
}

// Publish assigns sequence numbers to the events of one committed transaction
// and delivers them to every subscriber.
func (b *Bus) Publish(txHash string, slot uint64, evts []types.Event) {
	if b == nil || len(evts) == 0 {
		return
	}
	b.mu.Lock()
	batch := make([]Envelope, 0, len(evts))
	for _, evt := range evts {
		b.seq++
		env := cloneEnvelope(Envelope{
			Sequence: b.seq,
			Cursor:   strconv.FormatUint(b.seq, 10),
			TxHash:   txHash,
			Slot:     slot,
			Event:    evt,
		})
		batch = append(batch, env)
		b.history = append(b.history, cloneEnvelope(env))
	}
	if len(b.history) > busHistoryLimit {
		excess := len(b.history) - busHistoryLimit
		trimmed := make([]Envelope, busHistoryLimit)
		copy(trimmed, b.history[excess:])
		b.history = trimmed
	}
	// Sends happen under the lock so a concurrent cancel cannot close a channel
	// mid-send; every send is non-blocking.
	for id, ch := range b.subs {
		for _, env := range batch {
			select {
			case ch <- cloneEnvelope(env):
				continue
			default:
			}
			// lagging subscriber; it resumes through Follow
			delete(b.subs, id)
			close(ch)
			break
		}
	}
	b.mu.Unlock()
}

// Sequence returns the sequence number of the last published event.
func (b *Bus) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Subscribe registers a subscriber for events published after cursor. The
// returned backlog holds retained history newer than the cursor. The channel
// is closed when cancel is called, when ctx ends, or when the subscriber falls
// a full buffer behind.
func (b *Bus) Subscribe(ctx context.Context, cursor string) (<-chan Envelope, func(), []Envelope) {
	updates := make(chan Envelope, 64)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[uint64]chan Envelope)
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = updates
	backlog := make([]Envelope, 0)
	if cursor != "" {
		for _, env := range b.history {
			if env.Sequence > since {
				backlog = append(backlog, cloneEnvelope(env))
			}
		}
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Follow calls fn with every event after cursor, in sequence order, until ctx
// ends or fn returns an error. An empty cursor starts at the next published
// event. When the subscription is dropped for lagging, Follow resubscribes
// from the last delivered sequence; events already evicted from the history
// are lost.
func (b *Bus) Follow(ctx context.Context, cursor string, fn func(Envelope) error) error {
	var last uint64
	if trimmed := strings.TrimSpace(cursor); trimmed == "" {
		last = b.Sequence()
	} else if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
		last = parsed
	}
	deliver := func(env Envelope) error {
		if env.Sequence <= last {
			return nil
		}
		last = env.Sequence
		return fn(env)
	}
	for {
		updates, cancel, backlog := b.Subscribe(ctx, strconv.FormatUint(last, 10))
		err := func() error {
			defer cancel()
			for _, env := range backlog {
				if err := deliver(env); err != nil {
					return err
				}
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case env, ok := <-updates:
					if !ok {
						return ctx.Err()
					}
					if err := deliver(env); err != nil {
						return err
					}
				}
			}
		}()
		if err != nil {
			return err
		}
	}
}
