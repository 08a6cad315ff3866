package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"salechain/core/events"
	"salechain/core/types"
)

func TestDispatcherSignsPayload(t *testing.T) {
	secret := []byte("secret")
	var (
		mu       sync.Mutex
		received []Payload
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		if !Verify(secret, body, r.Header.Get(SignatureHeader)) {
			t.Errorf("bad signature %q", r.Header.Get(SignatureHeader))
		}
		var payload Payload
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher, err := NewDispatcher(server.URL, secret, WithEventPrefixes("crowdsale."))
	require.NoError(t, err)
	defer dispatcher.Close()

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Forward(ctx, bus)
	bus.Publish("tx1", 3, []types.Event{
		{Type: "token.transfer", Attributes: map[string]string{"amount": "1"}},
		{Type: "crowdsale.purchase", Attributes: map[string]string{"amount": "1", "total": "10"}},
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "crowdsale.purchase", received[0].Type)
	require.Equal(t, "tx1", received[0].TxHash)
	require.Equal(t, uint64(3), received[0].Slot)
	require.Equal(t, "10", received[0].Attributes["total"])
	require.NotEmpty(t, received[0].DeliveryID)
	require.Equal(t, EventID("tx1", types.Event{Type: "crowdsale.purchase", Attributes: map[string]string{"total": "10", "amount": "1"}}), received[0].EventID)
}

func TestEventIDIsContentDerived(t *testing.T) {
	evt := types.Event{Type: "crowdsale.purchase", Attributes: map[string]string{"amount": "2", "buyer": "b"}}
	first := EventID("tx", evt)
	require.Len(t, first, 64)
	require.Equal(t, first, EventID("tx", *evt.Clone()))
	require.NotEqual(t, first, EventID("tx2", evt))

	evt.Attributes["amount"] = "3"
	require.NotEqual(t, first, EventID("tx", evt))
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, 10*time.Millisecond, 20*time.Millisecond))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.Publish("tx", 1, types.Event{Type: "crowdsale.closed"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestNewDispatcherValidates(t *testing.T) {
	_, err := NewDispatcher(" ", []byte("s"))
	require.Error(t, err)
	_, err = NewDispatcher("http://localhost", nil)
	require.Error(t, err)
}
