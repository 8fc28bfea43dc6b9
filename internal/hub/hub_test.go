package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecureUpgrader_ValidOrigin(t *testing.T) {
	upgrader := NewSecureUpgrader([]string{"http://localhost:3000", "http://example.com"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	assert.True(t, upgrader.CheckOrigin(req))
}

func TestNewSecureUpgrader_InvalidOrigin(t *testing.T) {
	upgrader := NewSecureUpgrader([]string{"http://localhost:3000"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://malicious.com")

	assert.False(t, upgrader.CheckOrigin(req))
}

func TestNewSecureUpgrader_EmptyOriginIsSameOrigin(t *testing.T) {
	upgrader := NewSecureUpgrader([]string{"http://localhost:3000"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	assert.True(t, upgrader.CheckOrigin(req))
}

func TestNewSecureUpgrader_DefaultOrigin(t *testing.T) {
	upgrader := NewSecureUpgrader(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	assert.True(t, upgrader.CheckOrigin(req))
}

func TestDefaultUpgrader_AllowsAll(t *testing.T) {
	upgrader := DefaultUpgrader()

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://anywhere.example")

	assert.True(t, upgrader.CheckOrigin(req))
}

func TestHub_NewHub(t *testing.T) {
	h := NewHub(nil)

	assert.NotNil(t, h)
	assert.NotNil(t, h.clients)
	assert.NotNil(t, h.subscriptions)
	assert.NotNil(t, h.register)
	assert.NotNil(t, h.unregister)
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	// Should not panic or block with no subscribers.
	h.BroadcastDelivery(1, &DeliveryPayload{
		LoggedMailID: 1,
		Sender:       "bob@example.com",
		Recipient:    "abc@example.com",
		DeliveredAt:  "2025-01-01T00:00:00Z",
	})
}

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	client := &Client{hub: h, send: make(chan []byte, 8)}
	h.Register(client)
	h.Subscribe(client, 7)

	// Subscription requests pass through the hub goroutine.
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.subscriptions[7]) == 1
	}, time.Second, 5*time.Millisecond)

	h.BroadcastDelivery(7, &DeliveryPayload{LoggedMailID: 3, Recipient: "abc@example.com"})

	select {
	case data := <-client.send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MessageTypeDelivery, msg.Type)
		assert.Equal(t, uint(7), msg.MappingID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive broadcast")
	}
}

func assertErrorEvent(t *testing.T, client *Client, want string) {
	t.Helper()
	select {
	case data := <-client.send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MessageTypeError, msg.Type)
		assert.Equal(t, want, msg.Error)
	case <-time.After(time.Second):
		t.Fatal("expected an error event")
	}
}

func TestClient_CommandHandling(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	client := &Client{hub: h, send: make(chan []byte, 8)}
	h.Register(client)

	client.handleCommand([]byte(`{"type":"subscribe","mapping_id":4}`))
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.subscriptions[4]) == 1
	}, time.Second, 5*time.Millisecond)

	client.handleCommand([]byte(`{"type":"subscribe"}`))
	assertErrorEvent(t, client, "mapping_id is required")

	client.handleCommand([]byte(`{"type":"shout"}`))
	assertErrorEvent(t, client, "unknown message type")

	client.handleCommand([]byte(`not json`))
	assertErrorEvent(t, client, "invalid message format")

	client.handleCommand([]byte(`{"type":"unsubscribe","mapping_id":4}`))
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.subscriptions[4]) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_UnsubscribedRuleGetsNothing(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	client := &Client{hub: h, send: make(chan []byte, 8)}
	h.Register(client)
	h.Subscribe(client, 7)

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.subscriptions[7]) == 1
	}, time.Second, 5*time.Millisecond)

	h.BroadcastDelivery(8, &DeliveryPayload{LoggedMailID: 3})

	select {
	case <-client.send:
		t.Fatal("client received broadcast for a rule it never subscribed to")
	case <-time.After(50 * time.Millisecond):
	}
}
