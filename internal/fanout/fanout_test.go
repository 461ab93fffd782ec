package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arbtwo/marketfusion/internal/bus"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestServerRelaysPublishedMessagesToConnectedClient(t *testing.T) {
	serverBus := bus.New()
	server := NewServer(serverBus, "prices.g1")

	httpSrv := httptest.NewServer(http.HandlerFunc(server.HandleWS))
	defer httpSrv.Close()
	addr := strings.TrimPrefix(httpSrv.URL, "http://")

	clientBus := bus.New()
	client := NewClient(addr, clientBus, Decoders{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.ConnectWithRetry(ctx)

	waitUntil(t, 2*time.Second, func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return len(server.clients) == 1
	})

	var received json.RawMessage
	done := make(chan struct{})
	clientBus.Subscribe("prices.g1", func(msg any) error {
		if rm, ok := msg.(json.RawMessage); ok {
			received = rm
			close(done)
		}
		return nil
	})

	serverBus.Publish("prices.g1", testPayload{GameID: "g1", Price: 0.72})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the relayed message")
	}

	var got testPayload
	if err := json.Unmarshal(received, &got); err != nil {
		t.Fatalf("unmarshal relayed payload: %v", err)
	}
	if got.GameID != "g1" || got.Price != 0.72 {
		t.Errorf("relayed payload = %+v, want GameID=g1 Price=0.72", got)
	}
}

func TestServerDoesNotForwardUnsubscribedChannel(t *testing.T) {
	serverBus := bus.New()
	server := NewServer(serverBus, "prices.g1")

	httpSrv := httptest.NewServer(http.HandlerFunc(server.HandleWS))
	defer httpSrv.Close()
	addr := strings.TrimPrefix(httpSrv.URL, "http://")

	clientBus := bus.New()
	client := NewClient(addr, clientBus, Decoders{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.ConnectWithRetry(ctx)

	waitUntil(t, 2*time.Second, func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return len(server.clients) == 1
	})

	var gotOther bool
	clientBus.Subscribe("other.channel", func(msg any) error {
		gotOther = true
		return nil
	})

	// publishing on a channel the server was never told to relay should
	// produce nothing on the wire for the client to receive.
	serverBus.Publish("other.channel", testPayload{GameID: "g2"})
	time.Sleep(200 * time.Millisecond)

	if gotOther {
		t.Error("a channel the server wasn't told to relay should never reach the client")
	}
}
