package websocket

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastDropsSlowClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	live := &Client{hub: h, send: make(chan []byte, 16)}
	slow := &Client{hub: h, send: make(chan []byte)}

	h.register <- live
	h.register <- slow
	waitFor(t, func() bool { return h.ClientCount() == 2 }, "clients never registered")

	// Hammer ClientCount while the broadcast loop drops the slow client; the
	// two must not race over the client map.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				h.ClientCount()
			}
		}
	}()

	if err := h.Broadcast(map[string]string{"action": "badge", "count": "1"}); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	waitFor(t, func() bool { return h.ClientCount() == 1 }, "slow client never dropped")
	close(done)
	wg.Wait()

	select {
	case msg := <-live.send:
		if len(msg) == 0 {
			t.Error("empty broadcast payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live client never received the broadcast")
	}

	if _, open := <-slow.send; open {
		t.Error("dropped client's send channel should be closed")
	}
}
