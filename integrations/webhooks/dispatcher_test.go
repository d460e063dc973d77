package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nexumfi/core/types"
)

type testEvent struct{ evt *types.Event }

func (e testEvent) EventType() string    { return e.evt.Type }
func (e testEvent) Event() *types.Event { return e.evt }

func TestDispatcherSignsPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		received []byte
		sig      string
		event    string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		received, sig, event = body, r.Header.Get(HeaderSignature), r.Header.Get(HeaderEvent)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Emit(testEvent{evt: &types.Event{Type: "borrow.loan_liquidated", Attributes: map[string]string{"loanId": "7"}}})

	waitFor(func() bool { mu.Lock(); defer mu.Unlock(); return sig != "" }, time.Second)
	mu.Lock()
	defer mu.Unlock()
	if sig != Sign([]byte("secret"), received) {
		t.Fatalf("signature mismatch: %s", sig)
	}
	if event != "borrow.loan_liquidated" {
		t.Fatalf("unexpected event header %q", event)
	}
	var payload Payload
	if err := json.Unmarshal(received, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Attributes["loanId"] != "7" || payload.DeliveryID == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
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
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Emit(testEvent{evt: &types.Event{Type: "receivable.defaulted"}})
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", attempts)
	}
}

func TestDispatcherFiltersTopics(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithTopics("borrow.*", "receivable.defaulted"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if !dispatcher.subscribed("borrow.repayment") || !dispatcher.subscribed("receivable.defaulted") {
		t.Fatalf("expected configured topics to match")
	}
	if dispatcher.subscribed("vault.deposit") || dispatcher.subscribed("receivable.minted") {
		t.Fatalf("unexpected topic match")
	}
	dispatcher.Emit(testEvent{evt: &types.Event{Type: "vault.deposit"}})
	dispatcher.Emit(testEvent{evt: &types.Event{Type: "borrow.repayment"}})
	waitFor(func() bool { return atomic.LoadInt32(&hits) >= 1 }, time.Second)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
}

func TestNewDispatcherValidates(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("s")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://localhost", nil); err == nil {
		t.Fatalf("expected secret error")
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
