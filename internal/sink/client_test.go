package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	c := NewClient(Options{
		BaseURL:     baseURL,
		Token:       "test-token",
		MinInterval: 10 * time.Millisecond,
		BackoffBase: time.Millisecond,
		MaxAttempts: 3,
		SearchDays:  30,
		SearchLimit: 50,
	}, zap.NewNop())
	return c
}

func TestCreateOrder_Success(t *testing.T) {
	var gotAuth string
	var gotReq OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Order{ID: "sink-1", ExternalRef: gotReq.ExternalRef, FinancialStatus: "paid"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	order, err := c.CreateOrder(context.Background(), &OrderRequest{
		ExternalRef:     "src:3173109",
		FinancialStatus: "paid",
		Total:           decimal.RequireFromString("149.90"),
		Items:           []ItemRequest{{Name: "Curso", Quantity: 1, Price: decimal.RequireFromString("149.90")}},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.ID != "sink-1" {
		t.Fatalf("unexpected order id %s", order.ID)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("auth header missing, got %q", gotAuth)
	}
	if gotReq.ExternalRef != "src:3173109" {
		t.Fatalf("external ref not sent: %q", gotReq.ExternalRef)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Order{ID: "sink-2"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	order, err := c.UpdateFinancialStatus(context.Background(), "sink-2", "paid")
	if err != nil {
		t.Fatalf("expected success after transient retries, got %v", err)
	}
	if order.ID != "sink-2" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestDo_TransientExhaustsAttemptCeiling(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.CancelOrder(context.Background(), "sink-3")
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if !IsTransient(err) {
		t.Fatalf("expected transient classification, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected exactly 3 attempts (ceiling), got %d", n)
	}
}

func TestDo_PermanentErrorNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_total","message":"total must be positive"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.RefundOrder(context.Background(), "sink-4")
	if err == nil {
		t.Fatalf("expected permanent error")
	}
	if IsTransient(err) {
		t.Fatalf("4xx must not classify as transient")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("permanent error must not retry, got %d attempts", n)
	}
}

func TestDo_RateLimitSleepsThenRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(Order{ID: "sink-5"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	order, err := c.UpdateFinancialStatus(context.Background(), "sink-5", "paid")
	if err != nil {
		t.Fatalf("expected success after rate-limit retry, got %v", err)
	}
	if order.ID != "sink-5" {
		t.Fatalf("unexpected order: %+v", order)
	}

	found := false
	for _, d := range slept {
		if d == c.minInterval {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a spacing-interval sleep after 429, slept %v", slept)
	}
}

func TestDo_DuplicateIdentityClassification(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"duplicate_customer","message":"customer document already registered"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.CreateOrder(context.Background(), &OrderRequest{ExternalRef: "src:1"})
	if err == nil {
		t.Fatalf("expected duplicate identity error")
	}
	if !IsDuplicateIdentity(err) {
		t.Fatalf("expected duplicate-identity classification, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("duplicate conflict must not retry, got %d attempts", n)
	}
}

func TestPace_EnforcesMinimumSpacing(t *testing.T) {
	c := newTestClient("http://unused")
	c.minInterval = 500 * time.Millisecond

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.nowFunc = func() time.Time { return now }
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	// first call: no prior call, no wait
	c.pace()
	if len(slept) != 0 {
		t.Fatalf("first call should not wait, slept %v", slept)
	}

	// a call completed 200ms ago: wait the remaining 300ms
	c.lastCall = now.Add(-200 * time.Millisecond)
	c.pace()
	if len(slept) != 1 || slept[0] != 300*time.Millisecond {
		t.Fatalf("expected 300ms wait, slept %v", slept)
	}

	// a call completed long ago: no wait
	slept = nil
	c.lastCall = now.Add(-time.Second)
	c.pace()
	if len(slept) != 0 {
		t.Fatalf("stale last call should not wait, slept %v", slept)
	}
}

func TestFindByExternalRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("external_ref") == "" {
			t.Errorf("external_ref query missing")
		}
		if r.URL.Query().Get("created_at_min") == "" {
			t.Errorf("created_at_min query missing, search must be bounded")
		}
		_, _ = w.Write([]byte(`{"orders":[
			{"id":"sink-9","external_ref":"src:other","financial_status":"paid"},
			{"id":"sink-10","external_ref":"src:555","financial_status":"pending"}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	order, err := c.FindByExternalRef(context.Background(), "src:555")
	if err != nil {
		t.Fatalf("FindByExternalRef error: %v", err)
	}
	if order == nil || order.ID != "sink-10" {
		t.Fatalf("expected sink-10, got %+v", order)
	}

	missing, err := c.FindByExternalRef(context.Background(), "src:999")
	if err != nil {
		t.Fatalf("FindByExternalRef error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unmatched ref, got %+v", missing)
	}
}
