package kalshihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arbtwo/marketfusion/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient(srv.URL, nil, 1)
	return c, srv.Close
}

func TestNewClientDividesRateLimitsByDivisor(t *testing.T) {
	full := NewClient("http://example.com", nil, 1)
	halved := NewClient("http://example.com", nil, 2)
	if halved.readLimiter.Burst() != full.readLimiter.Burst()/2 {
		t.Errorf("halved read burst = %d, want half of %d", halved.readLimiter.Burst(), full.readLimiter.Burst())
	}
}

func TestNewClientClampsSubOneDivisor(t *testing.T) {
	c := NewClient("http://example.com", nil, 0)
	if c.readLimiter.Burst() != 20 {
		t.Errorf("burst with divisor=0 = %d, want the divisor clamped to 1 (burst 20)", c.readLimiter.Burst())
	}
}

func TestGetMarketsPaginatesByCursor(t *testing.T) {
	calls := 0
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("cursor") == "" {
			json.NewEncoder(w).Encode(getMarketsResponse{
				Markets: []Market{{Ticker: "T1"}},
				Cursor:  "page2",
			})
			return
		}
		json.NewEncoder(w).Encode(getMarketsResponse{Markets: []Market{{Ticker: "T2"}}})
	})
	defer closeFn()

	got, err := c.GetMarkets(context.Background(), "KXNBA")
	if err != nil {
		t.Fatalf("GetMarkets() error: %v", err)
	}
	if len(got) != 2 || got[0].Ticker != "T1" || got[1].Ticker != "T2" {
		t.Errorf("GetMarkets() = %+v, want [T1 T2] across two pages", got)
	}
	if calls != 2 {
		t.Errorf("made %d requests, want 2 (one per page)", calls)
	}
}

func TestGetMarketsNonOKStatusReturnsError(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer closeFn()

	if _, err := c.GetMarkets(context.Background(), "KXNBA"); err == nil {
		t.Error("expected an error for a non-200 status")
	}
}

func TestGetMarketReturnsSingleMarket(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"market": Market{Ticker: "KXNBA-LAL", Title: "Lakers to win"}})
	})
	defer closeFn()

	got, err := c.GetMarket(context.Background(), "KXNBA-LAL")
	if err != nil {
		t.Fatalf("GetMarket() error: %v", err)
	}
	if got.Ticker != "KXNBA-LAL" || got.Title != "Lakers to win" {
		t.Errorf("GetMarket() = %+v, want ticker KXNBA-LAL title 'Lakers to win'", got)
	}
}

func TestGetBalanceCents(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(balanceResponse{Balance: 123456})
	})
	defer closeFn()

	got, err := c.GetBalanceCents(context.Background())
	if err != nil {
		t.Fatalf("GetBalanceCents() error: %v", err)
	}
	if got != 123456 {
		t.Errorf("GetBalanceCents() = %d, want 123456", got)
	}
}

func TestMarketToMarketPriceRoundsDollarsAndMapsStatus(t *testing.T) {
	m := Market{
		Ticker: "KXNBA-LAL", Title: "Lakers to win", Status: "settled",
		YesBidDollars: "0.4799999", YesAskDollars: "0.505", Volume: 1000,
	}
	mp := m.ToMarketPrice("g1", "Lakers", domain.MarketMoneyline)

	if mp.YesBid != 0.48 {
		t.Errorf("YesBid = %v, want 0.48 (rounded to the nearest cent)", mp.YesBid)
	}
	if mp.YesAsk != 0.51 {
		t.Errorf("YesAsk = %v, want 0.51 (rounded to the nearest cent)", mp.YesAsk)
	}
	if mp.Status != domain.MarketSettled {
		t.Errorf("Status = %v, want settled", mp.Status)
	}
	if mp.ContractTeam != "Lakers" || mp.GameID != "g1" {
		t.Errorf("ToMarketPrice() = %+v, want ContractTeam=Lakers GameID=g1", mp)
	}
}

func TestDollarsToProbInvalidStringReturnsZero(t *testing.T) {
	m := Market{YesBidDollars: "not-a-number"}
	if got := m.yesBid(); got != 0 {
		t.Errorf("yesBid() = %v, want 0 for an unparseable dollars string", got)
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req CreateOrderRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Ticker != "KXNBA-LAL" {
			t.Errorf("request ticker = %q, want KXNBA-LAL", req.Ticker)
		}
		json.NewEncoder(w).Encode(CreateOrderResponse{Order: OrderDetail{OrderID: "ord-1", Status: "resting"}})
	})
	defer closeFn()

	resp, err := c.PlaceOrder(context.Background(), CreateOrderRequest{Ticker: "KXNBA-LAL", Action: "buy", Side: "yes"})
	if err != nil {
		t.Fatalf("PlaceOrder() error: %v", err)
	}
	if resp.Order.OrderID != "ord-1" {
		t.Errorf("OrderID = %q, want ord-1", resp.Order.OrderID)
	}
}

func TestPlaceOrderRejectedStatusReturnsError(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"insufficient balance"}`))
	})
	defer closeFn()

	if _, err := c.PlaceOrder(context.Background(), CreateOrderRequest{Ticker: "KXNBA-LAL"}); err == nil {
		t.Error("expected an error for a rejected order")
	}
}

func TestGetOrderReturnsDetail(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"order": OrderDetail{OrderID: "ord-2", FillCount: 5}})
	})
	defer closeFn()

	got, err := c.GetOrder(context.Background(), "ord-2")
	if err != nil {
		t.Fatalf("GetOrder() error: %v", err)
	}
	if got.OrderID != "ord-2" || got.FillCount != 5 {
		t.Errorf("GetOrder() = %+v, want OrderID=ord-2 FillCount=5", got)
	}
}

func TestCancelOrderSuccessAndFailure(t *testing.T) {
	ok, closeOK := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	defer closeOK()
	if err := ok.CancelOrder(context.Background(), "ord-3"); err != nil {
		t.Errorf("CancelOrder() error: %v, want nil on 200", err)
	}

	fail, closeFail := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	defer closeFail()
	if err := fail.CancelOrder(context.Background(), "ord-4"); err == nil {
		t.Error("CancelOrder() should error on a non-2xx status")
	}
}

func TestReadTokensReflectsConfiguredBurst(t *testing.T) {
	c := NewClient("http://example.com", nil, 1)
	if got := c.ReadTokens(); got != 20 {
		t.Errorf("ReadTokens() = %v, want 20 (the fresh burst)", got)
	}
}
