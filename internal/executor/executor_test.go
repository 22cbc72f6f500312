package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ashureev/agentdesk/internal/domain"
)

func searchAgent() domain.Agent {
	return domain.Agent{
		Intent: "search_product",
		Features: []domain.Feature{
			{Route: "/api/orders/", Method: "GET"},
			{Route: "/api/products/search/", Method: "GET"},
		},
	}
}

func TestSelectFeatureMatchesSuffix(t *testing.T) {
	for i := 0; i < 3; i++ {
		f, ok := SelectFeature(searchAgent(), "search_product")
		if !ok || f.Route != "/api/products/search/" {
			t.Fatalf("unexpected feature %+v", f)
		}
	}
	f, ok := SelectFeature(searchAgent(), "do_something")
	if !ok || f.Route != "/api/orders/" {
		t.Fatalf("expected first feature as fallback, got %+v", f)
	}
}

func TestExecuteNoFeaturesMakesNoCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	out := New(srv.URL).Execute(context.Background(), domain.Agent{Intent: "x"}, "x", nil)
	if out.Error != MsgNoRoute || out.Result != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if hits.Load() != 0 {
		t.Fatal("no request should be made")
	}
}

func TestExecuteGetPromotesCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/products/search/headphone/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("brand") != "Sony" || q.Get("sort") != "price_asc" || q.Has("category") {
			t.Errorf("unexpected query %v", q)
		}
		if r.Header.Get("X-CSRFToken") != "" {
			t.Error("GET must not carry the CSRF header")
		}
		_, _ = w.Write([]byte(`[{"id":1,"name":"a"},{"id":2,"name":"b"},{"id":3,"name":"c"}]`))
	}))
	defer srv.Close()

	params := map[string]any{"brand": "Sony", "category": "Headphone", "sort": "price_asc"}
	out := New(srv.URL, WithCSRFToken("tok")).Execute(context.Background(), searchAgent(), "search_product", params)
	if out.Result != "3 products found" {
		t.Fatalf("unexpected result %q", out.Result)
	}
	if len(out.Products()) != 3 || out.Products()[0].ID() != "1" {
		t.Fatalf("unexpected products %v", out.Params)
	}
	if _, ok := params["category"]; !ok {
		t.Fatal("caller params must not be mutated")
	}
}

func TestExecutePostSendsBodyAndCSRF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-CSRFToken") != "tok" {
			t.Errorf("unexpected method %s or csrf %q", r.Method, r.Header.Get("X-CSRFToken"))
		}
		var body map[string]any
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil || body["quantity"] != float64(2) {
			t.Errorf("unexpected body %s", data)
		}
		_, _ = w.Write([]byte(`{"message":"Order placed","order_id":"o1","estimated_delivery":"3 days"}`))
	}))
	defer srv.Close()

	agent := domain.Agent{Intent: "place_order", Features: []domain.Feature{{Route: "/api/order/", Method: "post"}}}
	out := New(srv.URL, WithCSRFToken("tok")).Execute(context.Background(), agent, "place_order", map[string]any{"quantity": 2})
	if out.Result != "Order placed" || out.Params["order_id"] != "o1" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestNormalizeRules(t *testing.T) {
	if out := normalize([]byte(`[{"id":"x"}]`)); out.Result != "1 product found" {
		t.Fatalf("singular: got %q", out.Result)
	}
	if out := normalize([]byte(`{"products":[{"id":"x"},{"id":"y"}]}`)); out.Result != "2 products found" {
		t.Fatalf("wrapped products: got %q", out.Result)
	}
	if out := normalize([]byte(`[]`)); out.Result != MsgActionDone {
		t.Fatalf("empty array: got %q", out.Result)
	}
	if out := normalize([]byte(`{"status":"ok"}`)); out.Result != MsgActionDone || out.Params["status"] != "ok" {
		t.Fatalf("object: got %+v", out)
	}
	if out := normalize(nil); out.Result != MsgActionDone || out.Failed() {
		t.Fatalf("empty body: got %+v", out)
	}
}

func TestExecuteErrorMessages(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   string
	}{
		{http.StatusUnprocessableEntity, `{"detail":[{"msg":"quantity must be positive"}]}`, "quantity must be positive"},
		{http.StatusNotFound, `{"detail":"Order not found"}`, "Order not found"},
		{http.StatusInternalServerError, `oops`, MsgGenericFailure},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		out := New(srv.URL).Execute(context.Background(), searchAgent(), "search_product", nil)
		srv.Close()
		if out.Error != tc.want || out.Result != "" {
			t.Errorf("status %d: got %+v, want error %q", tc.status, out, tc.want)
		}
	}
}

func TestExecuteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	out := New(url).Execute(context.Background(), searchAgent(), "search_product", nil)
	if out.Error != MsgGenericFailure {
		t.Fatalf("unexpected outcome %+v", out)
	}
}
