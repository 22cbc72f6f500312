package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

type stubClassifier struct {
	calls atomic.Int32
	res   Result
	err   error
	delay time.Duration
	panic bool
}

func (s *stubClassifier) Classify(ctx context.Context, _ string, _ Context) (Result, error) {
	s.calls.Add(1)
	if s.panic {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return s.res, s.err
}

func TestPatternCheapestSonyHeadphones(t *testing.T) {
	res, err := NewPattern().Classify(context.Background(), "cheapest sony headphones", Context{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Primary() != domain.IntentSearchProduct {
		t.Fatalf("expected search_product, got %q", res.Primary())
	}
	if res.Params["brand"] != "Sony" || res.Params["category"] != "headphone" || res.Params["sort"] != SortPriceAsc {
		t.Fatalf("unexpected params: %v", res.Params)
	}
}

func TestPatternIntents(t *testing.T) {
	cases := map[string]string{
		"place order":                    domain.IntentPlaceOrder,
		"I want to talk to a specialist": domain.IntentHumanAssistance,
		"track my order 12345":           domain.IntentTrackOrder,
		"can you recommend something":    domain.IntentRecommendProduct,
		"add it to my cart":              domain.IntentAddToCart,
	}
	c := NewPattern()
	for text, want := range cases {
		res, err := c.Classify(context.Background(), text, Context{})
		if err != nil {
			t.Fatalf("Classify(%q): %v", text, err)
		}
		if res.Primary() != want {
			t.Errorf("Classify(%q) = %q, want %q", text, res.Primary(), want)
		}
	}
}

func TestPatternExtractsOrderID(t *testing.T) {
	res, _ := NewPattern().Classify(context.Background(), "Where is my order #A1234?", Context{})
	if res.Params["order_id"] != "a1234" {
		t.Fatalf("expected order id a1234, got %v", res.Params["order_id"])
	}
}

func TestPatternNoMatchReturnsLowConfidenceSearch(t *testing.T) {
	res, _ := NewPattern().Classify(context.Background(), "hmm", Context{})
	if len(res.Intents) != 1 || res.Primary() != domain.IntentSearchProduct || res.Intents[0].Confidence != 0.4 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSafeFallsBackOnError(t *testing.T) {
	s := NewSafe(&stubClassifier{err: errors.New("model not loaded")}, time.Second, nil)
	res, err := s.Classify(context.Background(), "anything", Context{})
	if err != nil {
		t.Fatalf("Safe must not return errors, got %v", err)
	}
	if !res.Fallback || res.Primary() != domain.IntentSearchProduct || res.Params["brand"] != DefaultBrand {
		t.Fatalf("expected default fallback, got %+v", res)
	}
}

func TestSafeFallsBackOnTimeout(t *testing.T) {
	s := NewSafe(&stubClassifier{delay: time.Second}, 20*time.Millisecond, nil)
	res, err := s.Classify(context.Background(), "slow", Context{})
	if err != nil || !res.Fallback {
		t.Fatalf("expected fallback on timeout, got %+v, %v", res, err)
	}
}

func TestSafeFallsBackOnPanicAndEmpty(t *testing.T) {
	s := NewSafe(&stubClassifier{panic: true}, time.Second, nil)
	if res, _ := s.Classify(context.Background(), "x", Context{}); !res.Fallback {
		t.Fatal("expected fallback after panic")
	}
	s = NewSafe(&stubClassifier{}, time.Second, nil)
	if res, _ := s.Classify(context.Background(), "x", Context{}); !res.Fallback {
		t.Fatal("expected fallback on empty intents")
	}
}

func TestSafeSortsIntents(t *testing.T) {
	inner := &stubClassifier{res: Result{Intents: []Intent{
		{Intent: "a", Confidence: 0.6},
		{Intent: "b", Confidence: 0.9},
	}}}
	res, _ := NewSafe(inner, time.Second, nil).Classify(context.Background(), "x", Context{})
	if res.Primary() != "b" || res.Params == nil {
		t.Fatalf("expected b first with params map, got %+v", res)
	}
}

func TestRemoteClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify-intent" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text != "track order" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"intents":[{"intent":"search_product","confidence":0.55},{"intent":"track_order","confidence":0.93}],"params":{"brand":"Sony"}}`))
	}))
	defer srv.Close()

	res, err := NewRemote(srv.URL+"/", nil).Classify(context.Background(), "track order", Context{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Primary() != domain.IntentTrackOrder || res.Params["brand"] != "Sony" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRemoteClassifyStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewRemote(srv.URL, nil).Classify(context.Background(), "x", Context{}); err == nil {
		t.Fatal("expected error for 503")
	}
}

type fakeCompleter struct {
	reply  string
	system string
	user   string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, nil
}

func TestLLMParsesFencedReply(t *testing.T) {
	fc := &fakeCompleter{reply: "Sure!\n```json\n{\"intents\":[{\"intent\":\"track_order\",\"confidence\":0.8}],\"params\":{\"order_id\":\"o-{1}\",\"brand\":\"\"}}\n```"}
	res, err := NewLLM(fc).Classify(context.Background(), "where is o-{1}", Context{History: []string{"hi"}})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Primary() != domain.IntentTrackOrder || res.Params["order_id"] != "o-{1}" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, ok := res.Params["brand"]; ok {
		t.Fatal("empty params should be dropped")
	}
	if fc.user == "where is o-{1}" {
		t.Fatal("history should be included in the prompt")
	}
}

func TestLLMRejectsProse(t *testing.T) {
	if _, err := NewLLM(&fakeCompleter{reply: "I am not sure."}).Classify(context.Background(), "x", Context{}); err == nil {
		t.Fatal("expected error for reply without JSON")
	}
}

func TestCachedSkipsRepeatLookups(t *testing.T) {
	inner := &stubClassifier{res: Result{Intents: []Intent{{Intent: "track_order", Confidence: 1}}, Params: map[string]any{}}}
	c, err := NewCached(inner, 100, time.Minute)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}
	defer c.Close()

	if _, err := c.Classify(context.Background(), "Track  Order", Context{}); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	c.Wait()
	res, _ := c.Classify(context.Background(), "track order", Context{})
	if res.Primary() != "track_order" {
		t.Fatalf("unexpected cached result: %+v", res)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("expected 1 inner call, got %d", got)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(Options{Backend: "onnx"}, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := New(Options{Backend: BackendAnthropic}, nil); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
