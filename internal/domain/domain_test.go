package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParametersAcceptsListAndString(t *testing.T) {
	var f Feature
	if err := json.Unmarshal([]byte(`{"route":"/x","parameters":["brand","category"]}`), &f); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(f.Parameters) != 2 || f.Parameters[1] != "category" {
		t.Fatalf("unexpected parameters: %v", f.Parameters)
	}

	if err := json.Unmarshal([]byte(`{"route":"/x","parameters":"brand, category ,"}`), &f); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if len(f.Parameters) != 2 || f.Parameters[0] != "brand" || f.Parameters[1] != "category" {
		t.Fatalf("unexpected parameters: %v", f.Parameters)
	}
}

func TestFeatureHTTPMethodDefaultsToGet(t *testing.T) {
	if got := (Feature{}).HTTPMethod(); got != "GET" {
		t.Fatalf("expected GET, got %s", got)
	}
	if got := (Feature{Method: "post"}).HTTPMethod(); got != "POST" {
		t.Fatalf("expected POST, got %s", got)
	}
}

func TestMessageKind(t *testing.T) {
	cases := map[MessageKind]Message{
		KindText:              BotText("hi"),
		KindProducts:          {Result: "1 product found", Products: []Product{{"id": "p1"}}},
		KindOrderDetails:      {OrderDetails: map[string]any{"order_id": "o1"}},
		KindOrderConfirmation: {OrderConfirmation: map[string]any{"estimated_delivery": "soon"}},
	}
	for want, msg := range cases {
		if got := msg.Kind(); got != want {
			t.Errorf("Kind() = %s, want %s", got, want)
		}
	}
}

func TestProductIDFormatsNumbers(t *testing.T) {
	p := Product{"id": float64(42), "name": "Sony WH"}
	if p.ID() != "42" {
		t.Fatalf("expected 42, got %q", p.ID())
	}
	if p.Name() != "Sony WH" {
		t.Fatalf("unexpected name %q", p.Name())
	}
}

func TestWidgetSettingsValidate(t *testing.T) {
	w := DefaultWidgetSettings()
	if err := w.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	w.LogoURL = "ftp://logo"
	if err := w.Validate(); err != ErrInvalidLogoURL {
		t.Fatalf("expected ErrInvalidLogoURL, got %v", err)
	}
	w.LogoURL = "https://cdn/logo.png"
	if err := w.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLiveChatAvailability(t *testing.T) {
	w := DefaultWidgetSettings()
	noon := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	night := time.Date(2026, 1, 5, 22, 0, 0, 0, time.UTC)

	if !w.LiveChatAvailable(noon) {
		t.Fatal("expected live chat available at noon")
	}
	if w.LiveChatAvailable(night) {
		t.Fatal("expected live chat unavailable at night")
	}

	w.LiveChatHours = LiveChatHours{Start: "20:00", End: "02:00", Timezone: "UTC"}
	if !w.LiveChatAvailable(night) {
		t.Fatal("expected overnight window to include 22:00")
	}

	w.EnableLiveChat = false
	if w.LiveChatAvailable(noon) {
		t.Fatal("disabled live chat must never be available")
	}
}

func TestPendingOrderParams(t *testing.T) {
	o := PendingOrder{ProductID: "p1", CustomerName: "Jane", Address: "123 Main St", Quantity: 2}
	p := o.Params()
	if p["quantity"] != 2 || p["customer_name"] != "Jane" || p["product_id"] != "p1" {
		t.Fatalf("unexpected params: %v", p)
	}
}

func TestFrameOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Frame{AgentAssigned: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"agentAssigned":true}` {
		t.Fatalf("unexpected frame %s", data)
	}
}
