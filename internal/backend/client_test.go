package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestClient(t *testing.T, h http.Handler, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RateLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestChatSendsRequestAndDecodesReply(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if _, err := uuid.Parse(r.Header.Get(RequestIDHeader)); err != nil {
			t.Errorf("missing request id: %v", err)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.UserID != "user_1_abcdefg" || req.Message != "quiero sopa" || req.PrepTimeAvailable != 30 {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"agent_response":"Te recomiendo sopa","intent":"recomendar","recommendations":[{"comida":"sopa_de_verduras","info":{"nutrientes":{"Energy":"120 kcal"}}}]}`))
	}), nil)

	resp, err := c.Chat(context.Background(), ChatRequest{UserID: "user_1_abcdefg", Message: "quiero sopa", PrepTimeAvailable: 30})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.AgentResponse != "Te recomiendo sopa" || resp.Intent != "recomendar" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].DisplayName != "sopa de verduras" {
		t.Fatalf("unexpected recommendations %+v", resp.Recommendations)
	}
	if amt, _ := resp.Recommendations[0].Info.Nutrientes.Amount("Energy"); amt != 120 {
		t.Errorf("Energy = %v, want 120", amt)
	}
}

func TestNon2xxReturnsStatusError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}), nil)

	err := c.SubmitSensors(context.Background(), SensorPayload{UserID: "u"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a StatusError", err)
	}
	if se.StatusCode != http.StatusInternalServerError || se.Body != "boom" {
		t.Errorf("unexpected StatusError %+v", se)
	}
}

func TestTimeoutIsAnError(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })
	defer close(release)

	if err := c.SubmitSensors(context.Background(), SensorPayload{UserID: "u"}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestFoodDetailsAreCached(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/food/42":
			hits.Add(1)
			_, _ = w.Write([]byte(`{"fdcId":42,"description":"Broth","nutrientes":{"Protein":{"amount":2,"unit":"g"}}}`))
		case "/admin/reload-foods":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}), nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := c.FoodDetails(ctx, 42)
		if err != nil {
			t.Fatalf("FoodDetails: %v", err)
		}
		if d.Description != "Broth" || d.Nutrientes["Protein"].Value != "2 g" {
			t.Errorf("unexpected details %+v", d)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("backend hit %d times, want 1", n)
	}

	if err := c.ReloadFoods(ctx); err != nil {
		t.Fatalf("ReloadFoods: %v", err)
	}
	if _, err := c.FoodDetails(ctx, 42); err != nil {
		t.Fatalf("FoodDetails: %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("cache not purged by reload, hits=%d", n)
	}
}

func TestCachedFoodDetailsAreIsolated(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"fdcId":42,"description":"Broth","nutrientes":{"Protein":{"amount":2,"unit":"g"}}}`))
	}), nil)

	ctx := context.Background()
	first, err := c.FoodDetails(ctx, 42)
	if err != nil {
		t.Fatalf("FoodDetails: %v", err)
	}
	delete(first.Nutrientes, "Protein")

	second, err := c.FoodDetails(ctx, 42)
	if err != nil {
		t.Fatalf("FoodDetails: %v", err)
	}
	if _, ok := second.Nutrientes["Protein"]; !ok {
		t.Fatal("editing the fetched details changed the cache")
	}
	second.Nutrientes["Fat"] = second.Nutrientes["Protein"]

	third, err := c.FoodDetails(ctx, 42)
	if err != nil {
		t.Fatalf("FoodDetails: %v", err)
	}
	if len(third.Nutrientes) != 1 {
		t.Errorf("cached nutrients = %v, want only Protein", third.Nutrientes)
	}
}

func TestRecommendFood(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/recommend_food/user_1_abcdefg":
			_, _ = w.Write([]byte(`{"user_id":"user_1_abcdefg","weather":"cold","state":"low_oxygen","recommendations":[{"comida":"caldo_de_pollo","info":[{"nombre":"Chicken broth","fdcId":7}]}]}`))
		default:
			_, _ = w.Write([]byte(`{"error":"No sensor data found for this user."}`))
		}
	}), nil)

	resp, err := c.RecommendFood(context.Background(), "user_1_abcdefg")
	if err != nil {
		t.Fatalf("RecommendFood: %v", err)
	}
	if resp.State != "low_oxygen" || resp.Weather != "cold" || len(resp.Recommendations) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if info := resp.Recommendations[0].Info; info == nil || info.FdcID != 7 {
		t.Errorf("info list not collapsed: %+v", info)
	}

	_, err = c.RecommendFood(context.Background(), "user_2_zzzzzzz")
	if !errors.Is(err, ErrNoSensorData) {
		t.Errorf("err = %v, want ErrNoSensorData", err)
	}
}

func TestFoodStats(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_foods":12,"source":"prolog"}`))
	}), nil)

	stats, err := c.FoodStats(context.Background())
	if err != nil {
		t.Fatalf("FoodStats: %v", err)
	}
	if string(stats["total_foods"]) != "12" {
		t.Errorf("total_foods = %s", stats["total_foods"])
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), func(cfg *Config) {
		cfg.RateLimit = 0.001
		cfg.Burst = 1
	})

	ctx := context.Background()
	if err := c.SubmitSensors(ctx, SensorPayload{}); err != nil {
		t.Fatalf("first request: %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := c.SubmitSensors(ctx, SensorPayload{}); err == nil {
		t.Fatal("expected rate limit error")
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{BaseURL: "not a url"}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewClientNormalizesBaseURL(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{BaseURL: " http://localhost:8000/ "}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := c.BaseURL(); got != "http://localhost:8000" {
		t.Errorf("BaseURL = %q", got)
	}
}
