package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type fakePushSender struct {
	mu          sync.Mutex
	payloads    [][]byte
	statusCode  int
	returnError error
}

func (f *fakePushSender) Send(payload []byte, sub pushSubscription) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.payloads = append(f.payloads, cp)
	status := f.statusCode
	if status == 0 {
		status = http.StatusCreated
	}
	return status, f.returnError
}

func (f *fakePushSender) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.payloads))
	copy(out, f.payloads)
	return out
}

func testSubscription(n int) pushSubscription {
	return pushSubscription{
		Endpoint: fmt.Sprintf("https://push.example.com/sub/%d", n),
		Keys:     pushSubscriptionKeys{P256DH: "p256dh-key", Auth: "auth-secret"},
	}
}

func newTestPushService(t *testing.T, sender webPushSender) *pushService {
	t.Helper()
	return &pushService{
		publicKey:  "test-public",
		privateKey: "test-private",
		subject:    "mailto:test@example.com",
		store:      newSubscriptionStore(filepath.Join(t.TempDir(), pushSubscriptionsFileName)),
		sender:     sender,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestSubscriptionStoreRoundTrip(t *testing.T) {
	store := newSubscriptionStore(filepath.Join(t.TempDir(), pushSubscriptionsFileName))

	if count, err := store.Count(); err != nil || count != 0 {
		t.Fatalf("expected empty store, got count=%d err=%v", count, err)
	}

	if err := store.Upsert(testSubscription(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(testSubscription(2)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	subs, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}

	// Same endpoint again must update in place, not duplicate.
	changed := testSubscription(1)
	changed.Keys.Auth = "rotated-secret"
	if err := store.Upsert(changed); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	subs, err = store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected update in place, got %d subscriptions", len(subs))
	}
	if subs[0].Keys.Auth != "rotated-secret" {
		t.Errorf("expected rotated auth key, got %q", subs[0].Keys.Auth)
	}

	if err := store.Remove(testSubscription(1).Endpoint); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if count, _ := store.Count(); count != 1 {
		t.Errorf("expected 1 subscription after remove, got %d", count)
	}
}

func TestSubscriptionStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), pushSubscriptionsFileName)

	first := newSubscriptionStore(path)
	if err := first.Upsert(testSubscription(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second := newSubscriptionStore(path)
	subs, err := second.List()
	if err != nil {
		t.Fatalf("list from fresh store: %v", err)
	}
	if len(subs) != 1 || subs[0].Endpoint != testSubscription(1).Endpoint {
		t.Fatalf("expected persisted subscription, got %+v", subs)
	}
}

func TestSubscriptionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*pushSubscription)
		wantErr bool
	}{
		{"complete", func(s *pushSubscription) {}, false},
		{"missing endpoint", func(s *pushSubscription) { s.Endpoint = " " }, true},
		{"missing p256dh", func(s *pushSubscription) { s.Keys.P256DH = "" }, true},
		{"missing auth", func(s *pushSubscription) { s.Keys.Auth = "" }, true},
	}
	for _, tt := range tests {
		sub := testSubscription(1)
		tt.mutate(&sub)
		err := sub.validate()
		if tt.wantErr && err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
	}
}

func TestNotifyReadySendsToAllSubscribers(t *testing.T) {
	sender := &fakePushSender{}
	svc := newTestPushService(t, sender)
	if err := svc.store.Upsert(testSubscription(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := svc.store.Upsert(testSubscription(2)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	svc.NotifyReady(Status{
		Active:  true,
		Session: "arcade_aider_0a1b2c3d",
		Agent:   "aider",
		Game:    "pong",
	})

	payloads := sender.sent()
	if len(payloads) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(payloads))
	}

	var msg pushMessage
	if err := json.Unmarshal(payloads[0], &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Title != "Agent Arcade: aider ready" {
		t.Errorf("unexpected title %q", msg.Title)
	}
	if !strings.Contains(msg.Body, "pong") {
		t.Errorf("body should mention the game, got %q", msg.Body)
	}
	if msg.Tag != "agent-arcade-arcade_aider_0a1b2c3d" {
		t.Errorf("unexpected tag %q", msg.Tag)
	}
}

func TestNotifyReadyWithoutGameMentionsAgentOnly(t *testing.T) {
	sender := &fakePushSender{}
	svc := newTestPushService(t, sender)
	if err := svc.store.Upsert(testSubscription(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	svc.NotifyReady(Status{Active: true, Agent: "claude"})

	payloads := sender.sent()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(payloads))
	}
	var msg pushMessage
	if err := json.Unmarshal(payloads[0], &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Body != "claude is waiting for input." {
		t.Errorf("unexpected body %q", msg.Body)
	}
}

func TestNotifyReadyNoSubscribersSendsNothing(t *testing.T) {
	sender := &fakePushSender{}
	svc := newTestPushService(t, sender)

	svc.NotifyReady(Status{Active: true, Agent: "aider"})

	if got := len(sender.sent()); got != 0 {
		t.Fatalf("expected no deliveries, got %d", got)
	}
}

func TestNotifyReadyRemovesGoneEndpoints(t *testing.T) {
	sender := &fakePushSender{
		statusCode:  http.StatusGone,
		returnError: errors.New("push gateway status 410"),
	}
	svc := newTestPushService(t, sender)
	if err := svc.store.Upsert(testSubscription(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	svc.NotifyReady(Status{Active: true, Agent: "aider"})

	count, err := svc.store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected gone endpoint to be dropped, still have %d", count)
	}
}

func TestNotifyReadyKeepsEndpointOnTransientError(t *testing.T) {
	sender := &fakePushSender{
		statusCode:  http.StatusInternalServerError,
		returnError: errors.New("push gateway status 500"),
	}
	svc := newTestPushService(t, sender)
	if err := svc.store.Upsert(testSubscription(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	svc.NotifyReady(Status{Active: true, Agent: "aider"})

	if count, _ := svc.store.Count(); count != 1 {
		t.Fatalf("transient failure must not drop the subscription, have %d", count)
	}
}

func TestNotifyReadyRateLimited(t *testing.T) {
	sender := &fakePushSender{}
	svc := newTestPushService(t, sender)
	svc.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	if err := svc.store.Upsert(testSubscription(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	svc.NotifyReady(Status{Active: true, Agent: "aider"})
	svc.NotifyReady(Status{Active: true, Agent: "aider"})

	if got := len(sender.sent()); got != 1 {
		t.Fatalf("expected the second alert to be rate limited, got %d deliveries", got)
	}
}

func TestNewPushServiceRequiresBothKeys(t *testing.T) {
	svc, err := newPushService(Config{})
	if err != nil || svc != nil {
		t.Fatalf("no keys should mean push disabled, got svc=%v err=%v", svc, err)
	}

	if _, err := newPushService(Config{PushVAPIDPublicKey: "only-public"}); err == nil {
		t.Fatal("expected an error when only one key is configured")
	}

	svc, err = newPushService(Config{
		DataDir:             t.TempDir(),
		PushVAPIDPublicKey:  "pub",
		PushVAPIDPrivateKey: "priv",
	})
	if err != nil {
		t.Fatalf("newPushService: %v", err)
	}
	if !svc.Enabled() || svc.PublicKey() != "pub" {
		t.Fatalf("unexpected service state: %+v", svc)
	}
}

func TestPushEndpointsDisabledWithoutKeys(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodGet, "/api/push/config", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	var cfg pushConfigResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Enabled {
		t.Error("push must report disabled without VAPID keys")
	}

	body := strings.NewReader(`{"endpoint":"https://push.example.com/sub/1","keys":{"p256dh":"k","auth":"a"}}`)
	req = httptest.NewRequest(http.MethodPost, "/api/push/subscribe", body)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestPushSubscribeLifecycle(t *testing.T) {
	srv := NewServer(Config{
		ListenAddr:          "127.0.0.1:0",
		DataDir:             t.TempDir(),
		PushVAPIDPublicKey:  "test-public",
		PushVAPIDPrivateKey: "test-private",
	})

	body := strings.NewReader(`{"endpoint":"https://push.example.com/sub/1","keys":{"p256dh":"k","auth":"a"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/push/subscribe", body)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("subscribe: expected %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/push/config", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	var cfg pushConfigResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if !cfg.Enabled || cfg.VAPIDPublicKey != "test-public" {
		t.Fatalf("unexpected push config: %+v", cfg)
	}
	if cfg.SubscriptionCount != 1 {
		t.Errorf("expected 1 subscription, got %d", cfg.SubscriptionCount)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/push/unsubscribe",
		strings.NewReader(`{"endpoint":"https://push.example.com/sub/1"}`))
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unsubscribe: expected %d, got %d", http.StatusOK, rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/push/config", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	cfg = pushConfigResponse{}
	if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after unsubscribe, got %d", cfg.SubscriptionCount)
	}
}

func TestPushSubscribeRejectsInvalidPayload(t *testing.T) {
	srv := NewServer(Config{
		ListenAddr:          "127.0.0.1:0",
		DataDir:             t.TempDir(),
		PushVAPIDPublicKey:  "test-public",
		PushVAPIDPrivateKey: "test-private",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/push/subscribe",
		strings.NewReader(`{"endpoint":""}`))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestEnsureVAPIDKeysPersists(t *testing.T) {
	dir := t.TempDir()

	pub1, priv1, generated, err := EnsureVAPIDKeys(dir, "mailto:test@example.com")
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if !generated {
		t.Error("first call should generate a key pair")
	}
	if pub1 == "" || priv1 == "" {
		t.Fatal("generated keys must not be empty")
	}

	pub2, priv2, generated, err := EnsureVAPIDKeys(dir, "mailto:test@example.com")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if generated {
		t.Error("second call should load the stored pair")
	}
	if pub2 != pub1 || priv2 != priv1 {
		t.Error("keys must survive across calls")
	}
}
