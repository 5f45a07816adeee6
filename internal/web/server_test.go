package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/agent-arcade/internal/monitor"
	"github.com/asheshgoplani/agent-arcade/internal/statedb"
)

type fakeSource struct {
	status Status
	events chan monitor.Event
}

func (f *fakeSource) Status() Status               { return f.status }
func (f *fakeSource) Events() <-chan monitor.Event { return f.events }

func wsURL(baseURL, path string) string {
	return "ws://" + strings.TrimPrefix(baseURL, "http://") + path
}

func TestHealthzEndpoint(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"ok":true`) {
		t.Fatalf("expected health response to contain ok=true, got: %s", body)
	}
	if !strings.Contains(body, `"live":false`) {
		t.Fatalf("expected standalone server to report live=false, got: %s", body)
	}
}

func TestHealthzMethodNotAllowed(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestIndexListsRoutes(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/api/status") {
		t.Fatalf("expected route list, got: %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/no-such-route", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d for unknown route, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestStatusWithoutSourceReportsIdle(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var st Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Active {
		t.Error("standalone server must not report an active play")
	}
}

func TestStatusReportsLivePlay(t *testing.T) {
	src := &fakeSource{
		status: Status{
			Active:     true,
			Session:    "arcade_aider_0a1b2c3d",
			Agent:      "aider",
			Game:       "pong",
			ReadyCount: 2,
			Time:       time.Now().UTC(),
		},
	}
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Source: src})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	var st Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.Active || st.Agent != "aider" || st.Game != "pong" {
		t.Errorf("unexpected status payload: %+v", st)
	}
	if st.ReadyCount != 2 {
		t.Errorf("expected readyCount 2, got %d", st.ReadyCount)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Token: "secret-token"})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d without token, got %d", http.StatusUnauthorized, rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status?token=secret-token", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d with query token, got %d", http.StatusOK, rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d with bearer token, got %d", http.StatusOK, rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d with wrong token, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func openTestDB(t *testing.T) *statedb.StateDB {
	t.Helper()
	db, err := statedb.Open(filepath.Join(t.TempDir(), statedb.DBFileName))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPlaysEndpoint(t *testing.T) {
	db := openTestDB(t)
	id, err := db.StartPlay("aider", "pong", time.Now().Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("start play: %v", err)
	}
	if err := db.FinishPlay(id, 90*time.Second, 3); err != nil {
		t.Fatalf("finish play: %v", err)
	}

	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", DB: db})

	req := httptest.NewRequest(http.MethodGet, "/api/plays", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	var resp playsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode plays: %v", err)
	}
	if len(resp.Plays) != 1 {
		t.Fatalf("expected 1 play, got %d", len(resp.Plays))
	}
	play := resp.Plays[0]
	if play.Agent != "aider" || play.Game != "pong" {
		t.Errorf("unexpected play row: %+v", play)
	}
	if play.DurationSecs != 90 || play.ReadyCount != 3 {
		t.Errorf("unexpected play numbers: %+v", play)
	}
}

func TestPlaysEndpointRejectsBadLimit(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", DB: openTestDB(t)})

	req := httptest.NewRequest(http.MethodGet, "/api/plays?limit=zero", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestPlaysEndpointWithoutDB(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})

	req := httptest.NewRequest(http.MethodGet, "/api/plays", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	db := openTestDB(t)
	for i, game := range []string{"pong", "pong", "nethack"} {
		id, err := db.StartPlay("aider", game, time.Now().Add(-time.Duration(i+1)*time.Hour))
		if err != nil {
			t.Fatalf("start play: %v", err)
		}
		if err := db.FinishPlay(id, time.Minute, 1); err != nil {
			t.Fatalf("finish play: %v", err)
		}
	}

	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", DB: db})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	var resp statsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(resp.Games) != 2 {
		t.Fatalf("expected 2 game aggregates, got %d", len(resp.Games))
	}
	if len(resp.Agents) != 1 || resp.Agents[0].Agent != "aider" {
		t.Fatalf("expected a single aider aggregate, got %+v", resp.Agents)
	}
	if resp.Agents[0].PlayCount != 3 {
		t.Errorf("expected 3 plays for aider, got %d", resp.Agents[0].PlayCount)
	}
}

func TestWSStreamsTransitions(t *testing.T) {
	src := &fakeSource{
		status: Status{Active: true, Agent: "aider", Game: "pong", Time: time.Now().UTC()},
		events: make(chan monitor.Event, 4),
	}
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Source: src})
	defer func() { _ = srv.Shutdown(context.Background()) }()

	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(testServer.URL, "/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var hello wsServerMessage
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != "status" || hello.Event != "connected" {
		t.Fatalf("unexpected hello frame: %+v", hello)
	}
	if hello.Play == nil || hello.Play.Agent != "aider" {
		t.Fatalf("hello frame should carry the play state: %+v", hello.Play)
	}

	src.events <- monitor.Event{
		Timestamp: time.Now().UTC(),
		Status:    monitor.StatusReady,
		Message:   "AI Ready",
	}

	var frame wsServerMessage
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read transition: %v", err)
	}
	if frame.Type != "transition" || frame.Event != "ready" {
		t.Fatalf("unexpected transition frame: %+v", frame)
	}
	if frame.Message != "AI Ready" {
		t.Errorf("expected the ready message, got %q", frame.Message)
	}
}

func TestWSAnswersPing(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})
	defer func() { _ = srv.Shutdown(context.Background()) }()

	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(testServer.URL, "/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var hello wsServerMessage
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}

	if err := conn.WriteJSON(wsClientMessage{Type: "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	var pong wsServerMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Event != "pong" {
		t.Fatalf("expected pong frame, got %+v", pong)
	}
}

func TestWSUnauthorized(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Token: "secret-token"})

	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(testServer.URL, "/ws"), nil)
	if err == nil {
		t.Fatal("expected websocket dial error for unauthorized request")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected HTTP %d on upgrade, got %+v", http.StatusUnauthorized, resp)
	}
}

func TestWSRejectsCrossOrigin(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})

	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(testServer.URL, "/ws"), header)
	if err == nil {
		t.Fatal("expected websocket dial error for cross-origin request")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected HTTP %d on upgrade, got %+v", http.StatusForbidden, resp)
	}
}

func TestAllowWSOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "localhost:8423", true},
		{"http://localhost:8423", "localhost:8423", true},
		{"http://LOCALHOST:8423", "localhost:8423", true},
		{"http://evil.example", "localhost:8423", false},
		{"not a url", "localhost:8423", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := allowWSOrigin(r); got != tt.want {
			t.Errorf("allowWSOrigin(origin=%q, host=%q) = %v, want %v", tt.origin, tt.host, got, tt.want)
		}
	}
}
