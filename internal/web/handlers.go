package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/arcade"
	"github.com/asheshgoplani/agent-arcade/internal/monitor"
)

// Status is the live play state served by /api/status and carried on
// websocket status frames.
type Status struct {
	Active     bool              `json:"active"`
	Session    string            `json:"session,omitempty"`
	Agent      string            `json:"agent,omitempty"`
	Game       string            `json:"game,omitempty"`
	ReadyCount int               `json:"readyCount"`
	Monitor    *monitor.Snapshot `json:"monitor,omitempty"`
	Time       time.Time         `json:"time"`
}

// ArcadeSource adapts a play running in this process to the status API.
type ArcadeSource struct {
	play *arcade.Arcade
}

func NewArcadeSource(play *arcade.Arcade) *ArcadeSource {
	return &ArcadeSource{play: play}
}

func (a *ArcadeSource) Status() Status {
	snap := a.play.Snapshot()
	return Status{
		Active:     true,
		Session:    a.play.SessionName(),
		Agent:      a.play.AgentName(),
		Game:       a.play.GameName(),
		ReadyCount: a.play.ReadyCount(),
		Monitor:    &snap,
		Time:       time.Now().UTC(),
	}
}

func (a *ArcadeSource) Events() <-chan monitor.Event {
	return a.play.Events()
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "agent-arcade",
		"routes": []string{
			"/healthz",
			"/api/status",
			"/api/plays",
			"/api/stats",
			"/api/push/config",
			"/api/push/subscribe",
			"/api/push/unsubscribe",
			"/ws",
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"live": s.src != nil,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, s.currentStatus())
}

type playJSON struct {
	ID           int64     `json:"id"`
	Agent        string    `json:"agent"`
	Game         string    `json:"game"`
	StartedAt    time.Time `json:"startedAt"`
	DurationSecs int64     `json:"durationSecs"`
	ReadyCount   int       `json:"readyCount"`
}

type playsResponse struct {
	Plays []playJSON `json:"plays"`
}

func (s *Server) handlePlays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	if s.db == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "DB_NOT_CONFIGURED", "play history is not available")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.db.RecentPlays(limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load play history")
		return
	}

	resp := playsResponse{Plays: make([]playJSON, 0, len(rows))}
	for _, row := range rows {
		resp.Plays = append(resp.Plays, playJSON{
			ID:           row.ID,
			Agent:        row.Agent,
			Game:         row.Game,
			StartedAt:    row.StartedAt,
			DurationSecs: row.DurationSecs,
			ReadyCount:   row.ReadyCount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type gameStatsJSON struct {
	Game          string    `json:"game"`
	PlayCount     int       `json:"playCount"`
	TotalPlaySecs int64     `json:"totalPlaySecs"`
	LastPlayed    time.Time `json:"lastPlayed"`
}

type agentStatsJSON struct {
	Agent         string    `json:"agent"`
	PlayCount     int       `json:"playCount"`
	TotalPlaySecs int64     `json:"totalPlaySecs"`
	ReadyCount    int       `json:"readyCount"`
	LastPlayed    time.Time `json:"lastPlayed"`
}

type statsResponse struct {
	Games  []gameStatsJSON  `json:"games"`
	Agents []agentStatsJSON `json:"agents"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	if s.db == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "DB_NOT_CONFIGURED", "play stats are not available")
		return
	}

	games, err := s.db.GameStats()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load game stats")
		return
	}
	agents, err := s.db.AgentStats()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load agent stats")
		return
	}

	resp := statsResponse{
		Games:  make([]gameStatsJSON, 0, len(games)),
		Agents: make([]agentStatsJSON, 0, len(agents)),
	}
	for _, g := range games {
		resp.Games = append(resp.Games, gameStatsJSON{
			Game:          g.Game,
			PlayCount:     g.PlayCount,
			TotalPlaySecs: g.TotalPlaySecs,
			LastPlayed:    g.LastPlayed,
		})
	}
	for _, a := range agents {
		resp.Agents = append(resp.Agents, agentStatsJSON{
			Agent:         a.Agent,
			PlayCount:     a.PlayCount,
			TotalPlaySecs: a.TotalPlaySecs,
			ReadyCount:    a.ReadyCount,
			LastPlayed:    a.LastPlayed,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
