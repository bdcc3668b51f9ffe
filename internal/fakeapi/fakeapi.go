// Package fakeapi serves an in-process stand-in for the GalaCash API for tests.
//
// Every documented read route answers 200 with a plausible envelope. Tests can
// queue login statuses per NIM, force a status on any path and switch token
// delivery between the JSON body and cookies.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Prefix is the API mount point; BaseURL includes it.
const Prefix = "/api"

// Hit is one request seen by the server.
type Hit struct {
	Method        string
	Path          string // without Prefix
	Query         string
	Authorization string
	RequestID     string
}

// Server is a fake GalaCash API.
type Server struct {
	srv *httptest.Server

	mu              sync.Mutex
	hits            []Hit
	loginQueue      map[string][]int
	failures        map[string]int
	tokensInCookies bool
	issued          map[string]bool
}

// New starts a server. Close it when done.
func New() *Server {
	s := &Server{
		loginQueue: make(map[string][]int),
		failures:   make(map[string]int),
		issued:     make(map[string]bool),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// BaseURL returns the API base URL (scheme, host and Prefix).
func (s *Server) BaseURL() string {
	return s.srv.URL + Prefix
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// QueueLogin makes the next logins for nim answer with statuses, in order,
// before logins succeed again.
func (s *Server) QueueLogin(nim string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginQueue[nim] = append(s.loginQueue[nim], statuses...)
}

// Fail makes every request to path answer with status.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// TokensInCookies switches login and refresh to deliver tokens only as cookies,
// which is what the production API does.
func (s *Server) TokensInCookies(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokensInCookies = on
}

// Hits returns a copy of the requests seen so far.
func (s *Server) Hits() []Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Hit(nil), s.hits...)
}

// Paths returns "METHOD path?query" for every request seen so far.
func (s *Server) Paths() []string {
	hits := s.Hits()
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		line := h.Method + " " + h.Path
		if h.Query != "" {
			line += "?" + h.Query
		}
		out = append(out, line)
	}
	return out
}

// Count returns how many requests hit path (query ignored).
func (s *Server) Count(path string) int {
	n := 0
	for _, h := range s.Hits() {
		if h.Path == path {
			n++
		}
	}
	return n
}

var publicPaths = map[string]bool{
	"/auth/login":              true,
	"/auth/refresh":            true,
	"/payment-accounts/active": true,
	"/cron/health":             true,
}

var listPrefixes = map[string]string{
	"/transactions":                "txn",
	"/fund-applications":           "fund",
	"/fund-applications/my":        "myfund",
	"/cash-bills":                  "bill",
	"/cash-bills/my":               "mybill",
	"/bendahara/fund-applications": "bfund",
	"/bendahara/cash-bills":        "bbill",
	"/bendahara/students":          "student",
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, Prefix)

	s.mu.Lock()
	s.hits = append(s.hits, Hit{
		Method:        r.Method,
		Path:          path,
		Query:         r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-ID"),
	})
	forced, failing := s.failures[path]
	cookies := s.tokensInCookies
	s.mu.Unlock()

	if failing {
		writeError(w, forced, "FORCED", fmt.Sprintf("forced status %d", forced))
		return
	}

	if !publicPaths[path] && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "No token provided")
		return
	}

	switch {
	case path == "/auth/login" && r.Method == http.MethodPost:
		s.login(w, r, cookies)
	case path == "/auth/refresh" && r.Method == http.MethodPost:
		s.refresh(w, r, cookies)
	case path == "/labels/transaction-categories":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": []map[string]string{
				{"value": "kas_kelas", "label": "Kas Kelas"},
				{"value": "donation", "label": "Donasi"},
				{"value": "other", "label": "Lainnya"},
			},
		})
	case path == "/transactions/export":
		format := r.URL.Query().Get("format")
		if format == "excel" {
			w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			_, _ = w.Write([]byte("PK\x03\x04fake-xlsx"))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("date,type,amount\n2026-01-05," + r.URL.Query().Get("type") + ",15000\n"))
	case listPrefixes[path] != "":
		prefix := listPrefixes[path]
		items := []map[string]interface{}{
			{"id": prefix + "-1"},
			{"id": prefix + "-2"},
			{"id": prefix + "-3"},
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"data":       items,
				"pagination": map[string]int{"page": 1, "limit": 10, "total": len(items)},
			},
		})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"path": path},
			"message": "ok",
		})
	}
}

func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued[token]
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, cookies bool) {
	var req struct {
		NIM      string `json:"nim"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NIM == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "nim and password required")
		return
	}

	s.mu.Lock()
	var status int
	if q := s.loginQueue[req.NIM]; len(q) > 0 {
		status = q[0]
		s.loginQueue[req.NIM] = q[1:]
	}
	access, refresh := "access-"+req.NIM, "refresh-"+req.NIM
	if status == 0 {
		s.issued[access] = true
	}
	s.mu.Unlock()

	switch status {
	case 0:
	case http.StatusConflict:
		writeError(w, status, "CONFLICT_ERROR", "User already logged in")
		return
	case http.StatusTooManyRequests:
		writeError(w, status, "RATE_LIMIT_EXCEEDED", "Too many login attempts, please try again later.")
		return
	default:
		writeError(w, status, "ERROR", "login failed")
		return
	}

	data := map[string]interface{}{
		"user": map[string]string{"nim": req.NIM},
	}
	if cookies {
		http.SetCookie(w, &http.Cookie{Name: "accessToken", Value: access, Path: "/", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: refresh, Path: "/", HttpOnly: true})
	} else {
		data["accessToken"] = access
		data["refreshToken"] = refresh
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
		"message": "Login successful",
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request, cookies bool) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	token := req.RefreshToken
	if c, err := r.Cookie("refreshToken"); err == nil && token == "" {
		token = c.Value
	}
	if !strings.HasPrefix(token, "refresh-") {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No refresh token provided")
		return
	}

	access := "access2-" + strings.TrimPrefix(token, "refresh-")
	s.mu.Lock()
	s.issued[access] = true
	s.mu.Unlock()

	if cookies {
		http.SetCookie(w, &http.Cookie{Name: "accessToken", Value: access, Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Token refreshed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    map[string]string{"accessToken": access},
		"message": "Token refreshed",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
