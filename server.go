package main

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookie = "sp_session"
	maxBodySize   = 4 * maxImageSize
)

// rateLimiter is a simple per-IP token bucket rate limiter.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*bucket
	rate     int           // tokens per interval
	interval time.Duration // refill interval
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

func newRateLimiter(rate int, interval time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*bucket),
		rate:     rate,
		interval: interval,
	}
	// Cleanup stale entries every minute.
	go func() {
		for {
			time.Sleep(time.Minute)
			rl.mu.Lock()
			for ip, b := range rl.visitors {
				if time.Since(b.lastSeen) > 5*time.Minute {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}()
	return rl
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.visitors[ip]
	if !ok {
		rl.visitors[ip] = &bucket{tokens: rl.rate - 1, lastSeen: time.Now()}
		return true
	}

	// Refill tokens based on elapsed time.
	elapsed := time.Since(b.lastSeen)
	refill := int(elapsed / rl.interval)
	if refill > 0 {
		b.tokens += refill * rl.rate
		if b.tokens > rl.rate {
			b.tokens = rl.rate
		}
		b.lastSeen = time.Now()
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// clientIP returns the host part of r.RemoteAddr, so that every connection
// from one address shares a bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Server is the HTTP API.
type Server struct {
	mux       *http.ServeMux
	app       *App
	puzzleRL  *rateLimiter
	publishRL *rateLimiter
}

// NewServer creates a configured HTTP server.
func NewServer(app *App) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		app:       app,
		puzzleRL:  newRateLimiter(5, time.Minute),  // 5 puzzles/min per IP
		publishRL: newRateLimiter(10, time.Minute), // 10 issues/min per IP
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// Session API
	s.mux.HandleFunc("POST /api/session", s.handleLogin)
	s.mux.HandleFunc("GET /api/session", s.authed(s.handleGetSession))
	s.mux.HandleFunc("DELETE /api/session", s.handleLogout)
	s.mux.HandleFunc("GET /api/circle-code", s.handleCircleCode)

	// Draft API
	s.mux.HandleFunc("GET /api/draft", s.authed(s.handleGetDraft))
	s.mux.HandleFunc("PUT /api/draft", s.authed(s.handleSaveDraft))
	s.mux.HandleFunc("POST /api/draft/text", s.authed(s.handleAddText))
	s.mux.HandleFunc("POST /api/draft/image", s.authed(s.handleAddImage))
	s.mux.HandleFunc("POST /api/draft/puzzle", s.authed(s.handleAddPuzzle))
	s.mux.HandleFunc("DELETE /api/draft/blocks/{id}", s.authed(s.handleRemoveBlock))

	// Issue API
	s.mux.HandleFunc("POST /api/issues", s.authed(s.handlePublish))
	s.mux.HandleFunc("GET /api/issues", s.authed(s.handleListIssues))
	s.mux.HandleFunc("GET /api/issues/{id}", s.authed(s.handleGetIssue))
	s.mux.HandleFunc("GET /api/issues/{id}/html", s.authed(s.handleIssueHTML))
	s.mux.HandleFunc("POST /api/issues/{id}/share", s.authed(s.handleShareIssue))

	s.mux.HandleFunc("GET /api/events", s.authed(s.handleEvents))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; connect-src 'self'")
	s.mux.ServeHTTP(w, r)
}

// authed resolves the caller's session before calling h.
func (s *Server) authed(h func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok, err := s.app.Sessions.Resolve(r.Context(), sessionToken(r))
		if err != nil {
			jsonError(w, err)
			return
		}
		if !ok {
			jsonError(w, NewUnauthorized("login required"))
			return
		}
		h(w, r, u)
	}
}

// sessionToken reads the bearer token, falling back to the session cookie.
func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Session handlers ---

// POST /api/session: log in to a circle.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		GroupCode string `json:"groupCode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	token, u, err := s.app.Sessions.Login(r.Context(), req.Name, req.Email, req.GroupCode)
	if err != nil {
		jsonError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.app.Sessions.ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"token": token, "user": u})
}

// GET /api/session: current user.
func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request, u User) {
	writeJSON(w, http.StatusOK, u)
}

// DELETE /api/session: log out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Sessions.Logout(r.Context(), sessionToken(r)); err != nil {
		jsonError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/circle-code: suggest a new circle code.
func (s *Server) handleCircleCode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"code": GenerateCircleCode()})
}

// --- Draft handlers ---

// GET /api/draft
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request, u User) {
	blocks, err := s.app.Store.GetDraft(r.Context(), u)
	if err != nil {
		jsonError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

// PUT /api/draft: replace the whole draft.
func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request, u User) {
	var blocks BlockList
	if !decodeBody(w, r, &blocks) {
		return
	}
	if err := s.app.Shoebox.ReplaceDraft(r.Context(), u, blocks); err != nil {
		jsonError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/draft/text
func (s *Server) handleAddText(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	b, err := s.app.Shoebox.AddText(r.Context(), u, req.Content)
	if err != nil {
		jsonError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// POST /api/draft/image
func (s *Server) handleAddImage(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	b, err := s.app.Shoebox.AddImage(r.Context(), u, req.URL, req.Caption)
	if err != nil {
		jsonError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// POST /api/draft/puzzle: queue a puzzle built from the draft's notes.
func (s *Server) handleAddPuzzle(w http.ResponseWriter, r *http.Request, u User) {
	if !s.puzzleRL.allow(clientIP(r)) {
		jsonError(w, NewRateLimited())
		return
	}
	b, err := s.app.Shoebox.StartPuzzle(r.Context(), u)
	if err != nil {
		jsonError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, b)
}

// DELETE /api/draft/blocks/{id}
func (s *Server) handleRemoveBlock(w http.ResponseWriter, r *http.Request, u User) {
	if err := s.app.Shoebox.RemoveBlock(r.Context(), u, r.PathValue("id")); err != nil {
		jsonError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Issue handlers ---

// POST /api/issues: publish the caller's draft.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, u User) {
	if !s.publishRL.allow(clientIP(r)) {
		jsonError(w, NewRateLimited())
		return
	}
	issue, err := s.app.Publisher.PublishDraft(r.Context(), u)
	if err != nil {
		jsonError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

// GET /api/issues: the circle's archive, newest first.
func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request, u User) {
	issues, err := s.app.Store.ListIssues(r.Context(), u.GroupCode)
	if err != nil {
		jsonError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// GET /api/issues/{id}
func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request, u User) {
	issue, err := s.app.Store.GetIssue(r.Context(), u.GroupCode, r.PathValue("id"))
	if err != nil {
		jsonError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// GET /api/issues/{id}/html: web version of an issue.
func (s *Server) handleIssueHTML(w http.ResponseWriter, r *http.Request, u User) {
	issue, err := s.app.Store.GetIssue(r.Context(), u.GroupCode, r.PathValue("id"))
	if err != nil {
		jsonError(w, err)
		return
	}
	html, err := RenderHTML(issue)
	if err != nil {
		jsonError(w, NewInternal(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// POST /api/issues/{id}/share: mail an issue to someone.
func (s *Server) handleShareIssue(w http.ResponseWriter, r *http.Request, u User) {
	if !s.app.Mailer.Enabled() {
		jsonError(w, NewUnavailable("mail is not configured"))
		return
	}
	var req struct {
		To string `json:"to"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	to := strings.TrimSpace(req.To)
	if to == "" || !strings.Contains(to, "@") {
		jsonError(w, NewInvalidRequest("a recipient address is required"))
		return
	}

	issue, err := s.app.Store.GetIssue(r.Context(), u.GroupCode, r.PathValue("id"))
	if err != nil {
		jsonError(w, err)
		return
	}
	if err := ShareIssue(r.Context(), s.app.Mailer, to, issue); err != nil {
		log.Printf("Share issue %s: %v", issue.ID, err)
		jsonError(w, NewUnavailable("mail could not be sent"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/events: SSE stream of the caller's circle.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, u User) {
	s.app.Events.ServeSSE(w, r, u.GroupCode)
}

// --- Helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, NewTooLarge("request body", int(tooBig.Limit), int(tooBig.Limit)+1))
			return false
		}
		jsonError(w, NewInvalidRequest("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// jsonError writes err as {"error": {...}}. Internal details stay in the log.
func jsonError(w http.ResponseWriter, err error) {
	appErr := asAppError(err)
	body := map[string]any{"code": appErr.Code, "message": appErr.Message}
	if appErr.Code == ErrInternal {
		log.Printf("Internal error: %v", err)
		body["message"] = "an internal error occurred"
	} else if appErr.Details != nil {
		body["details"] = appErr.Details
	}
	writeJSON(w, appErr.Status, map[string]any{"error": body})
}
