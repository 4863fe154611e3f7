// gitgame
//
// Players join a session over a websocket and are shown a chunk of code
// picked from the public repositories of the session's authors. Everyone
// guesses which author wrote it before the timer runs out.
//
// Features:
// - Sessions are created with POST /session, optionally seeded with authors
// - WebSockets per session and username: /session/:id/ws/:username
// - Every player's username is also added to the pool of authors
// - First connection becomes host; the host starts and advances rounds
// - Host is re-elected at random when the host leaves
// - Reconnecting with the same username takes over the old connection
// - Chunks grow automatically until the guess timer runs out
// - Sessions are removed once empty, or after an idle timeout
// - Random 8-char session IDs via crypto/rand, with server-side collision check
// - QR code for sharing a session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"

	"github.com/Seednode/gitgame/internal/file"
	"github.com/Seednode/gitgame/internal/github"
	"github.com/Seednode/gitgame/internal/metrics"
	"github.com/Seednode/gitgame/internal/session"
)

const (
	sendBuffer     = 32
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	maxUsername    = 39
	maxAuthors     = 50
)

var (
	errClientClosed = errors.New("client connection closed")
	errSlowClient   = errors.New("client send buffer full")
)

// client is one websocket connection. It never blocks the session that
// sends to it: a client that can't keep up is dropped.
type client struct {
	conn *websocket.Conn
	send chan any

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan any, sendBuffer),
	}
}

func (c *client) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return errSlowClient
	}
}

func (c *client) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// The close frame has to go out before writePump sees the closed
	// channel and drops the connection.
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	close(c.send)

	return c.conn.Close()
}

func (c *client) readPump(cfg *Config, s *session.Session, p *session.Player) {
	defer func() {
		if err := s.Disconnect(context.Background(), p); err != nil && !errors.Is(err, session.ErrClosed) {
			logf(cfg, "ERROR: Session [%s]; disconnecting %q: %v", s.ID(), p.Username(), err)
		}
		_ = c.Close(websocket.CloseNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg session.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logf(cfg, "GAMES: Session [%s]; ignoring malformed message from %q: %v", s.ID(), p.Username(), err)
			continue
		}

		if err := s.Handle(context.Background(), p, msg); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Registry holds every live session keyed by ID.
type Registry struct {
	cfg      *Config
	ctx      context.Context
	options  func() session.Options
	mu       sync.Mutex
	sessions map[string]*session.Session
}

// newRegistry runs every session it creates until ctx ends.
func newRegistry(ctx context.Context, cfg *Config, options func() session.Options) *Registry {
	return &Registry{
		cfg:      cfg,
		ctx:      ctx,
		options:  options,
		sessions: make(map[string]*session.Session),
	}
}

// newSessionID generates a crypto-random session ID that doesn't collide
// with existing sessions. The caller must hold r.mu.
func (r *Registry) newSessionID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := r.sessions[id]; !exists {
			return id
		}
	}
}

// Create starts a session and registers authors with it before any player
// connects.
func (r *Registry) Create(ctx context.Context, authors []string) (*session.Session, error) {
	opts := r.options()
	opts.OnEmpty = r.Remove

	r.mu.Lock()
	id := r.newSessionID()
	s := session.New(id, opts)
	r.sessions[id] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	go s.Run(r.ctx)

	if err := s.Setup(ctx, authors); err != nil {
		r.Remove(id)
		return nil, err
	}

	logf(r.cfg, "GAMES: Created session %s with %d authors", id, len(authors))

	return s, nil
}

func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Remove stops and forgets a session. It is safe to call from the
// session's own event loop.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if !ok {
		return
	}

	s.Close()

	logf(r.cfg, "GAMES: Removed session %s", id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// reap removes sessions idle since before cutoff.
func (r *Registry) reap(cutoff time.Time) int {
	r.mu.Lock()
	var idle []string
	for id, s := range r.sessions {
		if s.Info().LastActive.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.Remove(id)
	}

	return len(idle)
}

// reaperLoop periodically removes sessions that have been idle longer than
// timeout, until ctx ends.
func (r *Registry) reaperLoop(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}

	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := r.reap(now.Add(-timeout)); n > 0 {
				logf(r.cfg, "GAMES: Reaped %d idle sessions", n)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, errs chan<- error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs <- err
	}
}

type createRequest struct {
	Authors []string `json:"authors"`
}

type createResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error          string   `json:"error"`
	InvalidAuthors []string `json:"invalid_authors,omitempty"`
}

func normalizeAuthors(authors []string) []string {
	seen := make(map[string]bool, len(authors))
	out := make([]string, 0, len(authors))

	for _, a := range authors {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}

	return out
}

type userLookup interface {
	User(ctx context.Context, login string) (*github.User, error)
}

// invalidAuthors looks every author up with the provider and returns those
// that don't exist. Any other provider failure is returned as an error.
func invalidAuthors(ctx context.Context, users userLookup, authors []string) ([]string, error) {
	missing := make([]bool, len(authors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, author := range authors {
		g.Go(func() error {
			_, err := users.User(gctx, author)

			var apiErr *github.APIError
			switch {
			case err == nil:
			case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
				missing[i] = true
			default:
				return err
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var invalid []string
	for i, author := range authors {
		if missing[i] {
			invalid = append(invalid, author)
		}
	}

	return invalid, nil
}

func serveCreateSession(cfg *Config, reg *Registry, users userLookup, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		securityHeaders(cfg, w)

		var req createRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"}, errs)
				return
			}
		}

		authors := normalizeAuthors(req.Authors)
		if len(authors) > maxAuthors {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "too many authors"}, errs)
			return
		}

		invalid, err := invalidAuthors(r.Context(), users, authors)
		if err != nil {
			logf(cfg, "ERROR: Validating authors: %v", err)
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "unable to validate authors"}, errs)
			return
		}
		if len(invalid) > 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:          "invalid authors",
				InvalidAuthors: invalid,
			}, errs)
			return
		}

		s, err := reg.Create(r.Context(), authors)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unable to create session"}, errs)
			return
		}

		logf(cfg, "SERVE: Created session %s for %s in %s",
			s.ID(),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)

		writeJSON(w, http.StatusCreated, createResponse{ID: s.ID()}, errs)
	}
}

func serveSessionInfo(cfg *Config, reg *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		securityHeaders(cfg, w)

		s, ok := reg.Get(ps.ByName("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"}, errs)
			return
		}

		writeJSON(w, http.StatusOK, s.Info(), errs)
	}
}

func validUsername(username string) bool {
	return username != "" && len(username) <= maxUsername && !strings.ContainsAny(username, " \t\r\n")
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = conn.Close()
}

// WebSocket handler that picks the session based on :id
func serveSocket(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade for %s: %v", realIP(r), err)
			return
		}

		s, ok := reg.Get(ps.ByName("id"))
		if !ok {
			closeConn(conn, session.CloseSessionNotFound, "Session not found.")
			return
		}

		username := strings.TrimSpace(ps.ByName("username"))
		if !validUsername(username) {
			closeConn(conn, session.CloseNotAllowed, "Invalid username.")
			return
		}

		metrics.WSConnections.Inc()
		defer metrics.WSConnections.Dec()

		c := newClient(conn)
		p := session.NewPlayer(username, c)

		go c.writePump()

		if err := s.Connect(r.Context(), p); err != nil {
			_ = c.Close(session.CloseSessionNotFound, "Session has ended.")
			return
		}

		logf(cfg, "GAMES: Player %q connected to %s from %s", username, s.ID(), realIP(r))

		c.readPump(cfg, s, p)
	}
}

// QR handler: generates a PNG QR code for the session URL using go-qrcode.
func serveQR(cfg *Config, reg *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")
		if _, ok := reg.Get(id); !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/session/" + id

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		_, err = w.Write(png)
		if err != nil {
			errs <- err
		}
	}
}

type rateLimiter interface {
	RateLimit(ctx context.Context) (*github.RateLimit, error)
}

func serveRateLimit(cfg *Config, limits rateLimiter, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		rl, err := limits.RateLimit(r.Context())
		if err != nil {
			logf(cfg, "ERROR: Fetching rate limit: %v", err)
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "unable to fetch rate limit"}, errs)
			return
		}

		writeJSON(w, http.StatusOK, rl, errs)
	}
}

// registerGitGame sets up routes so that:
//   - POST $prefix/session              → creates a session, returns its ID
//   - $prefix/session/:id               → session state as JSON
//   - $prefix/session/:id/ws/:username  → WebSocket for that session
//   - $prefix/session/:id/qr            → PNG QR code for that session URL
func registerGitGame(cfg *Config, mux *httprouter.Router, reg *Registry, provider file.Provider, errs chan<- error) {
	mux.POST(cfg.prefix+"/session", serveCreateSession(cfg, reg, provider, errs))
	mux.GET(cfg.prefix+"/session/:id", serveSessionInfo(cfg, reg, errs))
	mux.GET(cfg.prefix+"/session/:id/ws/:username", serveSocket(cfg, reg))
	mux.GET(cfg.prefix+"/session/:id/qr", serveQR(cfg, reg, errs))
}
