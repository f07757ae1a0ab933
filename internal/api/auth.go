package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ticketTTL bounds the window between requesting a WebSocket ticket
	// and opening the connection.
	ticketTTL = 60 * time.Second

	// defaultTokenTTLMinutes applies when the configured token TTL is zero.
	defaultTokenTTLMinutes = 15

	ticketBytes = 32
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleLogin exchanges the hub credentials for a signed HS256 JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !s.credentialsMatch(req.Username, req.Password) {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl == 0 {
		ttl = defaultTokenTTLMinutes
	}
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.Username,
		"iat": now.Unix(),
		"exp": now.Add(time.Duration(ttl) * time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(s.secCfg.JWT.Secret))
	if err != nil {
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60,
	})
}

// credentialsMatch compares both fields in constant time regardless of
// which one mismatches.
func (s *Server) credentialsMatch(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.secCfg.Auth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.secCfg.Auth.Password)) == 1
	return userOK && passOK
}

// handleWSTicket issues a single-use ticket bound to the authenticated
// subject. The WebSocket handler consumes it instead of reading a JWT from
// the URL, keeping tokens out of query strings and access logs.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	subject, _ := r.Context().Value(ctxKeySubject).(string)
	ticket := newTicket()
	s.tickets.add(ticket, subject)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

func newTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read cannot fail on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// ticketStore holds pending WebSocket tickets. Each ticket is valid for
// one connection attempt within ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
}

type ticketEntry struct {
	subject   string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

func (t *ticketStore) add(ticket, subject string) {
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{subject: subject, expiresAt: time.Now().Add(ticketTTL)}
	t.mu.Unlock()
}

// consume removes the ticket whether or not it is still valid, so a replay
// of an expired ticket cannot succeed later either. It returns the subject
// the ticket was issued to.
func (t *ticketStore) consume(ticket string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return "", false
	}
	delete(t.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.subject, true
}

// cleanLoop discards tickets that expired without being consumed, so
// abandoned login sessions do not accumulate entries.
func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			t.mu.Lock()
			for ticket, entry := range t.tickets {
				if now.After(entry.expiresAt) {
					delete(t.tickets, ticket)
				}
			}
			t.mu.Unlock()
		}
	}
}
