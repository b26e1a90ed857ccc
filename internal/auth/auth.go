// Package auth manages credentials, sessions and login throttling.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/filecluster/filecluster/internal/models"
)

var (
	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is returned when an IP exceeds the attempt window.
	ErrRateLimited = errors.New("too many attempts, try again later")
	// ErrIPBlocked is returned for IPs blocklisted after repeated failures.
	ErrIPBlocked = errors.New("ip blocked for suspicious activity")
	// ErrInvalidToken is returned for unknown session tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionExpired is returned when a session is older than the TTL.
	ErrSessionExpired = errors.New("session expired")
)

const (
	// sessionTTL is the wall-clock lifetime of a session.
	sessionTTL = 24 * time.Hour
	// rateWindow is the fixed length of the per-IP attempt window.
	rateWindow = 60 * time.Second
	// rateLimit is the number of attempts allowed within one window.
	rateLimit = 10
	// maxFailures is the cumulative password failures before an IP is blocklisted.
	maxFailures = 5
	// tokenBytes is the entropy of a session token.
	tokenBytes = 32
)

// attemptWindow is the per-IP sliding counter state.
type attemptWindow struct {
	count int
	start time.Time
}

// Controller owns the session table, the per-IP failure counters and
// the rate limiter. The blocklist persists until process restart.
type Controller struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	failures map[string]int
	blocked  map[string]struct{}
	windows  map[string]*attemptWindow

	cost int
	log  *zap.Logger
	now  func() time.Time
}

// NewController returns a Controller hashing passwords at the given
// bcrypt cost.
func NewController(cost int, log *zap.Logger) *Controller {
	return &Controller{
		sessions: make(map[string]models.Session),
		failures: make(map[string]int),
		blocked:  make(map[string]struct{}),
		windows:  make(map[string]*attemptWindow),
		cost:     cost,
		log:      log,
		now:      time.Now,
	}
}

// HashPassword hashes a password with bcrypt.
func (c *Controller) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate verifies the user's password and opens a session. Checks
// short-circuit in order: rate limit, IP blocklist, password. Every
// attempt, successful or not, consumes one rate limiter slot. On
// success the user's token, last access and last IP are refreshed and
// the IP's failure counter is cleared.
func (c *Controller) Authenticate(user *models.User, password, ip string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rateLimited(ip) {
		return "", ErrRateLimited
	}
	if _, blocked := c.blocked[ip]; blocked {
		return "", ErrIPBlocked
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		c.recordFailure(ip)
		return "", ErrInvalidCredentials
	}

	// Advisory only: a new source address never blocks a valid login.
	if user.LastIP != "" && user.LastIP != ip {
		c.log.Warn("login from new ip",
			zap.String("user", user.ID),
			zap.String("previous_ip", user.LastIP),
			zap.String("ip", ip),
		)
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	now := c.now()
	user.Token = token
	user.LastAccess = now
	user.LastIP = ip

	c.sessions[token] = models.Session{
		Token:     token,
		UserID:    user.ID,
		IP:        ip,
		StartedAt: now,
	}
	delete(c.failures, ip)

	return token, nil
}

// Validate returns the session for a token, evicting it lazily when
// it is past the TTL.
func (c *Controller) Validate(token string) (models.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.sessions[token]
	if !ok {
		return models.Session{}, ErrInvalidToken
	}
	if c.now().Sub(session.StartedAt) > sessionTTL {
		delete(c.sessions, token)
		return models.Session{}, ErrSessionExpired
	}
	return session, nil
}

// Logout removes the session. Unknown tokens are a silent no-op.
func (c *Controller) Logout(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, token)
}

// ActiveSessions returns the number of open sessions, expired ones
// included until they are lazily evicted.
func (c *Controller) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// rateLimited consumes one slot for the IP and reports whether the
// window is exhausted. Caller must hold c.mu.
func (c *Controller) rateLimited(ip string) bool {
	now := c.now()
	w, ok := c.windows[ip]
	if !ok || now.Sub(w.start) > rateWindow {
		c.windows[ip] = &attemptWindow{count: 1, start: now}
		return false
	}
	w.count++
	return w.count > rateLimit
}

// recordFailure counts a password failure and blocklists the IP once
// it accumulates maxFailures. Caller must hold c.mu.
func (c *Controller) recordFailure(ip string) {
	c.failures[ip]++
	if c.failures[ip] >= maxFailures {
		c.blocked[ip] = struct{}{}
		c.log.Warn("ip blocklisted after repeated failures", zap.String("ip", ip))
	}
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
