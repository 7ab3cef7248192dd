// Package token issues and verifies the signed tokens of the public API: a
// bearer token identifying an owner, and a turn token binding one turn to
// its owner.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	audienceUser = "user"
	audienceTurn = "turn"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// UserClaims identify an owner.
type UserClaims struct {
	OwnerID int64 `json:"oid"`
	jwt.RegisteredClaims
}

// TurnClaims bind a turn to its owner.
type TurnClaims struct {
	TurnID  string `json:"tid"`
	OwnerID int64  `json:"oid"`
	Kind    string `json:"kind"`
	jwt.RegisteredClaims
}

// Manager signs tokens with HMAC-SHA256.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Config holds Manager settings. TTL applies to user tokens only; turn
// tokens expire with the turn.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// New creates a Manager.
func New(cfg *Config) (*Manager, error) {
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("token secret must be at least 16 bytes")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}, nil
}

func (m *Manager) registered(audience, subject string, expires time.Time) jwt.RegisteredClaims {
	now := m.now()
	return jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}

func (m *Manager) parse(raw, audience string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// IssueUser creates a bearer token for ownerID.
func (m *Manager) IssueUser(ownerID int64) (string, error) {
	return m.sign(&UserClaims{
		OwnerID:          ownerID,
		RegisteredClaims: m.registered(audienceUser, strconv.FormatInt(ownerID, 10), m.now().Add(m.ttl)),
	})
}

// ParseUser verifies a bearer token.
func (m *Manager) ParseUser(raw string) (*UserClaims, error) {
	var c UserClaims
	if err := m.parse(raw, audienceUser, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// IssueTurn creates a turn token valid until expires.
func (m *Manager) IssueTurn(turnID string, ownerID int64, kind string, expires time.Time) (string, error) {
	return m.sign(&TurnClaims{
		TurnID:           turnID,
		OwnerID:          ownerID,
		Kind:             kind,
		RegisteredClaims: m.registered(audienceTurn, turnID, expires),
	})
}

// ParseTurn verifies a turn token.
func (m *Manager) ParseTurn(raw string) (*TurnClaims, error) {
	var c TurnClaims
	if err := m.parse(raw, audienceTurn, &c); err != nil {
		return nil, err
	}
	if c.TurnID == "" {
		return nil, fmt.Errorf("%w: missing turn id", ErrInvalidToken)
	}
	return &c, nil
}
