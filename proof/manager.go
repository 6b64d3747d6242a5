// Package proof issues and verifies signed receipts for completed
// challenges. A receipt is a short-lived JWT a caller can attach to the
// sensitive action it authorized, so downstream services can check the
// second factor happened without talking to the challenge engine.
package proof

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the receipt signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrReceiptInvalid rejects malformed, mis-signed or expired receipts.
	ErrReceiptInvalid = errors.New("invalid verification receipt")
)

// Config holds receipt signing parameters.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Claims is the receipt payload. Subject carries the principal.
type Claims struct {
	ChallengeID string `json:"cid"`
	Channel     string `json:"chn,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and verifies receipts for one signing configuration.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodEd25519
	}

	switch cfg.SigningMethod {
	case MethodEd25519:
		if len(cfg.PrivateKey) != ed25519.PrivateKeySize {
			return nil, errors.New("ed25519 private key must be 64 bytes")
		}
		if len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("ed25519 public key must be 32 bytes")
		}
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 secret must be at least 32 bytes")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a receipt for a consumed challenge.
func (m *Manager) Issue(principalID, challengeID, channel string) (string, error) {
	now := time.Now()

	claims := Claims{
		ChallengeID: challengeID,
		Channel:     channel,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    m.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	switch m.config.SigningMethod {
	case MethodHS256:
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		return token.SignedString(m.config.PrivateKey)
	default:
		token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
		return token.SignedString(ed25519.PrivateKey(m.config.PrivateKey))
	}
}

// Verify parses and validates a receipt, enforcing the signing method so a
// token signed with the wrong algorithm never passes.
func (m *Manager) Verify(token string) (*Claims, error) {
	claims := &Claims{}

	options := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.config.Leeway),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		switch m.config.SigningMethod {
		case MethodHS256:
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.config.PrivateKey, nil
		default:
			if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return ed25519.PublicKey(m.config.PublicKey), nil
		}
	}, options...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrReceiptInvalid, err)
	}

	return claims, nil
}
