package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "petbot"

// ControlClaims is the payload of a control token.
type ControlClaims struct {
	// Controller names the holder, e.g. "app" or "operator".
	Controller string `json:"controller"`
	jwt.RegisteredClaims
}

// JWTManager mints and verifies control tokens. The signing key is derived
// from the control secret, so tokens survive restarts as long as the secret
// does.
type JWTManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration
	now        func() time.Time
}

// NewJWTManager derives an Ed25519 key from secret. A zero ttl mints tokens
// that never expire.
func NewJWTManager(secret string, ttl time.Duration) (*JWTManager, error) {
	if secret == "" {
		return nil, errors.New("control secret is empty")
	}
	seed := sha256.Sum256([]byte(secret))
	privateKey := ed25519.NewKeyFromSeed(seed[:])

	return &JWTManager{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// CreateToken mints a token for controller.
func (m *JWTManager) CreateToken(controller string) (string, error) {
	now := m.now()
	claims := ControlClaims{
		Controller: controller,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   controller,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	if m.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(m.privateKey)
}

// VerifyToken verifies and parses a control token.
func (m *JWTManager) VerifyToken(tokenString string) (*ControlClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ControlClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.publicKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*ControlClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
