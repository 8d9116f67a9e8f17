package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrExpired     = errors.New("jwtx: token expired")
)

// KeyPair holds the EdDSA signing key and its verification half.
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// GenerateKeyPair mints a fresh ephemeral Ed25519 key pair. Tokens signed
// with it do not survive a restart; persistent deployments should load the
// seed from disk instead.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("jwtx: generate key: %w", err)
	}
	return KeyPair{Private: priv, Public: pub}, nil
}

// KeyPairFromSeed restores a deterministic key pair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, fmt.Errorf("jwtx: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{Private: priv, Public: priv.Public().(ed25519.PublicKey)}, nil
}

// Signer signs access-token claims with EdDSA.
type Signer struct {
	key ed25519.PrivateKey
}

func NewSigner(kp KeyPair) *Signer {
	return &Signer{key: kp.Private}
}

func (s *Signer) Sign(c Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier struct {
	pub    ed25519.PublicKey
	issuer string
	leeway time.Duration
}

// NewVerifier builds a verifier bound to the given public key and issuer.
// Leeway allows small clock skew when validating exp/nbf, because time
// sync is never perfect.
func NewVerifier(kp KeyPair, issuer string, leeway time.Duration) *Verifier {
	return &Verifier{pub: kp.Public, issuer: issuer, leeway: leeway}
}

func (v *Verifier) Verify(token string) (Claims, error) {
	var claims Claims

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, ErrAlgMismatch
		}
		return v.pub, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		default:
			return Claims{}, ErrInvalidSig
		}
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidSig
	}

	return claims, nil
}
