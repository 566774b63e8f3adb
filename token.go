package authcore

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind discriminates the single-purpose signed tokens. A token of one
// kind is never accepted where another is expected.
type TokenKind string

const (
	// TokenPasswordReset authorizes one password reset.
	TokenPasswordReset TokenKind = "password_reset"
	// TokenEmailVerification confirms ownership of an email address.
	TokenEmailVerification TokenKind = "email_verification"
	// TokenMFASetup authorizes MFA enrollment after a password check, for
	// users blocked by an organization MFA mandate.
	TokenMFASetup TokenKind = "mfa_setup"
)

// TokenErrKind classifies why a token was rejected. The two user-facing
// messages are "invalid or expired" (request a new one) and "already used"
// (nothing to do); finer distinctions exist for logging only.
type TokenErrKind uint8

const (
	// TokenOK means the token verified.
	TokenOK TokenErrKind = iota
	// TokenMalformed covers bad signatures, wrong algorithms, and garbage.
	TokenMalformed
	// TokenExpired means the signature verified but the deadline passed.
	TokenExpired
	// TokenWrongKind means a valid token was presented for the wrong
	// purpose.
	TokenWrongKind
	// TokenAlreadyUsed means a reset token predates the most recent
	// password change.
	TokenAlreadyUsed
)

// TokenResult is the outcome of verifying a purpose token. Callers branch on
// Valid/ErrKind instead of error values: a bad token is an expected input,
// not a failure.
type TokenResult struct {
	Valid    bool
	Kind     TokenKind
	UserID   string
	IssuedAt time.Time
	ErrKind  TokenErrKind
}

type purposeClaims struct {
	Kind TokenKind `json:"knd"`
	jwt.RegisteredClaims
}

// issueToken signs a purpose token for userID with the given lifetime.
func (e *Engine) issueToken(kind TokenKind, userID string, ttl time.Duration, now time.Time) (string, error) {
	claims := purposeClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.config.Token.Secret)
}

// verifyToken checks signature, expiry, and purpose. It never returns an
// error: every rejection is a classified TokenResult.
func (e *Engine) verifyToken(token string, want TokenKind, now time.Time) TokenResult {
	var claims purposeClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return e.config.Token.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case err == nil && parsed.Valid:
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenResult{ErrKind: TokenExpired}
	default:
		return TokenResult{ErrKind: TokenMalformed}
	}

	if claims.Kind != want {
		return TokenResult{ErrKind: TokenWrongKind}
	}

	issuedAt := time.Time{}
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	return TokenResult{
		Valid:    true,
		Kind:     claims.Kind,
		UserID:   claims.Subject,
		IssuedAt: issuedAt,
	}
}
