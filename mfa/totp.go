package mfa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	totpSecretBytes = 20

	defaultDigits = 6
	defaultPeriod = 30
	// defaultSkew accepts the immediately adjacent time-step on each side to
	// tolerate client clock drift.
	defaultSkew = 1
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrEmptySecret is returned when a TOTP check is attempted without an
// enrolled secret.
var ErrEmptySecret = errors.New("empty totp secret")

// TOTPConfig tunes code shape and tolerance. The zero value yields the
// RFC 6238 defaults: 6 digits, 30-second period, one step of skew.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period int
	Skew   int
}

// TOTP generates and verifies time-based one-time codes.
type TOTP struct {
	config TOTPConfig
}

// NewTOTP returns a verifier for cfg, filling zero-value fields with defaults.
func NewTOTP(cfg TOTPConfig) *TOTP {
	if cfg.Digits <= 0 {
		cfg.Digits = defaultDigits
	}
	if cfg.Period <= 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.Skew <= 0 {
		cfg.Skew = defaultSkew
	}
	return &TOTP{config: cfg}
}

// GenerateSecret creates a fresh shared secret and its base32 encoding.
func (t *TOTP) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, b32.EncodeToString(raw), nil
}

// ProvisionURI renders the otpauth:// enrollment URI for authenticator apps.
func (t *TOTP) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(t.config.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", t.config.Issuer)
	v.Set("period", strconv.Itoa(t.config.Period))
	v.Set("digits", strconv.Itoa(t.config.Digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify checks code against the base32-encoded secret at now, accepting the
// configured skew on either side. A malformed code returns false, not an
// error; only a missing secret is an error.
func (t *TOTP) Verify(secretBase32, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != t.config.Digits || !isNumeric(trimmed) {
		return false, nil
	}

	secret, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
	if err != nil || len(secret) == 0 {
		return false, ErrEmptySecret
	}

	baseCounter := now.Unix() / int64(t.config.Period)
	for step := -t.config.Skew; step <= t.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(secret, counter, t.config.Digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
