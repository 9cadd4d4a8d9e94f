// Package auth verifies bearer tokens and extracts tenant/role claims.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"
)

const (
	ModeDev  = "dev"  // "tenant:role" tokens or plain headers, no verification
	ModeHMAC = "hmac" // HS256 JWTs signed with AUTH_HMAC_SECRET
)

var (
	ErrMalformed   = errors.New("auth: malformed token")
	ErrSignature   = errors.New("auth: bad signature")
	ErrExpired     = errors.New("auth: token expired")
	ErrNoTenant    = errors.New("auth: missing tenant claim")
	ErrUnsupported = errors.New("auth: unsupported mode or algorithm")
)

// Verifier validates bearer tokens.
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	TenantClaim string
	RoleClaim   string
	Leeway      time.Duration
	now         func() time.Time
}

type Principal struct {
	Tenant  string
	Role    string // admin or user
	Subject string
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

func NewVerifierFromEnv() *Verifier {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	if mode == "" {
		mode = ModeDev
	}
	return &Verifier{
		Mode:        mode,
		HMACSecret:  []byte(os.Getenv("AUTH_HMAC_SECRET")),
		TenantClaim: envOr("AUTH_TENANT_CLAIM", "tenant"),
		RoleClaim:   envOr("AUTH_ROLE_CLAIM", "role"),
		Leeway:      30 * time.Second,
		now:         time.Now,
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// Dev reports whether unauthenticated header-based principals are allowed.
func (v *Verifier) Dev() bool { return v.Mode == ModeDev }

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case ModeDev:
		// token format: tenant:role
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" {
			return Principal{}, errors.New("invalid dev token; expected tenant:role")
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	case ModeHMAC:
		return v.verifyHS256(token)
	}
	return Principal{}, ErrUnsupported
}

func (v *Verifier) verifyHS256(token string) (Principal, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, ErrMalformed
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	if hdr.Alg != "HS256" {
		return Principal{}, ErrUnsupported
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, ErrMalformed
	}
	if !hmac.Equal(sign(v.HMACSecret, segs[0]+"."+segs[1]), sig) {
		return Principal{}, ErrSignature
	}
	var claims map[string]any
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	now := v.clock()
	if exp, ok := claims["exp"].(float64); ok && now.After(time.Unix(int64(exp), 0).Add(v.Leeway)) {
		return Principal{}, ErrExpired
	}
	if nbf, ok := claims["nbf"].(float64); ok && now.Add(v.Leeway).Before(time.Unix(int64(nbf), 0)) {
		return Principal{}, ErrExpired
	}
	tenant, _ := claims[v.TenantClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	sub, _ := claims["sub"].(string)
	if tenant == "" {
		return Principal{}, ErrNoTenant
	}
	if role == "" {
		role = "user"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role), Subject: sub}, nil
}

func (v *Verifier) clock() time.Time {
	if v.now == nil {
		return time.Now()
	}
	return v.now()
}

func decodeSegment(seg string, into any) error {
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return ErrMalformed
	}
	if err := json.Unmarshal(b, into); err != nil {
		return ErrMalformed
	}
	return nil
}

func sign(secret []byte, input string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return mac.Sum(nil)
}

// IssueHS256 signs claims as an HS256 JWT.
func IssueHS256(secret []byte, claims map[string]any) (string, error) {
	hdr := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := hdr + "." + base64.RawURLEncoding.EncodeToString(body)
	return input + "." + base64.RawURLEncoding.EncodeToString(sign(secret, input)), nil
}
