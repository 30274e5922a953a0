// Package auth guards the control plane's mutating endpoints
// (POST /tx, /tx/{id}/write, /tx/{id}/commit, /tx/{id}/abort) with a
// stateless bearer-token scheme: the server holds one shared secret,
// derives a signing key from it with PBKDF2, and issues tokens that
// are verified by recomputing their HMAC rather than by a session
// store. There is no per-user database: a token just carries a
// principal name, a role, and an expiry, so there is nothing to look
// up and nothing that needs to survive a restart.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrPermissionDenied is returned when a valid token lacks a required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrMalformedHeader is returned when the Authorization header isn't "Bearer <token>".
	ErrMalformedHeader = errors.New("invalid authorization header")
)

const (
	saltLength     = 16
	iterationCount = 4096
	keyLength      = 32
)

// Role gates which control-plane endpoints a token may call.
type Role string

const (
	// RoleReadOnly may Begin, Read, and query /stats, /metrics, and the
	// read-only GraphQL schema.
	RoleReadOnly Role = "readOnly"
	// RoleReadWrite may additionally Write, TryCommit, and Abort.
	RoleReadWrite Role = "readWrite"
)

// Permission represents an operation permission.
type Permission string

const (
	PermissionRead      Permission = "read"
	PermissionWrite     Permission = "write"
	PermissionViewStats Permission = "viewStats"
)

var rolePermissions = map[Role][]Permission{
	RoleReadOnly: {
		PermissionRead,
		PermissionViewStats,
	},
	RoleReadWrite: {
		PermissionRead,
		PermissionWrite,
		PermissionViewStats,
	},
}

// TokenIssuer issues and verifies bearer tokens from a single shared
// secret (supplied by the operator at startup, e.g. via cmd/server's
// -secret flag).
type TokenIssuer struct {
	signingKey []byte
}

// NewTokenIssuer derives a signing key from secret and salt with
// PBKDF2-SHA256, the same construction the teacher used for
// SCRAM-SHA-256 password storage, generalized here to key derivation
// for HMAC token signing instead of password verification.
func NewTokenIssuer(secret string, salt []byte) *TokenIssuer {
	return &TokenIssuer{
		signingKey: pbkdf2.Key([]byte(secret), salt, iterationCount, keyLength, sha256.New),
	}
}

// NewTokenIssuerRandomSalt derives a signing key using a freshly
// generated random salt, returning the salt so the caller can persist
// it. Tokens issued before a restart without persisting the salt stop
// verifying, by design — there is no token store to reconcile against.
func NewTokenIssuerRandomSalt(secret string) (*TokenIssuer, []byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return NewTokenIssuer(secret, salt), salt, nil
}

// Issue returns a signed bearer token for principal with role, valid
// for ttl. The token is "principal|role|expiresUnix|signature" — not
// encrypted, it carries no secret data, only a signed claim.
func (ti *TokenIssuer) Issue(principal string, role Role, ttl time.Duration) string {
	expires := time.Now().Add(ttl).Unix()
	payload := fmt.Sprintf("%s|%s|%d", principal, role, expires)
	sig := hmacSHA256(ti.signingKey, []byte(payload))
	return payload + "|" + base64.RawURLEncoding.EncodeToString(sig)
}

// Claims is the verified content of a bearer token.
type Claims struct {
	Principal string
	Role      Role
	ExpiresAt time.Time
}

// Verify checks a token's signature and expiry and returns its claims.
func (ti *TokenIssuer) Verify(token string) (*Claims, error) {
	parts := strings.SplitN(token, "|", 4)
	if len(parts) != 4 {
		return nil, ErrInvalidToken
	}
	principal, role, expiresStr, sigB64 := parts[0], parts[1], parts[2], parts[3]

	payload := principal + "|" + role + "|" + expiresStr
	wantSig := hmacSHA256(ti.signingKey, []byte(payload))
	gotSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil || !hmac.Equal(gotSig, wantSig) {
		return nil, ErrInvalidToken
	}

	expiresUnix, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	expiresAt := time.Unix(expiresUnix, 0)
	if time.Now().After(expiresAt) {
		return nil, ErrInvalidToken
	}

	return &Claims{Principal: principal, Role: Role(role), ExpiresAt: expiresAt}, nil
}

// HasPermission reports whether role carries permission.
func HasPermission(role Role, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission verifies token and checks it carries permission, in
// one call for handlers to guard an endpoint with.
func (ti *TokenIssuer) CheckPermission(token string, permission Permission) (*Claims, error) {
	claims, err := ti.Verify(token)
	if err != nil {
		return nil, err
	}
	if !HasPermission(claims.Role, permission) {
		return claims, ErrPermissionDenied
	}
	return claims, nil
}

// ParseAuthHeader parses an Authorization header of the form "Bearer <token>".
func ParseAuthHeader(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrMalformedHeader
	}
	return parts[1], nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
