package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("shared-secret", []byte("fixed-salt-0123456"))

	token := issuer.Issue("bench", RoleReadWrite, time.Hour)
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Principal != "bench" {
		t.Errorf("Principal = %s, want bench", claims.Principal)
	}
	if claims.Role != RoleReadWrite {
		t.Errorf("Role = %s, want %s", claims.Role, RoleReadWrite)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := NewTokenIssuer("shared-secret", []byte("fixed-salt-0123456"))
	token := issuer.Issue("bench", RoleReadOnly, time.Hour)

	tampered := token[:len(token)-1] + "x"
	if _, err := issuer.Verify(tampered); err != ErrInvalidToken {
		t.Fatalf("Verify(tampered) err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsWrongSigningKey(t *testing.T) {
	issuer1 := NewTokenIssuer("secret-a", []byte("fixed-salt-0123456"))
	issuer2 := NewTokenIssuer("secret-b", []byte("fixed-salt-0123456"))

	token := issuer1.Issue("bench", RoleReadOnly, time.Hour)
	if _, err := issuer2.Verify(token); err != ErrInvalidToken {
		t.Fatalf("cross-issuer Verify err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("shared-secret", []byte("fixed-salt-0123456"))
	token := issuer.Issue("bench", RoleReadOnly, -time.Minute)

	if _, err := issuer.Verify(token); err != ErrInvalidToken {
		t.Fatalf("Verify(expired) err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	issuer := NewTokenIssuer("shared-secret", []byte("fixed-salt-0123456"))
	if _, err := issuer.Verify("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("Verify(malformed) err = %v, want ErrInvalidToken", err)
	}
}

func TestHasPermission(t *testing.T) {
	if !HasPermission(RoleReadWrite, PermissionWrite) {
		t.Error("RoleReadWrite should have PermissionWrite")
	}
	if HasPermission(RoleReadOnly, PermissionWrite) {
		t.Error("RoleReadOnly should not have PermissionWrite")
	}
	if !HasPermission(RoleReadOnly, PermissionRead) {
		t.Error("RoleReadOnly should have PermissionRead")
	}
}

func TestCheckPermission(t *testing.T) {
	issuer := NewTokenIssuer("shared-secret", []byte("fixed-salt-0123456"))
	readOnlyToken := issuer.Issue("reader", RoleReadOnly, time.Hour)

	if _, err := issuer.CheckPermission(readOnlyToken, PermissionRead); err != nil {
		t.Errorf("CheckPermission(read) = %v, want nil", err)
	}
	if _, err := issuer.CheckPermission(readOnlyToken, PermissionWrite); err != ErrPermissionDenied {
		t.Errorf("CheckPermission(write) = %v, want ErrPermissionDenied", err)
	}
}

func TestNewTokenIssuerRandomSalt(t *testing.T) {
	issuer, salt, err := NewTokenIssuerRandomSalt("shared-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuerRandomSalt: %v", err)
	}
	if len(salt) != saltLength {
		t.Fatalf("salt length = %d, want %d", len(salt), saltLength)
	}

	token := issuer.Issue("bench", RoleReadWrite, time.Hour)
	reopened := NewTokenIssuer("shared-secret", salt)
	if _, err := reopened.Verify(token); err != nil {
		t.Fatalf("Verify with persisted salt: %v", err)
	}
}

func TestParseAuthHeader(t *testing.T) {
	token, err := ParseAuthHeader("Bearer abc123")
	if err != nil {
		t.Fatalf("ParseAuthHeader: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %s, want abc123", token)
	}

	if _, err := ParseAuthHeader("abc123"); err != ErrMalformedHeader {
		t.Errorf("err = %v, want ErrMalformedHeader", err)
	}
	if _, err := ParseAuthHeader("Basic abc123"); err != ErrMalformedHeader {
		t.Errorf("err = %v, want ErrMalformedHeader", err)
	}
}
