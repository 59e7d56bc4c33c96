package security_test

import (
	"testing"
	"time"

	"github.com/Rrens/practice-chat/internal/security"
	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	accessToken, err := manager.GenerateAccessToken("user-42")
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}

	if accessToken == "" {
		t.Error("access token is empty")
	}

	claims, err := manager.ValidateAccessToken(accessToken)
	if err != nil {
		t.Fatalf("failed to validate access token: %v", err)
	}

	if claims.UserID() != "user-42" {
		t.Errorf("user ID mismatch: got %v, want %v", claims.UserID(), "user-42")
	}
}

func TestJWTManager_EmptyUserID(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	if _, err := manager.GenerateAccessToken(""); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestJWTManager_InvalidToken(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	_, err := manager.ValidateAccessToken("invalid-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	manager1 := security.NewJWTManager("secret-key-1-with-32-characters", 15*time.Minute)
	manager2 := security.NewJWTManager("secret-key-2-with-32-characters", 15*time.Minute)

	token, _ := manager1.GenerateAccessToken("user-42")

	if _, err := manager2.ValidateAccessToken(token); err == nil {
		t.Error("expected error when validating with wrong secret")
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", -time.Minute)

	token, err := manager.GenerateAccessToken("user-42")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := manager.ValidateAccessToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestJWTManager_ForeignIssuer(t *testing.T) {
	secret := "test-secret-key-with-32-chars!!"
	manager := security.NewJWTManager(secret, 15*time.Minute)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := manager.ValidateAccessToken(token); err == nil {
		t.Error("expected error for token from another issuer")
	}
}

func TestJWTManager_Enabled(t *testing.T) {
	if security.NewJWTManager("", time.Minute).Enabled() {
		t.Error("manager without secret should be disabled")
	}
	if !security.NewJWTManager("s", time.Minute).Enabled() {
		t.Error("manager with secret should be enabled")
	}
}
