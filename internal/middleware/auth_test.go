package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func issueToken(t *testing.T, tenantID, secret string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TenantClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestParseToken(t *testing.T) {
	signed := issueToken(t, "tenant-1", testSecret, time.Now().Add(time.Hour))

	claims, err := ParseToken(signed, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.TenantID != "tenant-1" {
		t.Errorf("tenant = %q, want tenant-1", claims.TenantID)
	}
}

func TestParseTokenRejections(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", issueToken(t, "tenant-1", "other-secret", time.Now().Add(time.Hour))},
		{"expired", issueToken(t, "tenant-1", testSecret, time.Now().Add(-time.Hour))},
		{"no tenant", issueToken(t, "", testSecret, time.Now().Add(time.Hour))},
	}
	for _, tc := range cases {
		if _, err := ParseToken(tc.token, testSecret); err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}
}

func TestRequireTenant(t *testing.T) {
	app := fiber.New()
	app.Use(RequireTenant(testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(TenantID(c))
	})

	req := httptest.NewRequest("GET", "/whoami", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("no header: status %d, want 401", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, "tenant-1", testSecret, time.Now().Add(time.Hour)))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("valid token: status %d, want 200", resp.StatusCode)
	}
}
