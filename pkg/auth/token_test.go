package auth

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const hunter2Token = "f52fbd32b2b3b86ff88ef6c490628285f482af15ddcb29541f94bcf526a3f6c7"

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestDeriveToken_KnownValue(t *testing.T) {
	assert.Equal(t, hunter2Token, DeriveToken("hunter2"))
}

func TestDeriveToken_Property_DeterministicHex(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.String().Draw(t, "secret")

		first := DeriveToken(secret)
		second := DeriveToken(secret)

		if first != second {
			t.Fatalf("token not stable: %q vs %q", first, second)
		}
		if !hexToken.MatchString(first) {
			t.Fatalf("token %q is not 64 lowercase hex chars", first)
		}
	})
}

func TestIsAuthenticated(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		cookie string
		want   bool
	}{
		{name: "auth disabled without cookie", secret: "", cookie: "", want: true},
		{name: "auth disabled with junk cookie", secret: "", cookie: CookieName + "=junk", want: true},
		{name: "valid token", secret: "hunter2", cookie: CookieName + "=" + hunter2Token, want: true},
		{name: "valid token among other cookies", secret: "hunter2", cookie: "theme=dark; " + CookieName + "=" + hunter2Token + "; lang=en", want: true},
		{name: "missing cookie", secret: "hunter2", cookie: "", want: false},
		{name: "wrong token", secret: "hunter2", cookie: CookieName + "=" + DeriveToken("hunter3"), want: false},
		{name: "empty token", secret: "hunter2", cookie: CookieName + "=", want: false},
		{name: "raw password as token", secret: "hunter2", cookie: CookieName + "=hunter2", want: false},
		{name: "similar cookie name", secret: "hunter2", cookie: "x" + CookieName + "=" + hunter2Token, want: false},
		{name: "malformed header", secret: "hunter2", cookie: ";;;=", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.Header.Set("Cookie", tt.cookie)
			}
			assert.Equal(t, tt.want, IsAuthenticated(req, tt.secret))
		})
	}
}

func TestIsAuthenticated_Property_OnlyDerivedTokenPasses(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.StringMatching(`^[a-zA-Z0-9]{1,24}$`).Draw(t, "secret")
		presented := rapid.StringMatching(`^[0-9a-f]{64}$`).Draw(t, "presented")

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: presented})

		want := presented == DeriveToken(secret)
		if got := IsAuthenticated(req, secret); got != want {
			t.Fatalf("IsAuthenticated(%q) = %v, want %v", presented, got, want)
		}
	})
}

func TestCheckPassword(t *testing.T) {
	assert.True(t, CheckPassword("hunter2", "hunter2"))
	assert.False(t, CheckPassword("hunter3", "hunter2"))
	assert.False(t, CheckPassword("", "hunter2"))
	assert.False(t, CheckPassword("", ""), "empty secret never accepts a login")
}

func TestSessionCookie(t *testing.T) {
	cookie := SessionCookie("hunter2")
	require.NotNil(t, cookie)

	assert.Equal(t, CookieName, cookie.Name)
	assert.Equal(t, hunter2Token, cookie.Value)
	assert.Equal(t,
		CookieName+"="+hunter2Token+"; Path=/; Max-Age=86400; HttpOnly; Secure; SameSite=Lax",
		cookie.String(),
	)
}
