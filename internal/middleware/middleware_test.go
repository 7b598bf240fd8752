package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-slot-booking/internal/config"
	"github.com/iliyamo/trainer-slot-booking/internal/policy"
	"github.com/iliyamo/trainer-slot-booking/internal/utils"
)

const secret = "test-secret"

// identityEcho returns an echo instance with one protected route that
// echoes the identity JWTAuth stored.
func identityEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"user_id": c.Get("user_id"), "role": c.Get("role"), "who": userID(c)})
	}, mw...)
	return e
}

func get(e *echo.Echo, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sign(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	e := identityEcho(JWTAuth(secret))

	tok, err := utils.NewAccessToken(secret, 42, string(policy.Trainer), 5)
	require.NoError(t, err)
	rec := get(e, "Bearer "+tok.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":42,"role":"trainer","who":"42"}`, rec.Body.String())

	exp := time.Now().Add(time.Minute).Unix()
	tests := []struct {
		name string
		auth string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not-a-token"},
		{"wrong secret", "Bearer " + sign(t, jwt.MapClaims{"sub": "1", "role": "user", "exp": exp}, jwt.SigningMethodHS256, []byte("other"))},
		{"expired", "Bearer " + sign(t, jwt.MapClaims{"sub": "1", "role": "user", "exp": time.Now().Add(-time.Minute).Unix()}, jwt.SigningMethodHS256, []byte(secret))},
		{"unknown role", "Bearer " + sign(t, jwt.MapClaims{"sub": "1", "role": "owner", "exp": exp}, jwt.SigningMethodHS256, []byte(secret))},
		{"non numeric sub", "Bearer " + sign(t, jwt.MapClaims{"sub": "abc", "role": "user", "exp": exp}, jwt.SigningMethodHS256, []byte(secret))},
		{"other algorithm", "Bearer " + sign(t, jwt.MapClaims{"sub": "1", "role": "user", "exp": exp}, jwt.SigningMethodHS512, []byte(secret))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, get(e, tt.auth).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := identityEcho(JWTAuth(secret), RequireRole(policy.GymAdmin, policy.SuperAdmin))

	admin, err := utils.NewAccessToken(secret, 1, string(policy.GymAdmin), 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(e, "Bearer "+admin.Token).Code)

	client, err := utils.NewAccessToken(secret, 2, string(policy.Client), 5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(e, "Bearer "+client.Token).Code)
}

func TestDisabledRedisMiddlewarePassThrough(t *testing.T) {
	cache := NewScheduleCache(config.CacheConfig{Enabled: true}, nil, nil)
	assert.Nil(t, cache)
	assert.NoError(t, cache.InvalidateProvider(context.Background(), 1))

	e := identityEcho(NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil), cache.Middleware("id"))
	rec := get(e, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), `"who":"guest"`)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/sessions")
	c.Set("user_id", uint64(17))

	cfg := config.RateLimitConfig{Prefix: "rl"}
	assert.Equal(t, "rl:ip:10.0.0.9:user:17:route:POST /v1/sessions", buildRateKey(cfg, c))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:17", buildRateKey(cfg, c))
	cfg.KeyStrategy = "IP"
	assert.Equal(t, "rl:ip:10.0.0.9", buildRateKey(cfg, c))
}

func TestCachedPayloadKeepsHeaders(t *testing.T) {
	hdr := http.Header{}
	hdr.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"slots":[]}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, echo.MIMEApplicationJSON, got.Get(echo.HeaderContentType))
	assert.Equal(t, `{"slots":[]}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
}

func TestScheduleCacheKeyNormalisesProvider(t *testing.T) {
	sc := &ScheduleCache{cfg: config.CacheConfig{Prefix: "sched"}}
	e := echo.New()
	keyFor := func(raw string) (string, bool) {
		req := httptest.NewRequest(http.MethodGet, "/v1/providers/"+raw+"/slots?status=available", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath("/v1/providers/:id/slots")
		c.SetParamNames("id")
		c.SetParamValues(raw)
		c.Set("user_id", uint64(7))
		id, ok := providerParam(c, "id")
		if !ok {
			return "", false
		}
		return sc.key(c, id), true
	}

	padded, ok := keyFor("07")
	require.True(t, ok)
	plain, ok := keyFor("7")
	require.True(t, ok)
	assert.Equal(t, plain, padded)
	// the pattern InvalidateProvider scans for
	assert.True(t, strings.HasPrefix(padded, sc.providerPrefix(7)))
	assert.True(t, strings.HasPrefix(padded, "sched:provider:7:"))

	for _, bad := range []string{"abc", "0", "-1", ""} {
		_, ok := keyFor(bad)
		assert.False(t, ok, bad)
	}
}
