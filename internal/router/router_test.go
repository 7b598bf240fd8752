package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-slot-booking/internal/handler"
	"github.com/iliyamo/trainer-slot-booking/internal/policy"
	"github.com/iliyamo/trainer-slot-booking/internal/utils"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func newEcho(db handler.Pinger) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, db)
	g := Protected(e, Options{JWTSecret: "s"})
	// handlers are never reached in these tests
	RegisterSlots(g, &handler.SlotHandler{}, nil)
	RegisterSessions(g, &handler.SessionHandler{})
	return e
}

func TestRouteTable(t *testing.T) {
	e := newEcho(pinger{})
	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"POST /v1/slots",
		"GET /v1/slots/:id",
		"PUT /v1/slots/:id",
		"DELETE /v1/slots/:id",
		"POST /v1/slots/:id/withdraw",
		"POST /v1/slots/:id/restore",
		"GET /v1/providers/:id/slots",
		"POST /v1/sessions",
		"GET /v1/sessions/:id",
		"PUT /v1/sessions/:id/complete",
		"PUT /v1/sessions/:id/cancel",
		"GET /v1/my-sessions",
	} {
		assert.True(t, got[want], want)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newEcho(pinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newEcho(pinger{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProtectedRoutesNeedTokenAndRole(t *testing.T) {
	e := newEcho(pinger{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/my-sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := utils.NewAccessToken("s", 5, string(policy.Trainer), 5)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/my-sessions", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
