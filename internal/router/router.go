package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trainer-slot-booking/internal/handler"
	"github.com/iliyamo/trainer-slot-booking/internal/middleware"
	"github.com/iliyamo/trainer-slot-booking/internal/policy"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check, which
// load balancers use to verify that the service and its database are up.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// Options configures the protected /v1 group.
type Options struct {
	JWTSecret string
	// RateLimit runs after JWTAuth so that buckets can be keyed by user.
	// Nil disables it.
	RateLimit echo.MiddlewareFunc
}

// Protected creates the /v1 group.  Every route in it requires a valid
// access token; role checks are added per route and ownership is decided
// by the handlers.
func Protected(e *echo.Echo, opts Options) *echo.Group {
	mws := []echo.MiddlewareFunc{middleware.JWTAuth(opts.JWTSecret)}
	if opts.RateLimit != nil {
		mws = append(mws, opts.RateLimit)
	}
	return e.Group("/v1", mws...)
}

var (
	slotManagers = middleware.RequireRole(policy.Trainer, policy.GymAdmin, policy.SuperAdmin)
	clientsOnly  = middleware.RequireRole(policy.Client)
)

// RegisterSlots registers the slot endpoints on the protected group.
// Reading a single slot is open to any authenticated caller; everything
// else is for trainers and admins.
func RegisterSlots(g *echo.Group, h *handler.SlotHandler, cache *middleware.ScheduleCache) {
	g.POST("/slots", h.CreateSlot, slotManagers)
	g.GET("/slots/:id", h.GetSlot)
	g.PUT("/slots/:id", h.UpdateSlot, slotManagers)
	g.DELETE("/slots/:id", h.DeleteSlot, slotManagers)
	g.POST("/slots/:id/withdraw", h.WithdrawSlot, slotManagers)
	g.POST("/slots/:id/restore", h.RestoreSlot, slotManagers)

	// The provider schedule is the only cached route; writes through the
	// service drop the provider's entries.  A nil cache passes through.
	g.GET("/providers/:id/slots", h.ListProviderSlots, slotManagers, cache.Middleware("id"))
}

// RegisterSessions registers booking endpoints.  Completion and
// cancellation are open to several roles and checked in the handler
// against the session's participants.
func RegisterSessions(g *echo.Group, h *handler.SessionHandler) {
	g.POST("/sessions", h.BookSession, clientsOnly)
	g.GET("/sessions/:id", h.GetSession)
	g.PUT("/sessions/:id/complete", h.CompleteSession, slotManagers)
	g.PUT("/sessions/:id/cancel", h.CancelSession)
	g.GET("/my-sessions", h.ListMySessions, clientsOnly)
}
