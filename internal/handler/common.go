package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-slot-booking/internal/booking"
	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/policy"
	"github.com/iliyamo/trainer-slot-booking/internal/schedule"
	"github.com/iliyamo/trainer-slot-booking/internal/validation"
)

// Scheduler is the service surface the handlers call.  It is satisfied by
// *service.Scheduling.
type Scheduler interface {
	CreateSlot(ctx context.Context, in model.SlotInput) (*model.Slot, error)
	GetSlot(ctx context.Context, slotID uint64) (*model.Slot, error)
	UpdateSlot(ctx context.Context, slotID uint64, in model.SlotInput) (*model.Slot, error)
	WithdrawSlot(ctx context.Context, slotID uint64) (*model.Slot, error)
	RestoreSlot(ctx context.Context, slotID uint64) (*model.Slot, error)
	DeleteSlot(ctx context.Context, slotID uint64) error
	ListProviderSlots(ctx context.Context, providerID uint64, f model.SlotFilter) ([]schedule.EnrichedSlot, error)
	BookSession(ctx context.Context, clientID, slotID, facilityID uint64) (*model.Session, error)
	CompleteSession(ctx context.Context, sessionID uint64, trainingType, notes *string) error
	CancelSession(ctx context.Context, sessionID uint64) error
	GetSession(ctx context.Context, sessionID uint64) (*model.Session, error)
	ListClientSessions(ctx context.Context, clientID uint64) ([]schedule.EnrichedSession, error)
}

// getUserID extracts the user_id set by the JWT middleware and converts it
// to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		if t > 0 {
			return uint64(t), nil
		}
	case int64:
		if t > 0 {
			return uint64(t), nil
		}
	case float64:
		if t > 0 {
			return uint64(t), nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// getCaller builds the verified caller from the JWT middleware's context
// values.
func getCaller(c echo.Context) (policy.Caller, error) {
	id, err := getUserID(c)
	if err != nil {
		return policy.Caller{}, err
	}
	role, _ := c.Get("role").(string)
	r := policy.Role(role)
	if !r.Valid() {
		return policy.Caller{}, errors.New("invalid role in context")
	}
	return policy.Caller{ID: id, Role: r}, nil
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// writeError maps a service or policy error onto the HTTP response.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var fields validation.Errors
	switch {
	case errors.Is(err, policy.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, booking.ErrValidation), errors.Is(err, validation.ErrInvalid):
		body := echo.Map{"error": "validation failed"}
		if errors.As(err, &fields) {
			body["fields"] = fields
		}
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, booking.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, booking.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict: the resource is not in the required state"})
	case errors.Is(err, booking.ErrTransient):
		log.Warn("transient failure", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable, retry later"})
	}
	log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// EchoValidator adapts validation.Validator to echo.Validator so handlers
// can call c.Validate on request bodies.
type EchoValidator struct {
	V *validation.Validator
}

func (ev *EchoValidator) Validate(i any) error {
	return ev.V.Struct(i)
}
