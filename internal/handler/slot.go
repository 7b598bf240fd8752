package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/policy"
)

// SlotHandler serves the slot endpoints for trainers and admins.  All
// methods assume that JWT authentication has already been performed by
// middleware; ownership is checked here through the policy package.
type SlotHandler struct {
	Svc Scheduler
	Log *zap.Logger
}

// NewSlotHandler constructs a SlotHandler and panics if svc is nil.
func NewSlotHandler(svc Scheduler, log *zap.Logger) *SlotHandler {
	if svc == nil {
		panic("nil scheduler passed to NewSlotHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SlotHandler{Svc: svc, Log: log}
}

// slotRequest is the body of POST /v1/slots and PUT /v1/slots/:id.
// Exactly one of weekday and date must be present.
type slotRequest struct {
	ProviderID uint64 `json:"provider_id"`
	Weekday    string `json:"weekday" validate:"omitempty,weekday"`
	Date       string `json:"date" validate:"omitempty,isodate"`
	StartTime  string `json:"start_time" validate:"required,hhmm"`
	EndTime    string `json:"end_time" validate:"required,hhmm"`
}

func (r slotRequest) input(providerID uint64) model.SlotInput {
	return model.SlotInput{
		ProviderID: providerID,
		Weekday:    strings.TrimSpace(r.Weekday),
		Date:       strings.TrimSpace(r.Date),
		StartTime:  strings.TrimSpace(r.StartTime),
		EndTime:    strings.TrimSpace(r.EndTime),
	}
}

// CreateSlot handles POST /v1/slots.  Trainers create slots for
// themselves; admins must name the provider_id.  It returns 201 with the
// stored slot.
func (h *SlotHandler) CreateSlot(c echo.Context) error {
	caller, err := getCaller(c)
	if err != nil {
		return unauthorized(c)
	}
	var body slotRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return writeError(c, h.Log, err)
	}
	providerID, err := policy.ResolveProvider(caller, body.ProviderID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	slot, err := h.Svc.CreateSlot(c.Request().Context(), body.input(providerID))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, slot)
}

// GetSlot handles GET /v1/slots/:id for any authenticated caller.
func (h *SlotHandler) GetSlot(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	slot, err := h.Svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, slot)
}

// managedSlot loads slot :id and checks that the caller may manage it.
func (h *SlotHandler) managedSlot(c echo.Context) (*model.Slot, error) {
	caller, err := getCaller(c)
	if err != nil {
		return nil, unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	slot, err := h.Svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return nil, writeError(c, h.Log, err)
	}
	if err := policy.CanManageSlot(caller, slot); err != nil {
		return nil, writeError(c, h.Log, err)
	}
	return slot, nil
}

// UpdateSlot handles PUT /v1/slots/:id.  The recurrence and times are
// replaced; an occupied slot yields 409.
func (h *SlotHandler) UpdateSlot(c echo.Context) error {
	slot, err := h.managedSlot(c)
	if slot == nil {
		return err
	}
	var body slotRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return writeError(c, h.Log, err)
	}
	updated, err := h.Svc.UpdateSlot(c.Request().Context(), slot.ID, body.input(slot.ProviderID))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// WithdrawSlot handles POST /v1/slots/:id/withdraw.
func (h *SlotHandler) WithdrawSlot(c echo.Context) error {
	slot, err := h.managedSlot(c)
	if slot == nil {
		return err
	}
	out, err := h.Svc.WithdrawSlot(c.Request().Context(), slot.ID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// RestoreSlot handles POST /v1/slots/:id/restore.
func (h *SlotHandler) RestoreSlot(c echo.Context) error {
	slot, err := h.managedSlot(c)
	if slot == nil {
		return err
	}
	out, err := h.Svc.RestoreSlot(c.Request().Context(), slot.ID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteSlot handles DELETE /v1/slots/:id.  A slot with session history
// is withdrawn rather than removed; an occupied slot yields 409.
func (h *SlotHandler) DeleteSlot(c echo.Context) error {
	slot, err := h.managedSlot(c)
	if slot == nil {
		return err
	}
	if err := h.Svc.DeleteSlot(c.Request().Context(), slot.ID); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListProviderSlots handles GET /v1/providers/:id/slots.  Optional query
// parameters: status, kind (weekly|dated), weekday, from and to
// (YYYY-MM-DD, dated slots only).
func (h *SlotHandler) ListProviderSlots(c echo.Context) error {
	caller, err := getCaller(c)
	if err != nil {
		return unauthorized(c)
	}
	providerID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid provider id"})
	}
	if err := policy.CanViewProviderSlots(caller, providerID); err != nil {
		return writeError(c, h.Log, err)
	}
	f := model.SlotFilter{
		Status:  model.SlotStatus(strings.ToLower(c.QueryParam("status"))),
		Kind:    model.RecurrenceKind(strings.ToLower(c.QueryParam("kind"))),
		Weekday: c.QueryParam("weekday"),
		From:    c.QueryParam("from"),
		To:      c.QueryParam("to"),
	}
	slots, err := h.Svc.ListProviderSlots(c.Request().Context(), providerID, f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"provider_id": providerID, "slots": slots})
}
