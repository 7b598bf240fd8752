package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/policy"
)

// SessionHandler serves booking, completion and cancellation of
// training sessions.
type SessionHandler struct {
	Svc Scheduler
	Log *zap.Logger
}

// NewSessionHandler constructs a SessionHandler and panics if svc is nil.
func NewSessionHandler(svc Scheduler, log *zap.Logger) *SessionHandler {
	if svc == nil {
		panic("nil scheduler passed to NewSessionHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{Svc: svc, Log: log}
}

type bookRequest struct {
	SlotID     uint64 `json:"slot_id" validate:"required,gt=0"`
	FacilityID uint64 `json:"facility_id"`
}

type completeRequest struct {
	TrainingType *string `json:"training_type" validate:"omitempty,max=64"`
	Notes        *string `json:"notes" validate:"omitempty,max=1000"`
}

// BookSession handles POST /v1/sessions.  The client id always comes from
// the token; a body client id is never honoured.
func (h *SessionHandler) BookSession(c echo.Context) error {
	caller, err := getCaller(c)
	if err != nil {
		return unauthorized(c)
	}
	if err := policy.CanBook(caller); err != nil {
		return writeError(c, h.Log, err)
	}
	var body bookRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return writeError(c, h.Log, err)
	}
	sess, err := h.Svc.BookSession(c.Request().Context(), caller.ID, body.SlotID, body.FacilityID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// loadSession returns session :id with its slot.  On failure the response
// has already been written and the returned session is nil.
func (h *SessionHandler) loadSession(c echo.Context) (policy.Caller, *model.Session, *model.Slot, error) {
	caller, err := getCaller(c)
	if err != nil {
		return caller, nil, nil, unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return caller, nil, nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	ctx := c.Request().Context()
	sess, err := h.Svc.GetSession(ctx, id)
	if err != nil {
		return caller, nil, nil, writeError(c, h.Log, err)
	}
	slot, err := h.Svc.GetSlot(ctx, sess.SlotID)
	if err != nil {
		return caller, nil, nil, writeError(c, h.Log, err)
	}
	return caller, sess, slot, nil
}

// CompleteSession handles PUT /v1/sessions/:id/complete.  training_type
// and notes are optional and recorded with the completion.
func (h *SessionHandler) CompleteSession(c echo.Context) error {
	caller, sess, slot, err := h.loadSession(c)
	if sess == nil {
		return err
	}
	if err := policy.CanComplete(caller, slot); err != nil {
		return writeError(c, h.Log, err)
	}
	var body completeRequest
	// an empty body is allowed; echo's binder skips it
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return writeError(c, h.Log, err)
	}
	if err := h.Svc.CompleteSession(c.Request().Context(), sess.ID, body.TrainingType, body.Notes); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": sess.ID, "status": model.SessionCompleted})
}

// CancelSession handles PUT /v1/sessions/:id/cancel.
func (h *SessionHandler) CancelSession(c echo.Context) error {
	caller, sess, slot, err := h.loadSession(c)
	if sess == nil {
		return err
	}
	if err := policy.CanCancel(caller, sess, slot); err != nil {
		return writeError(c, h.Log, err)
	}
	if err := h.Svc.CancelSession(c.Request().Context(), sess.ID); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": sess.ID, "status": model.SessionCanceled})
}

// GetSession handles GET /v1/sessions/:id.
func (h *SessionHandler) GetSession(c echo.Context) error {
	caller, sess, slot, err := h.loadSession(c)
	if sess == nil {
		return err
	}
	if err := policy.CanViewSession(caller, sess, slot); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// ListMySessions handles GET /v1/my-sessions and returns every session of
// the calling client in chronological order.
func (h *SessionHandler) ListMySessions(c echo.Context) error {
	caller, err := getCaller(c)
	if err != nil {
		return unauthorized(c)
	}
	if err := policy.CanListOwnSessions(caller); err != nil {
		return writeError(c, h.Log, err)
	}
	list, err := h.Svc.ListClientSessions(c.Request().Context(), caller.ID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": list})
}
