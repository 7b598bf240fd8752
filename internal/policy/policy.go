// Package policy decides whether an authenticated caller may perform an
// operation.  Handlers evaluate it before calling the service; the booking
// engine never sees roles.
package policy

import (
	"errors"

	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/validation"
)

// Role is the "role" claim of an access token.
type Role string

const (
	SuperAdmin Role = "super_admin"
	GymAdmin   Role = "gym_admin"
	Trainer    Role = "trainer"
	Client     Role = "user"
)

// Roles lists every known role.
var Roles = []Role{SuperAdmin, GymAdmin, Trainer, Client}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, k := range Roles {
		if r == k {
			return true
		}
	}
	return false
}

// ErrForbidden is returned when the caller may not perform an operation
// on a resource.  Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// Caller is the verified identity of a request.
type Caller struct {
	ID   uint64
	Role Role
}

// IsAdmin reports whether the caller administers every provider.
func (c Caller) IsAdmin() bool { return c.Role == SuperAdmin || c.Role == GymAdmin }

func (c Caller) owns(providerID uint64) bool {
	return c.Role == Trainer && c.ID == providerID
}

// ResolveProvider returns the provider a new slot belongs to.  Trainers
// always create their own slots and may omit the id; admins must name the
// provider explicitly.
func ResolveProvider(c Caller, requested uint64) (uint64, error) {
	switch {
	case c.Role == Trainer:
		if requested != 0 && requested != c.ID {
			return 0, ErrForbidden
		}
		return c.ID, nil
	case c.IsAdmin():
		if requested == 0 {
			return 0, validation.Errors{{Field: "provider_id", Message: "is required"}}
		}
		return requested, nil
	}
	return 0, ErrForbidden
}

// CanViewProviderSlots allows admins and the provider themselves.
func CanViewProviderSlots(c Caller, providerID uint64) error {
	if c.IsAdmin() || c.owns(providerID) {
		return nil
	}
	return ErrForbidden
}

// CanManageSlot allows admins and the slot's provider to update, withdraw,
// restore or delete it.
func CanManageSlot(c Caller, slot *model.Slot) error {
	if c.IsAdmin() || c.owns(slot.ProviderID) {
		return nil
	}
	return ErrForbidden
}

// CanBook allows clients only.
func CanBook(c Caller) error {
	if c.Role == Client {
		return nil
	}
	return ErrForbidden
}

// CanListOwnSessions allows clients only.
func CanListOwnSessions(c Caller) error { return CanBook(c) }

// CanComplete allows admins and the trainer running the session.
func CanComplete(c Caller, slot *model.Slot) error { return CanManageSlot(c, slot) }

// CanCancel allows admins, the client who booked and the trainer.
func CanCancel(c Caller, sess *model.Session, slot *model.Slot) error {
	if c.Role == Client && sess.ClientID == c.ID {
		return nil
	}
	return CanManageSlot(c, slot)
}

// CanViewSession allows the session's participants and admins.
func CanViewSession(c Caller, sess *model.Session, slot *model.Slot) error {
	return CanCancel(c, sess, slot)
}
