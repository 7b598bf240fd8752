// Package validation wraps go-playground/validator with the rules used by
// slot and session input: HH:MM clock times, weekday labels and ISO dates.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/trainer-slot-booking/internal/model"
)

// ErrInvalid is matched by every error returned from this package.
var ErrInvalid = errors.New("invalid input")

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) Error() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// Errors collects every field rejected by a single validation pass.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return ErrInvalid.Error()
	}
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalid) hold for any Errors value.
func (e Errors) Is(target error) bool { return target == ErrInvalid }

// Validator is a configured *validator.Validate.  It is safe for
// concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator with the custom tags registered.  Field names in
// errors are taken from json tags so they match what clients sent.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := model.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := model.CanonicalWeekday(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(model.DateLayout, fl.Field().String())
		return err == nil
	})
	return &Validator{validate: v}
}

// Struct validates the tags of s and translates failures into Errors.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return translate(verrs)
}

func translate(verrs validator.ValidationErrors) Errors {
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Error()
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "gt":
			msg = "must be greater than " + fe.Param()
		case "hhmm":
			msg = "must be a 24-hour time in HH:MM format"
		case "weekday":
			msg = "must be a weekday name (Monday-Sunday)"
		case "isodate":
			msg = "must be a date in YYYY-MM-DD format"
		case "max":
			msg = "must be at most " + fe.Param() + " characters"
		case "oneof":
			msg = "must be one of: " + fe.Param()
		}
		out = append(out, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

// Slot checks a SlotInput completely: field tags, start strictly before
// end, and exactly one of weekday or date.  On success it returns the
// normalised recurrence.
func (v *Validator) Slot(in model.SlotInput) (model.Recurrence, error) {
	var errs Errors
	if err := v.Struct(in); err != nil {
		var fe Errors
		if !errors.As(err, &fe) {
			return model.Recurrence{}, err
		}
		errs = append(errs, fe...)
	}
	rec, recErr := model.NewRecurrence(in.Weekday, in.Date)
	if recErr != nil && !hasField(errs, "weekday", "date") {
		errs = append(errs, FieldError{Field: "recurrence", Message: recErr.Error()})
	}
	start, sErr := model.ParseClock(in.StartTime)
	end, eErr := model.ParseClock(in.EndTime)
	if sErr == nil && eErr == nil && start >= end {
		errs = append(errs, FieldError{Field: "end_time", Message: "must be after start_time"})
	}
	if len(errs) > 0 {
		return model.Recurrence{}, errs
	}
	return rec, nil
}

func hasField(errs Errors, names ...string) bool {
	for _, e := range errs {
		for _, n := range names {
			if e.Field == n {
				return true
			}
		}
	}
	return false
}

var std = New()

// Default returns the shared package-level Validator.
func Default() *Validator { return std }
