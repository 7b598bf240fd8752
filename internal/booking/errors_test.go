package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-slot-booking/internal/repository"
	"github.com/iliyamo/trainer-slot-booking/internal/validation"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"validation", validation.Errors{{Field: "x", Message: "bad"}}, ErrValidation},
		{"not found", fmt.Errorf("slot 1: %w", repository.ErrNotFound), ErrNotFound},
		{"conflict", fmt.Errorf("slot 1 is occupied: %w", repository.ErrConflict), ErrConflict},
		{"timeout", context.DeadlineExceeded, ErrTransient},
		{"bad transition", repository.ErrInvalidTransition, ErrInternal},
		{"unknown", errors.New("disk on fire"), ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("op", tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.want, KindOf(err))

			var be *Error
			require.True(t, errors.As(err, &be))
			assert.Equal(t, "op", be.Op)
			assert.Equal(t, tt.err, be.Err)
		})
	}
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	orig := &Error{Op: "book", Kind: ErrConflict}
	got := Classify("outer", fmt.Errorf("wrapped: %w", orig))
	assert.ErrorIs(t, got, ErrConflict)
	assert.NotErrorIs(t, got, ErrInternal)
	assert.Nil(t, Classify("op", nil))
	assert.Equal(t, "book: conflict", orig.Error())
}
