package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	errGone := NotFound("event not found")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", errGone, KindNotFound},
		{"wrapped with fmt", fmt.Errorf("load: %w", errGone), KindNotFound},
		{"conflict", Conflict("limit"), KindConflict},
		{"validation", Validationf("bad %s", "token"), KindValidation},
		{"forbidden", Forbidden("nope"), KindForbidden},
		{"plain", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapKeepsIdentityOfCause(t *testing.T) {
	cause := errors.New("duplicate key")
	base := Conflict("request already exists")
	err := Wrap(base, cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "request already exists", Message(err))
	assert.Equal(t, "internal error", Message(cause))
}
