package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedSentinel(t *testing.T) {
	errAlreadyPaid := Conflict("invoice_already_paid")
	wrapped := fmt.Errorf("mark payment received: %w", errAlreadyPaid)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "invoice_already_paid", CodeOf(wrapped))
	assert.True(t, errors.Is(wrapped, errAlreadyPaid))
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestKindOfUnclassified(t *testing.T) {
	err := errors.New("connection refused")

	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, "", CodeOf(err))
	assert.Equal(t, "internal_error", KindOf(err).String())
}

func TestDistinctSentinelsWithSameCode(t *testing.T) {
	a := NotFound("not_found")
	b := NotFound("not_found")

	assert.False(t, errors.Is(a, b))
	assert.True(t, IsNotFound(a))
	assert.True(t, IsNotFound(b))
}

func TestAccessKinds(t *testing.T) {
	denied := fmt.Errorf("authorize: %w", Forbidden("forbidden"))

	assert.True(t, IsForbidden(denied))
	assert.Equal(t, "forbidden", KindOf(denied).String())
	assert.Equal(t, "unauthenticated", KindOf(Unauthenticated("missing_actor")).String())
}
