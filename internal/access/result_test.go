package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/qr-access-control/internal/model"
)

func TestNewKindSetNormalizesExtras(t *testing.T) {
	s := NewKindSet([]string{" cafeteria ", "Lab", ""})

	assert.True(t, s.Valid(model.KindEntry))
	assert.True(t, s.Valid(model.KindExit))
	assert.True(t, s.Valid(model.PassKind("CAFETERIA")))
	assert.True(t, s.Valid(model.PassKind("LAB")))
	assert.False(t, s.Valid(model.PassKind("cafeteria")))
	assert.False(t, s.Valid(model.PassKind("")))
}

func TestMessageCoversEveryReason(t *testing.T) {
	reasons := []string{
		ReasonMalformedCode, ReasonCodeNotFound, ReasonAlreadyUsed,
		ReasonRevoked, ReasonExpired, ReasonVisitLapsed, ReasonAlreadyInside,
		ReasonNotInside, ReasonVisitCompleted, ReasonOrphanedPass,
		ReasonUnknownKind, ReasonTransient,
	}
	for _, r := range reasons {
		assert.NotEmpty(t, Message(r), "reason %q has no guard-facing text", r)
	}
}
