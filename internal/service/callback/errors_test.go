package callback

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	obserrors "github.com/target/mmk-portal/internal/observability/errors"
)

func TestError_Format(t *testing.T) {
	cause := errors.New("503 from backend")
	err := &Error{Kind: KindVerificationExhausted, Attempts: 3, Cause: cause}

	assert.Equal(t, "verification_exhausted after 3 attempts: 503 from backend", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindVerificationExhausted, KindOf(fmt.Errorf("run: %w", err)))
	assert.Equal(t, "verification_exhausted", obserrors.Classify(fmt.Errorf("run: %w", err)))
}

func TestError_UserMessage(t *testing.T) {
	assert.Equal(t, "access_denied", (&Error{Kind: KindProviderError, Message: "access_denied"}).UserMessage())
	assert.Equal(t, KindSessionTimeout.UserMessage(), (&Error{Kind: KindSessionTimeout}).UserMessage())
	assert.NotEmpty(t, Kind("something_else").UserMessage())
	for kind := range userMessages {
		assert.NotEmpty(t, kind.UserMessage(), kind)
	}
}

func TestKindOf_Plain(t *testing.T) {
	assert.Empty(t, KindOf(errors.New("x")))
	assert.Empty(t, KindOf(nil))
}
