package callback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	mockauth "github.com/target/mmk-portal/internal/mocks/auth"
)

func TestSessionExchanger_Code(t *testing.T) {
	idp := mockauth.NewMockIdentityProvider()
	var gotCode string
	idp.ExchangeFunc = func(_ context.Context, code string) error {
		gotCode = code
		return nil
	}

	mode, err := SessionExchanger{Provider: idp}.Exchange(context.Background(),
		domainauth.RedirectPayload{Code: "abc", HashAccessToken: "ignored"})

	require.NoError(t, err)
	assert.Equal(t, ExchangeCode, mode)
	assert.Equal(t, "abc", gotCode)
	assert.Equal(t, 0, idp.SetSessionCalls())
}

func TestSessionExchanger_HashTokens(t *testing.T) {
	idp := mockauth.NewMockIdentityProvider()
	var access, refresh string
	idp.SetSessionFunc = func(_ context.Context, a, r string) error {
		access, refresh = a, r
		return nil
	}

	mode, err := SessionExchanger{Provider: idp}.Exchange(context.Background(),
		domainauth.RedirectPayload{HashAccessToken: "abc", HashRefreshToken: "def"})

	require.NoError(t, err)
	assert.Equal(t, ExchangeTokens, mode)
	assert.Equal(t, "abc", access)
	assert.Equal(t, "def", refresh)
	assert.Equal(t, 0, idp.ExchangeCalls())
}

func TestSessionExchanger_NothingToExchange(t *testing.T) {
	idp := mockauth.NewMockIdentityProvider()

	mode, err := SessionExchanger{Provider: idp}.Exchange(context.Background(), domainauth.RedirectPayload{})

	require.NoError(t, err)
	assert.Equal(t, ExchangeNone, mode)
	assert.Zero(t, idp.ExchangeCalls()+idp.SetSessionCalls())
}

func TestSessionExchanger_FailureIsNotRetried(t *testing.T) {
	boom := errors.New("invalid_grant")
	idp := mockauth.NewMockIdentityProvider()
	idp.ExchangeFunc = func(context.Context, string) error { return boom }

	_, err := SessionExchanger{Provider: idp}.Exchange(context.Background(), domainauth.RedirectPayload{Code: "abc"})

	require.Error(t, err)
	assert.Equal(t, KindExchange, KindOf(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, idp.ExchangeCalls())
}

func TestSessionExchanger_SetSessionFailure(t *testing.T) {
	idp := mockauth.NewMockIdentityProvider()
	idp.SetSessionFunc = func(context.Context, string, string) error { return errors.New("bad token") }

	_, err := SessionExchanger{Provider: idp}.Exchange(context.Background(), domainauth.RedirectPayload{HashAccessToken: "x"})

	assert.Equal(t, KindExchange, KindOf(err))
}
