package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	passstore "github.com/bnema/agentmon/internal/adapters/secrets/pass"
	"github.com/bnema/agentmon/internal/domain"
	portmocks "github.com/bnema/agentmon/internal/ports/mocks"
)

const tokenKey = "agentmon/usage/access_token"

func newChain(t *testing.T) (*Store, *portmocks.MockSecretStore, *portmocks.MockSecretStore) {
	t.Helper()
	pass := portmocks.NewMockSecretStore(t)
	file := portmocks.NewMockSecretStore(t)
	store, err := New(Backend{Name: "pass", Store: pass}, Backend{Name: "file", Store: file})
	require.NoError(t, err)
	return store, pass, file
}

func TestNewRejectsMissingBackends(t *testing.T) {
	t.Parallel()

	_, err := New()
	require.ErrorIs(t, err, errNoBackends)

	_, err = New(Backend{Name: "pass", Store: portmocks.NewMockSecretStore(t)}, Backend{Name: "file"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret backend 1 (file) is nil")
}

func TestGetUsesFirstBackendThatAnswers(t *testing.T) {
	t.Parallel()

	store, pass, _ := newChain(t)
	pass.EXPECT().Get(mock.Anything, tokenKey).Return("from-pass", nil).Once()

	value, err := store.Get(context.Background(), tokenKey)
	require.NoError(t, err)
	assert.Equal(t, "from-pass", value)
}

func TestGetFallsThroughOnFailure(t *testing.T) {
	t.Parallel()

	store, pass, file := newChain(t)
	pass.EXPECT().Get(mock.Anything, tokenKey).Return("", errors.New("gpg: decryption failed")).Once()
	file.EXPECT().Get(mock.Anything, tokenKey).Return("from-file", nil).Once()

	value, err := store.Get(context.Background(), tokenKey)
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)
}

func TestGetNamesEveryFailedBackend(t *testing.T) {
	t.Parallel()

	store, pass, file := newChain(t)
	pass.EXPECT().Get(mock.Anything, tokenKey).Return("", errors.New("gpg: decryption failed")).Once()
	file.EXPECT().Get(mock.Anything, tokenKey).
		Return("", fmt.Errorf("read secret: %w", domain.ErrSecretNotFound)).Once()

	_, err := store.Get(context.Background(), tokenKey)
	require.Error(t, err)
	assert.ErrorContains(t, err, "pass get: gpg: decryption failed")
	assert.ErrorContains(t, err, "file get: read secret")
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestGetLeavesMissingPassOutOfTheError(t *testing.T) {
	t.Parallel()

	store, pass, file := newChain(t)
	pass.EXPECT().Get(mock.Anything, tokenKey).Return("", passstore.ErrUnavailable).Once()
	file.EXPECT().Get(mock.Anything, tokenKey).Return("", domain.ErrSecretNotFound).Once()

	_, err := store.Get(context.Background(), tokenKey)
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
	assert.NotErrorIs(t, err, passstore.ErrUnavailable)
	assert.Equal(t, "file get: "+domain.ErrSecretNotFound.Error(), err.Error())
}

func TestGetStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	store, pass, _ := newChain(t)
	pass.EXPECT().Get(mock.Anything, tokenKey).Return("", context.Canceled).Once()

	_, err := store.Get(context.Background(), tokenKey)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPutFallsThroughOnFailure(t *testing.T) {
	t.Parallel()

	store, pass, file := newChain(t)
	pass.EXPECT().Put(mock.Anything, tokenKey, "secret").Return(passstore.ErrUnavailable).Once()
	file.EXPECT().Put(mock.Anything, tokenKey, "secret").Return(nil).Once()

	require.NoError(t, store.Put(context.Background(), tokenKey, "secret"))
}

func TestPutStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	store, pass, _ := newChain(t)
	pass.EXPECT().Put(mock.Anything, tokenKey, "secret").Return(nil).Once()

	require.NoError(t, store.Put(context.Background(), tokenKey, "secret"))
}

func TestDeleteClearsEveryBackend(t *testing.T) {
	t.Parallel()

	store, pass, file := newChain(t)
	pass.EXPECT().Delete(mock.Anything, tokenKey).Return(nil).Once()
	file.EXPECT().Delete(mock.Anything, tokenKey).Return(nil).Once()

	require.NoError(t, store.Delete(context.Background(), tokenKey))
}

func TestDeleteIgnoresMissingPass(t *testing.T) {
	t.Parallel()

	store, pass, file := newChain(t)
	pass.EXPECT().Delete(mock.Anything, tokenKey).Return(passstore.ErrUnavailable).Once()
	file.EXPECT().Delete(mock.Anything, tokenKey).Return(nil).Once()

	require.NoError(t, store.Delete(context.Background(), tokenKey))
}

func TestDeleteReportsBackendThatKeptTheSecret(t *testing.T) {
	t.Parallel()

	store, pass, file := newChain(t)
	pass.EXPECT().Delete(mock.Anything, tokenKey).Return(errors.New("gpg agent locked")).Once()
	file.EXPECT().Delete(mock.Anything, tokenKey).Return(nil).Once()

	err := store.Delete(context.Background(), tokenKey)
	require.Error(t, err)
	assert.Equal(t, "pass delete: gpg agent locked", err.Error())
}

func TestPassFirstWithFileFallbackRoundTrip(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	store, err := NewPassFirstWithFileFallback(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, tokenKey, "token-1"))

	value, err := store.Get(ctx, tokenKey)
	require.NoError(t, err)
	assert.Equal(t, "token-1", value)

	require.NoError(t, store.Delete(ctx, tokenKey))
	_, err = store.Get(ctx, tokenKey)
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}
