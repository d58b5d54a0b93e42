package vault

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"ShopPilot/pkg/model"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func testCreds() model.Credentials {
	return model.Credentials{AccountEmail: "buyer@example.com", Password: "hunter2"}
}

func TestLocalVaultSealOpen(t *testing.T) {
	v, err := NewLocalVault(testKey)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := v.Seal(ctx, "org-1", testCreds())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "local:"))
	assert.NotContains(t, ref, "hunter2")

	got, err := v.Open(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, testCreds(), got)

	again, err := v.Seal(ctx, "org-1", testCreds())
	require.NoError(t, err)
	assert.NotEqual(t, ref, again, "fresh nonce per seal")
}

func TestLocalVaultRejectsTamperedAndForeignRefs(t *testing.T) {
	v, err := NewLocalVault(testKey)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := v.Seal(ctx, "org-1", testCreds())
	require.NoError(t, err)

	box, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ref, "local:"))
	require.NoError(t, err)
	box[len(box)-1] ^= 0xff
	_, err = v.Open(ctx, "local:"+base64.RawURLEncoding.EncodeToString(box))
	assert.ErrorContains(t, err, "failed authentication")

	other, err := NewLocalVault(base64.StdEncoding.EncodeToString([]byte("fedcba9876543210fedcba9876543210")))
	require.NoError(t, err)
	_, err = other.Open(ctx, ref)
	assert.Error(t, err)

	_, err = v.Open(ctx, "local:AAAA")
	assert.ErrorContains(t, err, "too short")
}

func TestNewLocalVaultKeyLength(t *testing.T) {
	_, err := NewLocalVault(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorContains(t, err, "32 bytes")

	_, err = NewLocalVault("%%%")
	assert.Error(t, err)
}

type mockSecrets struct {
	mock.Mock
}

func (m *mockSecrets) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	args := m.Called(ctx, *in.SecretId)
	out, _ := args.Get(0).(*secretsmanager.GetSecretValueOutput)
	return out, args.Error(1)
}

func (m *mockSecrets) PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	args := m.Called(ctx, *in.SecretId, *in.SecretString)
	out, _ := args.Get(0).(*secretsmanager.PutSecretValueOutput)
	return out, args.Error(1)
}

func (m *mockSecrets) CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	args := m.Called(ctx, *in.Name, *in.SecretString)
	out, _ := args.Get(0).(*secretsmanager.CreateSecretOutput)
	return out, args.Error(1)
}

func TestSecretsManagerVaultCreatesSecretOnFirstSeal(t *testing.T) {
	api := &mockSecrets{}
	ctx := context.Background()
	secret := `{"account_email":"buyer@example.com","password":"hunter2"}`

	api.On("PutSecretValue", ctx, "sp/org-1", secret).
		Return(nil, &types.ResourceNotFoundException{}).Once()
	api.On("CreateSecret", ctx, "sp/org-1", secret).
		Return(&secretsmanager.CreateSecretOutput{}, nil).Once()

	v := NewSecretsManagerVaultWithClient(api, "sp/")
	ref, err := v.Seal(ctx, "org-1", testCreds())
	require.NoError(t, err)
	assert.Equal(t, "aws:sp/org-1", ref)

	got, err := v.Open(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, testCreds(), got)

	api.AssertExpectations(t)
	api.AssertNotCalled(t, "GetSecretValue", mock.Anything, mock.Anything)
}

func TestSecretsManagerVaultOpenFetchesOnce(t *testing.T) {
	api := &mockSecrets{}
	ctx := context.Background()
	secret := `{"account_email":"buyer@example.com","password":"hunter2"}`

	api.On("GetSecretValue", ctx, "sp/org-1").
		Return(&secretsmanager.GetSecretValueOutput{SecretString: &secret}, nil).Once()

	v := NewSecretsManagerVaultWithClient(api, "sp/")
	for i := 0; i < 3; i++ {
		got, err := v.Open(ctx, "aws:sp/org-1")
		require.NoError(t, err)
		assert.Equal(t, testCreds(), got)
	}
	api.AssertExpectations(t)
}

func TestVaultRoutesByScheme(t *testing.T) {
	local, err := NewLocalVault(testKey)
	require.NoError(t, err)
	api := &mockSecrets{}
	ctx := context.Background()
	secret := `{"account_email":"old@example.com","api_key":"k"}`
	api.On("GetSecretValue", ctx, "sp/org-2").
		Return(&secretsmanager.GetSecretValueOutput{SecretString: &secret}, nil)

	v := New(local, NewSecretsManagerVaultWithClient(api, "sp/"))

	ref, err := v.Seal(ctx, "org-1", testCreds())
	require.NoError(t, err)
	got, err := v.Open(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", got.AccountEmail)

	got, err = v.Open(ctx, "aws:sp/org-2")
	require.NoError(t, err)
	assert.Equal(t, "old@example.com", got.AccountEmail)

	_, err = v.Open(ctx, "gcp:whatever")
	assert.ErrorIs(t, err, ErrUnknownRef)
	_, err = v.Open(ctx, "no-scheme")
	assert.ErrorIs(t, err, ErrUnknownRef)

	_, err = v.Seal(ctx, "org-1", model.Credentials{AccountEmail: "x@example.com"})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}
