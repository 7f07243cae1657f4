package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVault struct {
	values map[string]string
	calls  int
	err    error
}

func (f *fakeVault) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.calls++
	if f.err != nil {
		return azsecrets.GetSecretResponse{}, f.err
	}
	v, ok := f.values[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, nil
	}
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: &v}}, nil
}

func TestVaultClient_CachesUntilTTL(t *testing.T) {
	fake := &fakeVault{values: map[string]string{"igdb-client-id": "abc"}}
	vc := newVaultClient(fake, &VaultConfig{VaultName: "kv", CacheEnabled: true, CacheTTL: time.Minute}, zap.NewNop())

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	vc.now = func() time.Time { return now }

	v, err := vc.GetSecret(context.Background(), "igdb-client-id")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = vc.GetSecret(context.Background(), "igdb-client-id")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)

	now = now.Add(2 * time.Minute)
	_, err = vc.GetSecret(context.Background(), "igdb-client-id")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestVaultClient_MissingValue(t *testing.T) {
	fake := &fakeVault{values: map[string]string{}}
	vc := newVaultClient(fake, &VaultConfig{VaultName: "kv"}, zap.NewNop())

	_, err := vc.GetSecret(context.Background(), "nope")
	assert.Error(t, err)
}

func TestVaultClient_UpstreamError(t *testing.T) {
	fake := &fakeVault{err: errors.New("forbidden")}
	vc := newVaultClient(fake, &VaultConfig{VaultName: "kv", CacheEnabled: true}, zap.NewNop())

	_, err := vc.GetSecret(context.Background(), "igdb-client-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestResolveSource(t *testing.T) {
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceAuto, "development"))
	assert.Equal(t, SourceEnvironment, ResolveSource("", ""))
	assert.Equal(t, SourceVault, ResolveSource(SourceAuto, "production"))
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceEnvironment, "production"))
}

func TestProvider_GetSecretOrEnv(t *testing.T) {
	p, err := NewProvider(&ProviderConfig{Source: SourceEnvironment}, zap.NewNop())
	require.NoError(t, err)

	env := map[string]string{"IGDB_CLIENTID": "from-env"}
	p.lookupEnv = func(k string) string { return env[k] }

	v, err := p.GetSecretOrEnv(context.Background(), "igdb-client-id", "IGDB_CLIENTID")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = p.GetSecretOrEnv(context.Background(), "igdb-client-secret", "IGDB_CLIENTSECRET")
	assert.Error(t, err)
}
