package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s, err := OpenFileStore(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	exerciseStore(t, s)
}

func TestFileStore_SetMany(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := OpenFileStore(path, "correct horse")
	require.NoError(t, err)
	exerciseBatch(t, s)

	reopened, err := OpenFileStore(path, "correct horse")
	require.NoError(t, err)
	v, ok, err := reopened.Get(context.Background(), "snda_refresh_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r-1", v)
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	s, err := OpenFileStore(path, "")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "snda_refresh_token", "r-1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := OpenFileStore(path, "")
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "snda_refresh_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r-1", v)
}

func TestFileStore_Encrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	s, err := OpenFileStore(path, "correct horse battery staple")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "snda_access_token", "secret-token-value"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-token-value")
	assert.Contains(t, string(raw), `"encrypted": true`)

	reopened, err := OpenFileStore(path, "correct horse battery staple")
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "snda_access_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "secret-token-value", v)

	wrong, err := OpenFileStore(path, "wrong secret")
	require.NoError(t, err)
	_, _, err = wrong.Get(ctx, "snda_access_token")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestFileStore_EncryptedRequiresSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := OpenFileStore(path, "s3cret")
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", "v"))

	_, err = OpenFileStore(path, "")
	assert.ErrorContains(t, err, "encrypted but no secret")
}

func TestFileStore_RefusesPlaintextUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := OpenFileStore(path, "")
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", "v"))

	_, err = OpenFileStore(path, "new-secret")
	assert.ErrorContains(t, err, "plaintext entries")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	_, err := OpenFileStore(path, "")
	assert.ErrorContains(t, err, "failed to parse store")
}

func TestFileStore_UnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":9,"entries":{}}`), 0o600))

	_, err := OpenFileStore(path, "")
	assert.ErrorContains(t, err, "unsupported store version 9")
}

func TestFileStore_DeleteWithoutChangesSkipsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := OpenFileStore(path, "")
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), "nothing"))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file should be written for a no-op delete")
}
