package keybackend_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/galexite/guildsync/keybackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecretStore(t *testing.T) {
	t.Parallel()

	keysFile := writeKeysFile(t, `[
		{"access_key": "FILE_KEY", "secret_key": "file_secret"},
		{"access_key": "SHARED_KEY", "secret_key": "file_wins"}
	]`)

	tests := []struct {
		name    string
		cfg     keybackend.KeysConfig
		lookups map[string]string // access key -> expected secret, "" means not found
	}{
		{
			name: "inline only",
			cfg: keybackend.KeysConfig{Inline: []keybackend.KeyPair{
				{AccessKey: "KEY1", SecretKey: "secret1"},
				{AccessKey: "KEY2", SecretKey: "secret2"},
			}},
			lookups: map[string]string{"KEY1": "secret1", "KEY2": "secret2", "KEY3": ""},
		},
		{
			name:    "file only",
			cfg:     keybackend.KeysConfig{File: keysFile},
			lookups: map[string]string{"FILE_KEY": "file_secret", "SHARED_KEY": "file_wins"},
		},
		{
			name: "file overrides inline",
			cfg: keybackend.KeysConfig{
				Inline: []keybackend.KeyPair{
					{AccessKey: "INLINE_KEY", SecretKey: "inline_secret"},
					{AccessKey: "SHARED_KEY", SecretKey: "inline_loses"},
				},
				File: keysFile,
			},
			lookups: map[string]string{"INLINE_KEY": "inline_secret", "FILE_KEY": "file_secret", "SHARED_KEY": "file_wins"},
		},
		{
			name: "inline skips incomplete pairs",
			cfg: keybackend.KeysConfig{Inline: []keybackend.KeyPair{
				{AccessKey: "", SecretKey: "secret1"},
				{AccessKey: "KEY2", SecretKey: ""},
				{AccessKey: "VALID_KEY", SecretKey: "valid_secret"},
			}},
			lookups: map[string]string{"VALID_KEY": "valid_secret", "KEY2": "", "": ""},
		},
		{
			name:    "empty config",
			cfg:     keybackend.KeysConfig{},
			lookups: map[string]string{"ANY_KEY": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, err := keybackend.NewSecretStore(tt.cfg)
			require.NoError(t, err)

			for accessKey, want := range tt.lookups {
				got, err := store.Lookup(accessKey)
				if want == "" {
					assert.ErrorIs(t, err, keybackend.ErrKeyNotFound, accessKey)
					continue
				}
				require.NoError(t, err, accessKey)
				assert.Equal(t, want, got, accessKey)
			}
		})
	}
}

func TestNewSecretStore_FileErrors(t *testing.T) {
	t.Parallel()

	_, err := keybackend.NewSecretStore(keybackend.KeysConfig{File: "/nonexistent/path/keys.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read keys file")

	_, err = keybackend.NewSecretStore(keybackend.KeysConfig{File: writeKeysFile(t, "not valid json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse keys file")
}

// writeKeysFile is a test helper that creates a temporary file with the given content
func writeKeysFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
