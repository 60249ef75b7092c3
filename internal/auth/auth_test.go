package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyring_SingleKeyIsAdmin(t *testing.T) {
	k, err := NewKeyring("sk_test_1234", "", 60)
	require.NoError(t, err)

	p, err := k.Resolve("sk_test_1234")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, p.Role)
	assert.Equal(t, 60, p.RPM)
	assert.False(t, p.ReadOnly)
	assert.True(t, p.IsAdmin())
}

func TestNewKeyring_JSONGrants(t *testing.T) {
	keysJSON := `{
		"key-legacy": 120,
		"key-viewer": {"rpm": 30, "role": "viewer", "read_only": true},
		"key-admin": {"role": "admin"}
	}`
	k, err := NewKeyring("", keysJSON, 60)
	require.NoError(t, err)

	legacy, err := k.Resolve("key-legacy")
	require.NoError(t, err)
	assert.Equal(t, RoleAnalyst, legacy.Role)
	assert.Equal(t, 120, legacy.RPM)

	viewer, err := k.Resolve("key-viewer")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, viewer.Role)
	assert.Equal(t, 30, viewer.RPM)
	assert.True(t, viewer.ReadOnly)

	admin, err := k.Resolve("key-admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, admin.Role)
	assert.Equal(t, 60, admin.RPM) // default rpm when the grant omits it
}

func TestNewKeyring_Expiry(t *testing.T) {
	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	keysJSON := `{
		"key-expired": {"rpm": 60, "expires_at": "` + past + `"},
		"key-live": {"rpm": 60, "expires_at": "` + future + `"}
	}`
	k, err := NewKeyring("", keysJSON, 60)
	require.NoError(t, err)

	_, err = k.Resolve("key-expired")
	assert.ErrorIs(t, err, ErrExpiredKey)

	_, err = k.Resolve("key-live")
	assert.NoError(t, err)
}

func TestNewKeyring_Errors(t *testing.T) {
	tests := []struct {
		name     string
		single   string
		keysJSON string
	}{
		{name: "no keys at all"},
		{name: "malformed JSON", keysJSON: `{"key":`},
		{name: "bad expires_at", keysJSON: `{"key":{"expires_at":"not-a-time"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKeyring(tt.single, tt.keysJSON, 60)
			assert.Error(t, err)
		})
	}
}

func TestKeyring_Resolve(t *testing.T) {
	k, err := NewKeyring("sk_test_1234", "", 60)
	require.NoError(t, err)

	_, err = k.Resolve("")
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = k.Resolve("wrong-key")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPrincipal_Suffix(t *testing.T) {
	p := Principal{APIKey: "sk_test_abcd1234"}
	assert.Equal(t, "1234", p.Suffix())

	short := Principal{APIKey: "abc"}
	assert.Equal(t, "abc", short.Suffix())
}
