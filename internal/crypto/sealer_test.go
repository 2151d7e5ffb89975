package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal("wJalrXUtnFEMI/K7MDENG", "user-1/aws")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "wJalrXUtnFEMI")

	plain, err := s.Open(sealed, "user-1/aws")
	require.NoError(t, err)
	assert.Equal(t, "wJalrXUtnFEMI/K7MDENG", plain)
}

func TestSealer_NonceIsRandom(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	a, err := s.Seal("secret", "owner")
	require.NoError(t, err)
	b, err := s.Seal("secret", "owner")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_WrongOwnerFails(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal("secret", "user-1/aws")
	require.NoError(t, err)

	_, err = s.Open(sealed, "user-2/aws")
	assert.Error(t, err)
}

func TestSealer_WrongKeyFails(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)
	other, err := NewEphemeralSealer()
	require.NoError(t, err)

	sealed, err := s.Seal("secret", "owner")
	require.NoError(t, err)

	_, err = other.Open(sealed, "owner")
	assert.Error(t, err)
}

func TestSealer_EmptyAndInvalidInput(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal("", "owner")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := s.Open("", "owner")
	require.NoError(t, err)
	assert.Empty(t, plain)

	_, err = s.Open("plaintext", "owner")
	assert.Error(t, err)

	_, err = s.Open(sealedPrefix+"zz", "owner")
	assert.Error(t, err)

	_, err = s.Open(sealedPrefix+"00", "owner")
	assert.Error(t, err)
}

func TestNewSealer_InvalidKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"not hex", "not-a-hex-key"},
		{"too short", "0011"},
		{"too long", strings.Repeat("00", 33)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSealer(tt.key)
			assert.Error(t, err)
		})
	}
}
