package pkg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealedBoxRoundTrip(t *testing.T) {
	box, err := NewSealedBox(testKey)
	require.NoError(t, err)

	plaintext := []byte(`{"events":[],"points":[]}`)
	ciphertext, iv, err := box.Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := box.Open(ciphertext, iv)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestSealedBoxRejectsTamperedCiphertext(t *testing.T) {
	box, err := NewSealedBox(testKey)
	require.NoError(t, err)

	ciphertext, iv, err := box.Seal([]byte("payload"))
	require.NoError(t, err)

	ciphertext[0] ^= 0xff
	_, err = box.Open(ciphertext, iv)
	require.Error(t, err)
}

func TestSealedBoxRejectsBadKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", "0011223344"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSealedBox(tt.key)
			require.Error(t, err)
		})
	}
}

func TestSealedBoxRejectsWrongIVSize(t *testing.T) {
	box, err := NewSealedBox(testKey)
	require.NoError(t, err)

	ciphertext, _, err := box.Seal([]byte("payload"))
	require.NoError(t, err)

	_, err = box.Open(ciphertext, []byte{1, 2, 3})
	require.Error(t, err)
}
