package vault

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundTrip(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	for _, secret := range []string{"", "p4ssw0rd", "with spaces and ünïcode", strings.Repeat("x", 4096)} {
		sealed, err := v.Seal(secret)
		require.NoError(t, err)

		opened, err := v.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, secret, opened)
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	a, err := v.Seal("secret")
	require.NoError(t, err)
	b, err := v.Seal("secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpenFailsClosed(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	sealed, err := v.Seal("secret")
	require.NoError(t, err)

	// flip one byte of the ciphertext
	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	_, err = v.Open(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)

	// not base64 at all
	_, err = v.Open("%%%not-base64%%%")
	assert.ErrorIs(t, err, ErrBadCiphertext)

	// too short to hold nonce + tag
	_, err = v.Open(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrBadCiphertext)
}

func TestOpenWrongKey(t *testing.T) {
	v1, err := New(testKey)
	require.NoError(t, err)
	v2, err := New(strings.Repeat("ff", 32))
	require.NoError(t, err)

	sealed, err := v1.Seal("secret")
	require.NoError(t, err)

	_, err = v2.Open(sealed)
	assert.Error(t, err)
}

func TestNewRejectsBadKeys(t *testing.T) {
	for _, k := range []string{"", "abcd", "zz", strings.Repeat("ab", 16) + "00"} {
		_, err := New(k)
		assert.ErrorIs(t, err, ErrBadKey, "key %q", k)
	}
}
