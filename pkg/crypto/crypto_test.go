package crypto_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/absmach/flclient/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("ab", crypto.KeySize)

func TestSealOpen(t *testing.T) {
	t.Parallel()

	key, err := crypto.ParseKey(testKey)
	require.NoError(t, err)

	plaintext := []byte("global parameters")
	sealed, err := crypto.Seal(plaintext, key)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, plaintext))

	opened, err := crypto.Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	sealed[len(sealed)-1] ^= 0xff
	_, err = crypto.Open(sealed, key)
	assert.Error(t, err)

	_, err = crypto.Open([]byte{1, 2}, key)
	assert.ErrorIs(t, err, crypto.ErrCiphertextShort)
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	_, err := crypto.ParseKey("zz")
	assert.Error(t, err)

	_, err = crypto.ParseKey("abcd")
	assert.ErrorIs(t, err, crypto.ErrKeySize)

	_, err = crypto.Seal(nil, []byte("short"))
	assert.ErrorIs(t, err, crypto.ErrKeySize)
}
