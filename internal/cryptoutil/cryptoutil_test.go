package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testKeyring(t *testing.T) *Keyring {
	t.Helper()
	k, err := NewKeyring("master-secret", "signing-secret")
	require.NoError(t, err)
	return k
}

func TestNewKeyringRequiresSecrets(t *testing.T) {
	_, err := NewKeyring("", "signing")
	assert.Error(t, err)
	_, err = NewKeyring("master", " ")
	assert.Error(t, err)
}

func TestKeyringDerivesDistinctKeys(t *testing.T) {
	k := testKeyring(t)
	assert.NotEqual(t, k.answerKey, k.aiDataKey)
	assert.NotEqual(t, k.answerKey, k.digestKey)
	assert.Len(t, k.answerKey, keySize)

	again := testKeyring(t)
	assert.Equal(t, k.answerKey, again.answerKey)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Secret123", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, VerifyPassword("Secret123", hash))
	assert.False(t, VerifyPassword("Secret124", hash))
	assert.False(t, VerifyPassword("Secret123", "not-a-bcrypt-hash"))
	assert.False(t, VerifyPassword("Secret123", ""))
}

func TestCipherJSONRoundTrip(t *testing.T) {
	c, err := testKeyring(t).AnswerCipher()
	require.NoError(t, err)

	cases := []any{
		"plain text answer",
		[]any{"option a", "option b"},
		float64(4),
		true,
		[]any{float64(3), float64(1), float64(2)},
	}
	for _, want := range cases {
		ct, err := c.EncryptJSON(want)
		require.NoError(t, err)
		got, err := c.DecryptJSON(ct)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCipherRejectsTamperedInput(t *testing.T) {
	k := testKeyring(t)
	answers, err := k.AnswerCipher()
	require.NoError(t, err)
	ai, err := k.AIDataCipher()
	require.NoError(t, err)

	ct, err := answers.Encrypt([]byte("hello"))
	require.NoError(t, err)

	_, err = ai.Decrypt(ct)
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
	_, err = answers.Decrypt("%%%")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
	_, err = answers.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestDigest(t *testing.T) {
	d := testKeyring(t).Digester()
	a := d.Digest("203.0.113.7")
	assert.Len(t, a, 64)
	assert.Equal(t, a, d.Digest("203.0.113.7"))
	assert.NotEqual(t, a, d.Digest("203.0.113.8"))
	assert.NotContains(t, a, "203")
	assert.Empty(t, d.Digest(""))
}
