package secrets

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	a, err := HashPassword("pw")
	require.NoError(t, err)
	b, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	_, err := VerifyPassword("pw", "not-a-hash")
	assert.Error(t, err)

	_, err = VerifyPassword("pw", "$bcrypt$v=19$m=1,t=1,p=1$AAAA$BBBB")
	assert.Error(t, err)
}

func TestTotpRoundTrip(t *testing.T) {
	secret, url, err := GenerateTotpSecret("alice")
	require.NoError(t, err)
	assert.Contains(t, url, "otpauth://totp/")
	assert.Contains(t, url, "Omnitron")

	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	assert.True(t, VerifyTotp(code, secret))
	assert.False(t, VerifyTotp("000000", secret))
	assert.False(t, VerifyTotp(code, "JBSWY3DPEHPK3PXP"))
}

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
	assert.GreaterOrEqual(t, len(a), 40)
}
