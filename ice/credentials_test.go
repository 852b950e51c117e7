package ice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateUfragAndPasswordAreIceChars(t *testing.T) {
	ufrag, err := generateUfrag()
	require.NoError(t, err)
	require.Len(t, ufrag, ufragLength)

	pwd, err := generatePassword()
	require.NoError(t, err)
	require.Len(t, pwd, pwdLength)

	for _, r := range ufrag + pwd {
		require.True(t, isIceChar(r))
	}
}

func TestValidateCredentialBoundaries(t *testing.T) {
	require.True(t, validateCredential(strings.Repeat("a", 4), 4, 256))
	require.False(t, validateCredential(strings.Repeat("a", 3), 4, 256))
	require.True(t, validateCredential(strings.Repeat("a", 256), 4, 256))
	require.False(t, validateCredential(strings.Repeat("a", 257), 4, 256))

	require.True(t, validateCredential(strings.Repeat("a", 22), 22, 256))
	require.False(t, validateCredential(strings.Repeat("a", 21), 22, 256))
}

func TestValidateCredentialRejectsBadChars(t *testing.T) {
	require.False(t, validateCredential("abc!", 4, 256))
}

func TestIsIceCharRejectsUppercase(t *testing.T) {
	require.False(t, isIceChar('A'))
	require.True(t, isIceChar('a'))
}

func TestValidateCredentialRejectsUppercase(t *testing.T) {
	require.False(t, validateCredential("ABCD", 4, 256))
}

func TestGenerateTieBreakerIsRandom(t *testing.T) {
	a, err := generateTieBreaker()
	require.NoError(t, err)
	b, err := generateTieBreaker()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
