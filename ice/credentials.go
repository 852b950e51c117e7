package ice

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pion/randutil"
)

// iceChars is the ice-char alphabet: lowercase ALPHA / DIGIT / "+" / "/".
const iceChars = "abcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	ufragLength = 4
	pwdLength   = 22
)

var globalMathRandomGenerator = randutil.NewMathRandomGenerator()

func generateUfrag() (string, error) {
	return randutil.GenerateCryptoRandomString(ufragLength, iceChars)
}

func generatePassword() (string, error) {
	return randutil.GenerateCryptoRandomString(pwdLength, iceChars)
}

// randomFoundation mints a foundation string for peer-reflexive
// candidates, which have no base address to derive one from
// deterministically (RFC 5245 §4.1.1.3).
func randomFoundation() string {
	s, err := randutil.GenerateCryptoRandomString(10, iceChars)
	if err != nil {
		// crypto/rand failure is unrecoverable; a foundation collision only
		// costs an extra pruned pair, never correctness.
		return "fallback0"
	}
	return s
}

// generateTieBreaker draws the 64-bit tie-breaker used to resolve
// ICE-CONTROLLING/ICE-CONTROLLED role conflicts (RFC 5245 §5.2). It must
// come from a cryptographically strong source, so it bypasses randutil's
// string-oriented API and reads crypto/rand directly.
func generateTieBreaker() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func validateCredential(s string, min, max int) bool {
	if len(s) < min || len(s) > max {
		return false
	}
	for _, r := range s {
		if !isIceChar(r) {
			return false
		}
	}
	return true
}

func isIceChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '/':
		return true
	default:
		return false
	}
}
