package app

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	// JoinCodeAlphabet omits easily confused characters (0/O, 1/I).
	JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	JoinCodeLength   = 6
)

// GenerateJoinCode draws a JoinCodeLength code from JoinCodeAlphabet.
func GenerateJoinCode() (string, error) {
	b := make([]byte, JoinCodeLength)
	n := big.NewInt(int64(len(JoinCodeAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		b[i] = JoinCodeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// ValidJoinCode reports whether code could have been produced by GenerateJoinCode.
func ValidJoinCode(code string) bool {
	if len(code) != JoinCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(JoinCodeAlphabet, c) {
			return false
		}
	}
	return true
}
