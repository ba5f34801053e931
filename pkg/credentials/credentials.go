package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	nodeIDLength   = 16
	passwordLength = 24

	nodeIDCharset   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	passwordCharset = nodeIDCharset + "!*"
)

// NewNodeID generates a random 16-character alphanumeric node id.
func NewNodeID() (string, error) {
	return randomString(nodeIDLength, nodeIDCharset)
}

// NewPassword generates a random 24-character password from a charset
// safe to pass unescaped in query strings and shell examples.
func NewPassword() (string, error) {
	return randomString(passwordLength, passwordCharset)
}

func randomString(length int, charset string) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
