package idgen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// HashLength is the number of hex characters after the prefix.
const HashLength = 6

// MaxAttempts bounds the nonce retries a caller makes on collision.
const MaxAttempts = 32

var idPattern = regexp.MustCompile(`^([a-z0-9][a-z0-9_]*)-([0-9a-f]{6})$`)

// GenerateHashID creates an id of the form {prefix}-{6 lowercase hex}.
// The nonce lets callers step to a new candidate when an id is taken.
func GenerateHashID(prefix, title, actor string, timestamp time.Time, nonce int) string {
	content := fmt.Sprintf("%s|%s|%d|%d", title, actor, timestamp.UnixNano(), nonce)
	hash := sha256.Sum256([]byte(content))
	return prefix + "-" + hex.EncodeToString(hash[:HashLength/2])
}

// NormalizePrefix lowercases prefix and strips a trailing dash.
func NormalizePrefix(prefix string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(prefix)), "-")
}

// ValidPrefix reports whether prefix can start an id.
func ValidPrefix(prefix string) bool {
	return idPattern.MatchString(prefix + "-000000")
}

// SplitID returns the prefix and hash parts of a well-formed id.
func SplitID(id string) (prefix, hash string, ok bool) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
