// Package identity provides the anonymous per-install session identity.
package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"time"
)

const (
	sessionIDPrefix = "user_"
	suffixLen       = 7
	base36          = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var sessionIDPattern = regexp.MustCompile(`^user_\d+_[a-z0-9]{7}$`)

// NewSessionID returns a fresh identity of the form
// user_<unix-millis>_<7 base-36 chars>.
func NewSessionID() string {
	return newSessionID(time.Now())
}

func newSessionID(now time.Time) string {
	return sessionIDPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + randomSuffix()
}

func randomSuffix() string {
	buf := make([]byte, suffixLen)
	limit := big.NewInt(int64(len(base36)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(fmt.Sprintf("generate session id: %v", err))
		}
		buf[i] = base36[n.Int64()]
	}
	return string(buf)
}

// IsValidSessionID reports whether id has the shape produced by NewSessionID.
func IsValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// CreatedAt extracts the creation time embedded in a valid session id.
func CreatedAt(id string) (time.Time, bool) {
	if !IsValidSessionID(id) {
		return time.Time{}, false
	}
	rest := id[len(sessionIDPrefix) : len(id)-suffixLen-1]
	ms, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
