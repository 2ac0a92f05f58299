// Package idgen generates identifiers for verification runs and history
// records.
package idgen

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator of base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator of time-sortable RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Timestamped produces "20060102T150405Z_<suffix>" IDs, which sort
// chronologically.
func Timestamped(gen Generator) Generator {
	return func() string {
		return time.Now().UTC().Format("20060102T150405Z") + "_" + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

var (
	verificationIDs = Prefixed("ver_", Default)
	runIDs          = Prefixed("run_", Timestamped(NanoID(6)))
)

// NewVerificationID returns an ID for one recorded verification:
// "ver_<uuidv7>".
func NewVerificationID() string {
	return verificationIDs()
}

// NewRunID returns an ID for one suite execution:
// "run_20060102T150405Z_xxxxxx".
func NewRunID() string {
	return runIDs()
}
