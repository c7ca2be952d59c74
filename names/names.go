// Package names generates human-readable VM names from a combinatorial
// word space, with bounded retry and a deterministic disambiguation suffix
// so generation never fails outright on a crowded host.
package names

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// maxAttempts bounds the random picks before falling back to a suffix.
const maxAttempts = 16

var adjectives = []string{
	"amber", "bold", "brisk", "calm", "clever", "crisp", "deft", "eager",
	"fleet", "gentle", "keen", "lively", "lucid", "merry", "nimble", "quiet",
	"rapid", "solid", "swift", "vivid",
}

var animals = []string{
	"badger", "beaver", "crane", "falcon", "ferret", "heron", "lynx",
	"marten", "marmot", "otter", "owl", "plover", "rabbit", "raven",
	"shrew", "stoat", "swift", "tern", "vole", "wren",
}

// Generate returns a name for which taken reports false. It tries random
// adjective-animal pairs; when the word space is crowded it appends a short
// random suffix to the last candidate instead of failing.
func Generate(taken func(string) bool) string {
	var candidate string
	for range maxAttempts {
		candidate = fmt.Sprintf("%s-%s", pick(adjectives), pick(animals))
		if !taken(candidate) {
			return candidate
		}
	}
	for {
		suffixed := candidate + "-" + randSuffix()
		if !taken(suffixed) {
			return suffixed
		}
	}
}

func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return words[n.Int64()]
}

func randSuffix() string {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
