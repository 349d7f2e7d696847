package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/BurntSushi/toml"
)

// Hash returns a deterministic content hash of p, used to key the SECCOMP
// filter and syscall-database caches so two profiles with identical
// resolved contents (even from different source files) share a cache
// entry. TOML encoding sorts map keys and preserves declared field order,
// which is what makes this deterministic rather than Go's randomised map
// iteration: hashing the struct directly would be unstable across runs.
func Hash(p Profile) (string, error) {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(p); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(buf.String()))
	return hex.EncodeToString(sum[:]), nil
}
