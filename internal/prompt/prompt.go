// Package prompt defines the prompt library value type and key hygiene
// shared by the local store, the conflict engine, and the Drive codec.
package prompt

import (
	"errors"
	"maps"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Library maps prompt keys to prompt bodies. A nil Library behaves as empty
// for reads; writers must allocate.
type Library map[string]string

// Key validation errors.
var (
	ErrEmptyKey   = errors.New("prompt key is empty")
	ErrKeySpaces  = errors.New("prompt key contains whitespace")
	ErrKeyControl = errors.New("prompt key contains control characters")
)

// CleanKey canonicalizes a user-supplied prompt key: surrounding whitespace
// and at most one leading slash are stripped, and the result is normalized to
// NFC so visually identical keys compare equal across platforms. Keys with
// interior whitespace or control characters are rejected.
func CleanKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	key = strings.TrimPrefix(key, "/")

	if key == "" {
		return "", ErrEmptyKey
	}

	if strings.ContainsAny(key, " \t\n\r") {
		return "", ErrKeySpaces
	}

	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return "", ErrKeyControl
		}
	}

	return norm.NFC.String(key), nil
}

// CleanKeyOrSame canonicalizes best-effort: invalid keys come back unchanged
// so lookups against existing data still work.
func CleanKeyOrSame(raw string) string {
	key, err := CleanKey(raw)
	if err != nil {
		return raw
	}

	return key
}

// Clone returns an independent copy. Cloning nil yields an empty Library.
func (l Library) Clone() Library {
	out := make(Library, len(l))
	maps.Copy(out, l)

	return out
}

// Equal reports whether two libraries hold identical entries.
func (l Library) Equal(other Library) bool {
	return maps.Equal(l, other)
}
