package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Key derives the cache key for a message and its scope map. The message
// is trimmed, and lowercased only when foldCase is set. Map keys are
// serialized in sorted order, and a nil map equals an empty one.
func Key(prefix, message string, scope map[string]any, foldCase bool) string {
	msg := strings.TrimSpace(message)
	if foldCase {
		msg = strings.ToLower(msg)
	}

	ctxJSON := "{}"
	if len(scope) > 0 {
		data, err := json.Marshal(scope)
		if err != nil {
			data = []byte(fmt.Sprintf("%v", scope))
		}
		ctxJSON = string(data)
	}

	sum := sha256.Sum256([]byte(msg + "\x00" + ctxJSON))
	return prefix + hex.EncodeToString(sum[:])
}
