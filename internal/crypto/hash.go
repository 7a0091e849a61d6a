package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashUserID maps a user id to the key of its encrypted blob. It is unsalted
// so the same id always lands on the same row.
func HashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}
