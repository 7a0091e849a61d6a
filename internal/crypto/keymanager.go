package crypto

import (
	"encoding/hex"
	"errors"

	"go.uber.org/zap"

	"push-vault-go/internal/config"
)

// KeySize is the length in bytes of the subscription encryption key.
const KeySize = 32

// ErrKeyUnavailable is returned by encryption operations when no usable key
// was configured for this process.
var ErrKeyUnavailable = errors.New("encryption key unavailable")

// KeyManager holds the single symmetric key resolved at startup. It is never
// reloaded; a process started without a valid key stays in degraded mode.
type KeyManager struct {
	key []byte
}

// NewKeyManager decodes hexKey (64 hex characters). An empty value disables
// encryption with a warning that is raised to error level in production. A
// malformed value disables encryption and is logged as an error.
func NewKeyManager(hexKey, env string, log *zap.Logger) *KeyManager {
	if hexKey == "" {
		msg := "PUSH_ENCRYPTION_KEY not set; push subscriptions will be stored in plaintext only"
		if env == config.EnvProduction {
			log.Error(msg)
		} else {
			log.Warn(msg)
		}
		return &KeyManager{}
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != KeySize {
		log.Error("invalid PUSH_ENCRYPTION_KEY (must be 32 bytes hex); encryption disabled",
			zap.Int("hex_length", len(hexKey)))
		return &KeyManager{}
	}

	return &KeyManager{key: key}
}

func (km *KeyManager) Enabled() bool {
	return km != nil && len(km.key) == KeySize
}

// Key returns a copy of the configured key.
func (km *KeyManager) Key() ([]byte, error) {
	if !km.Enabled() {
		return nil, ErrKeyUnavailable
	}
	out := make([]byte, KeySize)
	copy(out, km.key)
	return out, nil
}
